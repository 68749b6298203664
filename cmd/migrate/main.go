package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/aimerfeng/Gigsy/internal/database"
	"github.com/aimerfeng/Gigsy/migrations"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	_ = godotenv.Load()

	var (
		command       string
		steps         int
		migrationsDir string
		databaseURL   string
	)

	flag.StringVar(&command, "command", "up", "Migration command: up, down, force, version, drop")
	flag.IntVar(&steps, "steps", 1, "Steps to roll back for down, or the version for force")
	flag.StringVar(&migrationsDir, "dir", "", "Read migrations from this directory instead of the embedded schema")
	flag.StringVar(&databaseURL, "database", "", "Database URL (overrides DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		log.Fatal().Msg("DATABASE_URL environment variable or -database flag is required")
	}

	mg, err := openMigrator(databaseURL, migrationsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrator")
	}
	defer mg.Close()

	log.Info().Str("command", command).Int("steps", steps).Msg("Starting migration")

	switch command {
	case "up":
		err = mg.Up()
	case "down":
		err = mg.Down(steps)
	case "force":
		err = mg.Force(steps)
	case "version":
		version, dirty, verr := mg.Version()
		if verr != nil {
			log.Fatal().Err(verr).Msg("Failed to get version")
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Current migration version")
		return
	case "drop":
		err = mg.Drop()
	default:
		log.Fatal().Str("command", command).Msg("Unknown command")
	}

	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
	log.Info().Msg("Migration completed successfully")
}

func openMigrator(databaseURL, dir string) (*database.Migrator, error) {
	if dir == "" {
		return database.NewEmbeddedMigrator(databaseURL, migrations.FS, ".")
	}
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	log.Info().Str("dir", absPath).Msg("Using migrations from disk")
	return database.NewPathMigrator(databaseURL, absPath)
}
