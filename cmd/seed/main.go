// Command seed fills a development database with fake players, projects,
// bids and events.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/aimerfeng/Gigsy/internal/auth"
	"github.com/aimerfeng/Gigsy/internal/broker"
	"github.com/aimerfeng/Gigsy/internal/config"
	"github.com/aimerfeng/Gigsy/internal/database"
	"github.com/aimerfeng/Gigsy/internal/event"
	"github.com/aimerfeng/Gigsy/internal/logging"
	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/profile"
	"github.com/aimerfeng/Gigsy/internal/project"
	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/aimerfeng/Gigsy/internal/store/postgres"
	"github.com/aimerfeng/Gigsy/internal/wallet"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const devPassword = "gigsy-dev-password"

var skills = []string{
	"go", "unity", "unreal", "pixel-art", "3d-modeling", "level-design",
	"sound-design", "video-editing", "streaming", "esports-coaching",
	"community", "shaders", "godot", "writing", "ui",
}

var projectKinds = []string{
	"Tournament bracket site", "Stream overlay pack", "Boss fight soundtrack",
	"Speedrun route guide", "Discord bot for raid signups", "Character sprite sheet",
	"Montage edit", "Mod loader patch", "Clan logo", "Coaching session series",
}

var eventKinds = []string{
	"Campus LAN night", "Game jam", "Esports watch party", "Retro arcade meetup",
	"Speedrun marathon", "Indie showcase",
}

func main() {
	var (
		users  int
		events int
		seed   int64
	)
	flag.IntVar(&users, "users", 20, "Number of player accounts to create")
	flag.IntVar(&events, "events", 5, "Number of events to schedule")
	flag.Int64Var(&seed, "seed", 0, "Random seed (0 picks one)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(&cfg.Logging, cfg.Server.Env)
	if cfg.IsProduction() {
		log.Fatal().Msg("Refusing to seed a production database")
	}
	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = "seed-only-secret"
	}

	gofakeit.Seed(seed)
	ctx := context.Background()

	db, err := database.New(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	st := postgres.New(db)
	defer st.Close()

	s := newSeeder(st, cfg)
	if err := s.run(ctx, users, events); err != nil {
		log.Fatal().Err(err).Msg("Seeding failed")
	}
}

type seeder struct {
	store    store.Store
	auth     *auth.Service
	wallets  *wallet.Service
	projects *project.Service
	events   *event.Service
}

func newSeeder(st store.Store, cfg *config.Config) *seeder {
	bus := broker.NewLocalBus()
	profiles := profile.NewService(st, bus)
	wallets := wallet.NewService(st, bus)
	return &seeder{
		store:    st,
		auth:     auth.NewService(st, profiles, &cfg.JWT),
		wallets:  wallets,
		projects: project.NewService(st, bus),
		events:   event.NewService(st, wallets, bus),
	}
}

func (s *seeder) run(ctx context.Context, users, events int) error {
	admin, err := s.account(ctx, "admin@gigsy.dev", models.RoleAdmin)
	if err != nil {
		return err
	}
	ambassador, err := s.account(ctx, "ambassador@gigsy.dev", models.RoleAmbassador)
	if err != nil {
		return err
	}

	players := make([]*models.Profile, 0, users)
	for i := 0; i < users; i++ {
		p, err := s.account(ctx, gofakeit.Email(), models.RoleIndividual)
		if err != nil {
			return err
		}
		players = append(players, p)

		pkg := gofakeit.RandomString([]string{"pouch", "chest", "vault"})
		if _, err := s.wallets.CreditPackage(ctx, admin, p.ID, &wallet.CreditPackageRequest{
			PackageID:        pkg,
			PaymentReference: "seed_" + gofakeit.LetterN(12),
		}); err != nil {
			return fmt.Errorf("credit %s: %w", p.Email, err)
		}
	}
	log.Info().Int("players", len(players)).Msg("Players created")

	projects := 0
	for _, owner := range players {
		if !gofakeit.Bool() {
			continue
		}
		if err := s.project(ctx, owner, players); err != nil {
			return err
		}
		projects++
	}
	log.Info().Int("projects", projects).Msg("Projects created")

	for i := 0; i < events; i++ {
		if err := s.event(ctx, ambassador, players); err != nil {
			return err
		}
	}
	log.Info().Int("events", events).Msg("Events created")
	log.Info().Str("password", devPassword).Msg("Seed complete; every account shares the dev password")
	return nil
}

// account signs up a local account and forces its role
func (s *seeder) account(ctx context.Context, email string, role models.Role) (*models.Profile, error) {
	name := gofakeit.Username()
	resp, err := s.auth.Register(ctx, &auth.RegisterRequest{
		Email:       email,
		Password:    devPassword,
		DisplayName: name,
	})
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", email, err)
	}

	var p *models.Profile
	err = s.store.WithTx(ctx, func(r store.Repos) error {
		var err error
		p, err = r.Profiles().GetForUpdate(ctx, resp.Profile.ID)
		if err != nil {
			return err
		}
		if p.Role == role {
			return nil
		}
		p.Role = role
		return r.Profiles().Update(ctx, p)
	})
	return p, err
}

func (s *seeder) project(ctx context.Context, owner *models.Profile, players []*models.Profile) error {
	p, err := s.projects.CreateProject(ctx, owner, &project.CreateProjectRequest{
		Title:          gofakeit.RandomString(projectKinds),
		Description:    gofakeit.Sentence(18),
		Budget:         int64(gofakeit.Number(50, 2000)),
		Deadline:       gofakeit.DateRange(time.Now().AddDate(0, 0, 7), time.Now().AddDate(0, 3, 0)),
		SkillsRequired: pickSkills(),
	})
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}

	var firstBid uuid.UUID
	for _, bidder := range players {
		if bidder.ID == owner.ID || gofakeit.Number(0, 3) != 0 {
			continue
		}
		bid, err := s.projects.SubmitBid(ctx, bidder, p.ID, &project.SubmitBidRequest{
			Amount:   int64(gofakeit.Number(40, int(p.Budget))),
			Proposal: gofakeit.Sentence(12),
		})
		if err != nil {
			return fmt.Errorf("submit bid: %w", err)
		}
		if firstBid == uuid.Nil {
			firstBid = bid.ID
		}
	}

	if firstBid != uuid.Nil && gofakeit.Bool() {
		if _, err := s.projects.AcceptBid(ctx, owner, firstBid); err != nil {
			return fmt.Errorf("accept bid: %w", err)
		}
	}
	return nil
}

func (s *seeder) event(ctx context.Context, organizer *models.Profile, players []*models.Profile) error {
	start := gofakeit.DateRange(time.Now().Add(24*time.Hour), time.Now().AddDate(0, 1, 0))
	location := gofakeit.City()
	capacity := gofakeit.Number(5, 40)
	e, err := s.events.CreateEvent(ctx, organizer, &event.CreateEventRequest{
		Title:           gofakeit.RandomString(eventKinds),
		Description:     gofakeit.Sentence(14),
		StartDate:       start,
		EndDate:         start.Add(time.Duration(gofakeit.Number(2, 8)) * time.Hour),
		Location:        &location,
		MaxParticipants: &capacity,
		RewardAmount:    int64(gofakeit.Number(0, 4) * 50),
	})
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}

	for _, p := range players {
		if !gofakeit.Bool() {
			continue
		}
		if _, err := s.events.Register(ctx, e.ID, p.ID); err != nil && !isExpected(err) {
			return fmt.Errorf("register: %w", err)
		}
	}
	return nil
}

// a full event stops registration without failing the seed
func isExpected(err error) bool {
	return errors.Is(err, models.ErrFull)
}

func pickSkills() []string {
	n := gofakeit.Number(1, 3)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, gofakeit.RandomString(skills))
	}
	return out
}
