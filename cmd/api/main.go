package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aimerfeng/Gigsy/internal/broker"
	"github.com/aimerfeng/Gigsy/internal/cache"
	"github.com/aimerfeng/Gigsy/internal/config"
	"github.com/aimerfeng/Gigsy/internal/database"
	"github.com/aimerfeng/Gigsy/internal/event"
	"github.com/aimerfeng/Gigsy/internal/logging"
	"github.com/aimerfeng/Gigsy/internal/middleware"
	"github.com/aimerfeng/Gigsy/internal/monitoring"
	"github.com/aimerfeng/Gigsy/internal/server"
	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/aimerfeng/Gigsy/internal/store/memory"
	"github.com/aimerfeng/Gigsy/internal/store/postgres"
	"github.com/aimerfeng/Gigsy/migrations"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(&cfg.Logging, cfg.Server.Env)

	log.Info().
		Str("env", cfg.Server.Env).
		Str("store", cfg.Store.Driver).
		Msg("Starting Gigsy API server")

	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = randomSecret()
		log.Warn().Msg("JWT_SECRET not set, using an ephemeral secret; tokens will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitoring.Init()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()

	bus, err := openBus(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to message bus")
	}
	defer bus.Close()

	deps := server.Deps{Store: st, Bus: bus}

	if cfg.Redis.URL != "" {
		rdb, err := cache.NewRedis(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		deps.InFlight = cache.NewRedisInFlight(rdb)
		deps.Limiter = cache.NewRateLimiter(rdb, cfg.RateLimit.Requests, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second)
		log.Info().Msg("Redis-backed idempotency guard and rate limiter enabled")
	}

	if cfg.OIDC.IssuerURL != "" {
		src, err := middleware.NewOIDCSource(ctx, cfg.OIDC.IssuerURL, cfg.OIDC.ClientID)
		if err != nil {
			log.Fatal().Err(err).Str("issuer", cfg.OIDC.IssuerURL).Msg("Failed to set up OIDC")
		}
		deps.ExternalIdentity = append(deps.ExternalIdentity, src)
		log.Info().Str("issuer", cfg.OIDC.IssuerURL).Msg("External identity tokens accepted")
	}

	srv, err := server.NewAPIServer(cfg, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create API server")
	}
	defer srv.Close()

	if cfg.Monitoring.Enabled {
		go startMetricsServer(cfg.Monitoring.MetricsPort)
	}

	scheduler := event.NewScheduler(srv.EventService(), &event.SchedulerConfig{
		Interval: time.Duration(cfg.Scheduler.EventIntervalSeconds) * time.Second,
	})
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start event scheduler")
	}
	defer scheduler.Stop()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited gracefully")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Store.Driver == "memory" {
		log.Warn().Msg("Using the in-memory store; data is lost on restart")
		return memory.New(), nil
	}

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(cfg.Database.URL, migrations.FS, "."); err != nil {
			return nil, err
		}
	}

	db, err := database.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	go monitoring.CollectDBStats(ctx, 15*time.Second, func() (int32, int32, int32) {
		s := db.Stats()
		return s.Total, s.Acquired, s.Idle
	})

	return postgres.New(db), nil
}

func openBus(cfg *config.Config) (broker.Bus, error) {
	if cfg.NATS.URL == "" {
		log.Info().Msg("NATS_URL not set, using the in-process event bus")
		return broker.NewLocalBus(), nil
	}
	bus, err := broker.NewNATSBus(cfg.NATS.URL, cfg.NATS.Name, broker.DefaultBreakerConfig())
	if err != nil {
		return nil, err
	}
	log.Info().Str("url", cfg.NATS.URL).Msg("Connected to NATS")
	return bus, nil
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

func startMetricsServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())

	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Info().Int("port", port).Msg("Prometheus metrics server listening")

	if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Metrics server error")
	}
}
