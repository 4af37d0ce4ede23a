package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/EcoCode-hq/ecocode/internal/config"
	"github.com/EcoCode-hq/ecocode/internal/db"
	"github.com/EcoCode-hq/ecocode/internal/jobs"
	"github.com/EcoCode-hq/ecocode/internal/nats"
	"github.com/EcoCode-hq/ecocode/internal/repo"
	"github.com/EcoCode-hq/ecocode/internal/worker"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required to run scan workers")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
	defer startCancel()

	database, err := db.New(startCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(startCtx, jobs.Schema); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate scan jobs")
	}
	store := jobs.NewRepository(database.Pool())

	// Connect to NATS (optional)
	var nc *nats.Client
	if cfg.NATSURL != "" {
		nc, err = nats.NewClient(cfg.NATSURL, "ecocode-worker")
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, workers will poll database")
			nc = nil
		} else {
			defer nc.Close()
		}
	}

	pool, err := worker.NewPool(worker.PoolConfig{
		Concurrency: cfg.WorkerConcurrency,
		Store:       store,
		Cloner:      repo.NewService(cfg.WorkDir, cfg.GitHubToken),
		NATS:        nc,
		Analysis:    cfg.AnalysisOptions(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create worker pool")
	}

	log.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("starting worker pool")
	if err := pool.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("worker pool error")
	}

	log.Info().Msg("worker pool stopped")
}
