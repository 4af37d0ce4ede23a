package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/EcoCode-hq/ecocode/internal/analysis"
	"github.com/EcoCode-hq/ecocode/internal/api"
	"github.com/EcoCode-hq/ecocode/internal/cache"
	"github.com/EcoCode-hq/ecocode/internal/config"
	"github.com/EcoCode-hq/ecocode/internal/db"
	"github.com/EcoCode-hq/ecocode/internal/jobs"
	"github.com/EcoCode-hq/ecocode/internal/nats"
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resultCache := cache.NewMemoryCache(cfg.CacheSize, cfg.CacheTTL)
	defer resultCache.Close()

	opts := []api.Option{api.WithCache(resultCache)}

	// Report history and scan jobs
	var scans *jobs.Repository
	if cfg.DatabaseURL != "" {
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer database.Close()

		if err := database.Migrate(ctx, db.Schema, jobs.Schema); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}

		opts = append(opts, api.WithStore(db.NewReportStore(database)))
		scans = jobs.NewRepository(database.Pool())
	} else {
		log.Info().Msg("DATABASE_URL not set, report history and repository scans disabled")
	}

	// Report events and scan requests
	var nc *nats.Client
	if cfg.NATSURL != "" {
		nc, err = nats.NewClient(cfg.NATSURL, "ecocode-api")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to NATS")
		}
		defer nc.Close()

		if err := nc.SetupStreams(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to set up NATS streams")
		}
		opts = append(opts, api.WithEvents(nc))
	} else {
		log.Info().Msg("NATS_URL not set, report events disabled")
	}

	if scans != nil {
		if nc != nil {
			opts = append(opts, api.WithScans(scans, nc))
		} else {
			opts = append(opts, api.WithScans(scans, nil))
		}
	}

	analyzer := analysis.NewAnalyzer(cfg.AnalysisOptions(), nil)

	// Create server
	srv, err := api.NewServer(cfg, analyzer, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	// Start server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("could not gracefully shutdown the server")
		}
		close(done)
	}()

	log.Info().
		Int("port", cfg.Port).
		Float64("electricity_rate_per_kwh", cfg.Analysis.ElectricityRatePerKWh).
		Msg("starting API server")

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("could not listen on port")
	}

	<-done
	log.Info().Msg("server stopped")
}
