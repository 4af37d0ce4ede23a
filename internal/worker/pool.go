package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/EcoCode-hq/ecocode/internal/analysis"
	ecnats "github.com/EcoCode-hq/ecocode/internal/nats"
)

// Worker is the interface all workers must implement
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// PoolConfig configures the worker pool
type PoolConfig struct {
	Concurrency int
	Store       JobStore
	Cloner      Cloner
	NATS        *ecnats.Client
	Analysis    analysis.Options
}

// Pool runs a fixed number of scan workers
type Pool struct {
	workers []*ScanWorker
	nats    *ecnats.Client
}

// NewPool creates a new worker pool
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("worker pool needs a job store")
	}
	if cfg.Cloner == nil {
		return nil, fmt.Errorf("worker pool needs a cloner")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	p := &Pool{nats: cfg.NATS}
	for i := 0; i < cfg.Concurrency; i++ {
		base := NewBaseWorker(BaseWorkerConfig{Store: cfg.Store})
		p.workers = append(p.workers, NewScanWorker(base, cfg.Cloner, cfg.Analysis))
	}

	return p, nil
}

// Run starts all workers and blocks until ctx is cancelled and they have
// stopped, or one of them fails
func (p *Pool) Run(ctx context.Context) error {
	if p.nats != nil && p.nats.IsConnected() {
		if err := p.attachConsumer(ctx); err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, workers will poll the database")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		log.Info().Str("worker", w.Name()).Msg("starting worker")
		g.Go(func() error {
			if err := w.Run(gctx); err != nil {
				return fmt.Errorf("worker %s failed: %w", w.Name(), err)
			}
			return nil
		})
	}

	return g.Wait()
}

func (p *Pool) attachConsumer(ctx context.Context) error {
	if err := p.nats.SetupStreams(ctx); err != nil {
		return err
	}
	consumer, err := p.nats.ScanConsumer(ctx)
	if err != nil {
		return err
	}
	for _, w := range p.workers {
		w.source = consumer
	}
	log.Info().Str("consumer", ecnats.ConsumerScanWorkers).Msg("workers attached to NATS")
	return nil
}

// Workers returns the pool's workers
func (p *Pool) Workers() []Worker {
	out := make([]Worker, len(p.workers))
	for i, w := range p.workers {
		out[i] = w
	}
	return out
}
