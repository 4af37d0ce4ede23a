// Package worker runs queued repository scans
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/EcoCode-hq/ecocode/internal/jobs"
)

// JobStore is the job persistence the workers need
type JobStore interface {
	Claim(ctx context.Context, id uuid.UUID, workerID string, lockDuration time.Duration) (*jobs.Job, error)
	ExtendLock(ctx context.Context, id uuid.UUID, workerID string, lockDuration time.Duration) error
	Complete(ctx context.Context, id uuid.UUID, commitSHA string, result any) error
	Fail(ctx context.Context, id uuid.UUID, errMsg string) (jobs.JobStatus, error)
	ListPending(ctx context.Context, limit int) ([]*jobs.Job, error)
}

// MessageSource delivers scan requests. jetstream.Consumer satisfies it.
type MessageSource interface {
	Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error)
}

// JobHandler is the function type for processing jobs
type JobHandler func(ctx context.Context, job *jobs.Job) error

// BaseWorker claims jobs from NATS or by polling the database and runs the
// handler on each
type BaseWorker struct {
	workerID   string
	store      JobStore
	source     MessageSource
	handler    JobHandler
	pollPeriod time.Duration
	lockTime   time.Duration
	jobTimeout time.Duration
}

// BaseWorkerConfig configures a base worker
type BaseWorkerConfig struct {
	WorkerID string
	Store    JobStore
	Source   MessageSource
	Handler  JobHandler
}

// NewBaseWorker creates a new base worker
func NewBaseWorker(cfg BaseWorkerConfig) *BaseWorker {
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = fmt.Sprintf("scan-%s", uuid.New().String()[:8])
	}

	return &BaseWorker{
		workerID:   workerID,
		store:      cfg.Store,
		source:     cfg.Source,
		handler:    cfg.Handler,
		pollPeriod: 5 * time.Second,
		lockTime:   5 * time.Minute,
		jobTimeout: 30 * time.Minute,
	}
}

// Run processes jobs until ctx is cancelled
func (w *BaseWorker) Run(ctx context.Context) error {
	if w.store == nil {
		return fmt.Errorf("worker %s has no job store", w.workerID)
	}
	if w.handler == nil {
		return fmt.Errorf("worker %s has no handler", w.workerID)
	}

	logger := log.With().Str("worker_id", w.workerID).Logger()
	logger.Info().Bool("nats", w.source != nil).Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker stopping")
			return nil
		default:
			if err := w.processNext(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("error processing job")
				w.sleep(ctx)
			}
		}
	}
}

// Name returns the worker's unique ID
func (w *BaseWorker) Name() string {
	return w.workerID
}

// processNext handles queued messages first and then sweeps the database
// for pending jobs whose message never arrived
func (w *BaseWorker) processNext(ctx context.Context) error {
	if w.source != nil {
		n, err := w.processFromNATS(ctx)
		if err != nil || n > 0 {
			return err
		}
	}

	n, err := w.processFromDB(ctx)
	if err != nil {
		return err
	}
	if n == 0 && w.source == nil {
		w.sleep(ctx)
	}
	return nil
}

// processFromNATS fetches one scan request
func (w *BaseWorker) processFromNATS(ctx context.Context) (int, error) {
	msgs, err := w.source.Fetch(1, jetstream.FetchMaxWait(w.pollPeriod))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, jetstream.ErrNoMessages) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to fetch from NATS: %w", err)
	}

	n := 0
	for msg := range msgs.Messages() {
		n++
		jobMsg, err := jobs.DecodeJobMessage(msg.Data())
		if err != nil {
			log.Error().Err(err).Msg("dropping malformed scan request")
			_ = msg.Term()
			continue
		}

		job, err := w.store.Claim(ctx, jobMsg.JobID, w.workerID, w.lockTime)
		if err != nil {
			log.Error().Err(err).Str("job_id", jobMsg.JobID.String()).Msg("failed to claim job")
			_ = msg.Nak()
			continue
		}
		if job == nil {
			// claimed elsewhere or already finished
			_ = msg.Ack()
			continue
		}

		if status := w.processJob(ctx, job); status == jobs.StatusPending {
			_ = msg.NakWithDelay(w.pollPeriod)
			continue
		}
		_ = msg.Ack()
	}

	if err := msgs.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
		return n, err
	}
	return n, nil
}

// processFromDB claims the oldest pending job
func (w *BaseWorker) processFromDB(ctx context.Context) (int, error) {
	pending, err := w.store.ListPending(ctx, 1)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending jobs: %w", err)
	}

	n := 0
	for _, p := range pending {
		job, err := w.store.Claim(ctx, p.ID, w.workerID, w.lockTime)
		if err != nil {
			log.Warn().Err(err).Str("job_id", p.ID.String()).Msg("failed to claim job")
			continue
		}
		if job == nil {
			continue
		}
		n++
		w.processJob(ctx, job)
	}

	return n, nil
}

// processJob runs the handler under the job lock and records a failure. It
// returns the status a failed job was moved to, or "" on success.
func (w *BaseWorker) processJob(ctx context.Context, job *jobs.Job) jobs.JobStatus {
	logger := log.With().
		Str("worker_id", w.workerID).
		Str("job_id", job.ID.String()).
		Str("repo_url", job.RepoURL).
		Int("attempt", job.Attempts).
		Logger()

	logger.Info().Msg("processing job")

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	done := make(chan struct{})
	go w.extendLockPeriodically(ctx, job.ID, done)

	err := w.handler(jobCtx, job)
	close(done)

	if err == nil {
		logger.Info().Msg("job completed")
		return ""
	}

	logger.Error().Err(err).Msg("job failed")
	status, failErr := w.store.Fail(ctx, job.ID, err.Error())
	if failErr != nil {
		logger.Error().Err(failErr).Msg("failed to mark job as failed")
		return jobs.StatusFailed
	}
	return status
}

// extendLockPeriodically extends the lock while the job is processing
func (w *BaseWorker) extendLockPeriodically(ctx context.Context, jobID uuid.UUID, done chan struct{}) {
	ticker := time.NewTicker(w.lockTime / 2)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.ExtendLock(ctx, jobID, w.workerID, w.lockTime); err != nil {
				log.Warn().Err(err).Str("job_id", jobID.String()).Msg("failed to extend lock")
			}
		}
	}
}

func (w *BaseWorker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollPeriod):
	}
}

// SetPollPeriod sets the polling interval
func (w *BaseWorker) SetPollPeriod(d time.Duration) {
	w.pollPeriod = d
}

// SetLockTime sets the job lock duration. Running jobs renew it every half
// period until they finish.
func (w *BaseWorker) SetLockTime(d time.Duration) {
	w.lockTime = d
}

// SetJobTimeout bounds how long a single job may run
func (w *BaseWorker) SetJobTimeout(d time.Duration) {
	w.jobTimeout = d
}
