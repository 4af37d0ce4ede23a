package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the scan job table
const Schema = `
CREATE TABLE IF NOT EXISTS scans (
	id UUID PRIMARY KEY,
	status TEXT NOT NULL,
	repo_url TEXT NOT NULL,
	branch TEXT NOT NULL DEFAULT '',
	commit_sha TEXT,
	result JSONB,
	error_message TEXT,
	attempts INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 3,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	started_at TIMESTAMP WITH TIME ZONE,
	completed_at TIMESTAMP WITH TIME ZONE,
	locked_until TIMESTAMP WITH TIME ZONE,
	worker_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_scans_status_created_at ON scans(status, created_at);
`

const jobColumns = `id, status, repo_url, branch, commit_sha, result, error_message,
	attempts, max_attempts, created_at, updated_at, started_at, completed_at,
	locked_until, worker_id`

// Repository handles scan job persistence
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new job repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new job
func (r *Repository) Create(ctx context.Context, job *Job) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO scans (id, status, repo_url, branch, max_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, job.ID, job.Status, job.RepoURL, job.Branch, job.MaxAttempts, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetByID retrieves a job by ID. A missing job returns nil, nil.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM scans WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// Claim locks a pending job, or a running one whose lock expired, for
// workerID. It returns nil, nil when another worker holds the job.
func (r *Repository) Claim(ctx context.Context, id uuid.UUID, workerID string, lockDuration time.Duration) (*Job, error) {
	now := time.Now().UTC()

	job, err := scanJob(r.pool.QueryRow(ctx, `
		UPDATE scans
		SET status = $1, worker_id = $2, locked_until = $3, attempts = attempts + 1,
			started_at = $4, updated_at = $4
		WHERE id = $5
		  AND (status = 'pending' OR (status = 'running' AND locked_until < $4))
		RETURNING `+jobColumns,
		StatusRunning, workerID, now.Add(lockDuration), now, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

// ExtendLock pushes the lock of a running job held by workerID
func (r *Repository) ExtendLock(ctx context.Context, id uuid.UUID, workerID string, lockDuration time.Duration) error {
	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `
		UPDATE scans SET locked_until = $1, updated_at = $2
		WHERE id = $3 AND worker_id = $4 AND status = 'running'
	`, now.Add(lockDuration), now, id, workerID)
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s is not held by %s", id, workerID)
	}
	return nil
}

// Complete stores the scan result and marks the job completed
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, commitSHA string, result any) error {
	job := &Job{}
	if err := job.SetResult(result); err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		UPDATE scans
		SET status = $1, commit_sha = $2, result = $3, error_message = NULL,
			completed_at = $4, updated_at = $4, locked_until = NULL
		WHERE id = $5
	`, StatusCompleted, commitSHA, job.Result, now, id)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// Fail records errMsg. The job returns to pending while attempts remain and
// is marked failed otherwise; the resulting status is returned.
func (r *Repository) Fail(ctx context.Context, id uuid.UUID, errMsg string) (JobStatus, error) {
	now := time.Now().UTC()

	var status JobStatus
	err := r.pool.QueryRow(ctx, `
		UPDATE scans
		SET status = CASE WHEN attempts < max_attempts THEN 'pending' ELSE 'failed' END,
			completed_at = CASE WHEN attempts < max_attempts THEN NULL ELSE $2::timestamptz END,
			error_message = $1, updated_at = $2, locked_until = NULL, worker_id = NULL
		WHERE id = $3
		RETURNING status
	`, errMsg, now, id).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("failed to fail job: %w", err)
	}
	return status, nil
}

// ListPending returns the oldest pending jobs
func (r *Repository) ListPending(ctx context.Context, limit int) ([]*Job, error) {
	return r.queryJobs(ctx, `SELECT `+jobColumns+` FROM scans
		WHERE status = 'pending' ORDER BY created_at LIMIT $1`, limit)
}

// ListRecent returns the most recent jobs without their result payload
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]*Job, error) {
	jobs, err := r.queryJobs(ctx, `SELECT `+jobColumns+` FROM scans
		ORDER BY created_at DESC LIMIT $1`, limit)
	for _, j := range jobs {
		j.Result = nil
	}
	return jobs, err
}

func (r *Repository) queryJobs(ctx context.Context, query string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}

	return jobs, nil
}

func scanJob(row pgx.Row) (*Job, error) {
	job := &Job{}
	err := row.Scan(
		&job.ID, &job.Status, &job.RepoURL, &job.Branch, &job.CommitSHA,
		&job.Result, &job.ErrorMessage, &job.Attempts, &job.MaxAttempts,
		&job.CreatedAt, &job.UpdatedAt, &job.StartedAt, &job.CompletedAt,
		&job.LockedUntil, &job.WorkerID,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}
