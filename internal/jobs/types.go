// Package jobs tracks asynchronous repository scans
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a scan job
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Job is a queued scan of a remote repository
type Job struct {
	ID           uuid.UUID        `json:"id"`
	Status       JobStatus        `json:"status"`
	RepoURL      string           `json:"repo_url"`
	Branch       string           `json:"branch,omitempty"`
	CommitSHA    *string          `json:"commit_sha,omitempty"`
	Result       *json.RawMessage `json:"result,omitempty"`
	ErrorMessage *string          `json:"error_message,omitempty"`
	Attempts     int              `json:"attempts"`
	MaxAttempts  int              `json:"max_attempts"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	LockedUntil  *time.Time       `json:"locked_until,omitempty"`
	WorkerID     *string          `json:"worker_id,omitempty"`
}

// NewJob creates a pending scan job
func NewJob(repoURL, branch string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:          uuid.New(),
		Status:      StatusPending,
		RepoURL:     repoURL,
		Branch:      branch,
		MaxAttempts: 3,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Done reports whether the job reached a final state
func (j *Job) Done() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// CanRetry returns true if another attempt is allowed
func (j *Job) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}

// SetResult marshals and sets the result
func (j *Job) SetResult(result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	raw := json.RawMessage(data)
	j.Result = &raw
	return nil
}

// GetResult unmarshals the result into v. A job without a result leaves v untouched.
func (j *Job) GetResult(v any) error {
	if j.Result == nil {
		return nil
	}
	return json.Unmarshal(*j.Result, v)
}

// JobMessage is the message sent via NATS when a scan is requested
type JobMessage struct {
	JobID uuid.UUID `json:"job_id"`
}

// Encode serializes the job message to JSON
func (m *JobMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeJobMessage deserializes a job message from JSON
func DecodeJobMessage(data []byte) (*JobMessage, error) {
	var m JobMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode job message: %w", err)
	}
	if m.JobID == uuid.Nil {
		return nil, fmt.Errorf("job message without job_id")
	}
	return &m, nil
}
