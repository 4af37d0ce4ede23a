package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/EcoCode-hq/ecocode/internal/analysis"
)

// Schema creates the report history table
const Schema = `
CREATE TABLE IF NOT EXISTS reports (
	id UUID PRIMARY KEY,
	filename TEXT NOT NULL,
	source_hash TEXT NOT NULL,
	function_count INTEGER NOT NULL DEFAULT 0,
	hotspot_count INTEGER NOT NULL DEFAULT 0,
	top_score INTEGER NOT NULL DEFAULT 0,
	error_kind TEXT,
	result JSONB NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_reports_source_hash ON reports(source_hash);
`

// Report is a stored analysis result
type Report struct {
	ID            uuid.UUID       `json:"id"`
	Filename      string          `json:"filename"`
	SourceHash    string          `json:"source_hash"`
	FunctionCount int             `json:"function_count"`
	HotspotCount  int             `json:"hotspot_count"`
	TopScore      int             `json:"top_score"`
	ErrorKind     *string         `json:"error_kind,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewReport builds a report record from an analysis result
func NewReport(sourceHash string, res *analysis.Result) (*Report, error) {
	if res == nil {
		return nil, fmt.Errorf("nil result")
	}

	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	r := &Report{
		Filename:      res.Summary.Filename,
		SourceHash:    sourceHash,
		FunctionCount: res.Summary.FunctionCount,
		HotspotCount:  res.Summary.HotspotCount,
		TopScore:      res.TopScore(),
		Result:        data,
	}
	if res.Error != nil {
		kind := string(res.Error.Kind)
		r.ErrorKind = &kind
	}

	return r, nil
}

// ReportStore persists analysis reports in Postgres
type ReportStore struct {
	pool *pgxpool.Pool
}

// NewReportStore creates a new store
func NewReportStore(db *DB) *ReportStore {
	return &ReportStore{pool: db.Pool()}
}

// Ping verifies database connectivity
func (s *ReportStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveReport inserts a report, assigning its ID and creation time
func (s *ReportStore) SaveReport(ctx context.Context, r *Report) error {
	r.ID = uuid.New()
	r.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO reports (id, filename, source_hash, function_count, hotspot_count, top_score, error_kind, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.ID, r.Filename, r.SourceHash, r.FunctionCount, r.HotspotCount, r.TopScore, r.ErrorKind, r.Result, r.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	return nil
}

// GetReport gets a report by ID. A missing report returns nil, nil.
func (s *ReportStore) GetReport(ctx context.Context, id uuid.UUID) (*Report, error) {
	r := &Report{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, filename, source_hash, function_count, hotspot_count, top_score, error_kind, result, created_at
		FROM reports WHERE id = $1
	`, id).Scan(&r.ID, &r.Filename, &r.SourceHash, &r.FunctionCount, &r.HotspotCount,
		&r.TopScore, &r.ErrorKind, &r.Result, &r.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	return r, nil
}

// ListReports returns the most recent reports without their result payload
func (s *ReportStore) ListReports(ctx context.Context, limit int) ([]*Report, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, filename, source_hash, function_count, hotspot_count, top_score, error_kind, created_at
		FROM reports ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		r := &Report{}
		if err := rows.Scan(&r.ID, &r.Filename, &r.SourceHash, &r.FunctionCount, &r.HotspotCount,
			&r.TopScore, &r.ErrorKind, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	return reports, nil
}
