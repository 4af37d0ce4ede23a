package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/EcoCode-hq/ecocode/internal/jobs"
)

// Stream names
const (
	StreamReports = "ECOCODE_REPORTS"
	StreamScans   = "ECOCODE_SCANS"
)

// ConsumerScanWorkers is the durable consumer shared by all scan workers
const ConsumerScanWorkers = "scan-workers"

// Subjects
const (
	// SubjectReportsAll matches all report subjects
	SubjectReportsAll = "reports.>"

	// SubjectReportAnalyzed is published after every analysis
	SubjectReportAnalyzed = "reports.analyzed"

	// SubjectScanRequested carries queued repository scans
	SubjectScanRequested = "scans.requested"
)

// ReportEvent announces a finished analysis
type ReportEvent struct {
	ReportID      string    `json:"report_id,omitempty"`
	Filename      string    `json:"filename"`
	SourceHash    string    `json:"source_hash"`
	FunctionCount int       `json:"function_count"`
	HotspotCount  int       `json:"hotspot_count"`
	TopScore      int       `json:"top_score"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	AnalyzedAt    time.Time `json:"analyzed_at"`
}

// DefaultStreamConfig returns the stream configuration for report events
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name:        StreamReports,
		Subjects:    []string{SubjectReportsAll},
		MaxMsgs:     100000,
		MaxBytes:    1024 * 1024 * 100, // 100MB
		MaxAge:      7 * 24 * time.Hour,
		Replicas:    1,
		Description: "EcoCode analysis report events",
	}
}

// ScanStreamConfig returns the work queue configuration for scan requests
func ScanStreamConfig() StreamConfig {
	return StreamConfig{
		Name:        StreamScans,
		Subjects:    []string{SubjectScanRequested},
		MaxMsgs:     10000,
		MaxAge:      24 * time.Hour,
		Replicas:    1,
		Description: "EcoCode repository scan requests",
		WorkQueue:   true,
	}
}

// SetupStreams creates the report events and scan request streams
func (c *Client) SetupStreams(ctx context.Context) error {
	for _, cfg := range []StreamConfig{DefaultStreamConfig(), ScanStreamConfig()} {
		if _, err := c.CreateStream(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

// ScanConsumer returns the shared durable consumer for scan requests
func (c *Client) ScanConsumer(ctx context.Context) (jetstream.Consumer, error) {
	return c.CreateConsumer(ctx, StreamScans, ConsumerScanWorkers, SubjectScanRequested)
}

// PublishScanRequest queues a scan job for the workers
func (c *Client) PublishScanRequest(ctx context.Context, jobID uuid.UUID) error {
	msg := &jobs.JobMessage{JobID: jobID}
	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode scan request: %w", err)
	}

	ack, err := c.Publish(ctx, SubjectScanRequested, data)
	if err != nil {
		return err
	}

	log.Debug().
		Str("job_id", jobID.String()).
		Uint64("seq", ack.Sequence).
		Msg("published scan request")

	return nil
}

// PublishReport publishes a report event on reports.analyzed
func (c *Client) PublishReport(ctx context.Context, ev ReportEvent) error {
	if ev.AnalyzedAt.IsZero() {
		ev.AnalyzedAt = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode report event: %w", err)
	}

	ack, err := c.Publish(ctx, SubjectReportAnalyzed, data)
	if err != nil {
		return err
	}

	log.Debug().
		Str("filename", ev.Filename).
		Uint64("seq", ack.Sequence).
		Msg("published report event")

	return nil
}

// ConsumeReports delivers report events to fn through a durable consumer
// until ctx is cancelled. Messages fn fails on are redelivered; undecodable
// messages are terminated.
func (c *Client) ConsumeReports(ctx context.Context, consumerName string, fn func(ReportEvent) error) error {
	consumer, err := c.CreateConsumer(ctx, StreamReports, consumerName, SubjectReportAnalyzed)
	if err != nil {
		return err
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		ev, err := DecodeReportEvent(msg.Data())
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed report event")
			_ = msg.Term()
			return
		}

		if err := fn(ev); err != nil {
			log.Warn().Err(err).Str("filename", ev.Filename).Msg("report event handler failed")
			_ = msg.Nak()
			return
		}

		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", consumerName, err)
	}
	defer cc.Stop()

	<-ctx.Done()
	return nil
}

// DecodeReportEvent parses an event payload
func DecodeReportEvent(data []byte) (ReportEvent, error) {
	var ev ReportEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ReportEvent{}, fmt.Errorf("failed to decode report event: %w", err)
	}
	return ev, nil
}
