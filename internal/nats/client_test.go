package nats

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

func TestJetstreamConfig_Defaults(t *testing.T) {
	cfg := jetstreamConfig(StreamConfig{Name: "s", Subjects: []string{"s.>"}})

	if cfg.MaxMsgs != 100000 {
		t.Errorf("MaxMsgs = %d, want 100000", cfg.MaxMsgs)
	}
	if cfg.MaxBytes != 1024*1024*100 {
		t.Errorf("MaxBytes = %d, want %d", cfg.MaxBytes, 1024*1024*100)
	}
	if cfg.MaxAge != 7*24*time.Hour {
		t.Errorf("MaxAge = %v, want 7 days", cfg.MaxAge)
	}
	if cfg.Replicas != 1 {
		t.Errorf("Replicas = %d, want 1", cfg.Replicas)
	}
	if cfg.Retention != jetstream.LimitsPolicy {
		t.Errorf("Retention = %v, want limits", cfg.Retention)
	}
	if cfg.Storage != jetstream.FileStorage {
		t.Errorf("Storage = %v, want file", cfg.Storage)
	}
}

func TestJetstreamConfig_WorkQueue(t *testing.T) {
	cfg := jetstreamConfig(ScanStreamConfig())

	if cfg.Retention != jetstream.WorkQueuePolicy {
		t.Errorf("Retention = %v, want work queue", cfg.Retention)
	}
	if cfg.MaxMsgs != 10000 {
		t.Errorf("MaxMsgs = %d, want 10000", cfg.MaxMsgs)
	}
	if cfg.MaxBytes != 1024*1024*100 {
		t.Errorf("MaxBytes = %d, want default", cfg.MaxBytes)
	}
	if len(cfg.Subjects) != 1 || cfg.Subjects[0] != SubjectScanRequested {
		t.Errorf("Subjects = %v, want [%s]", cfg.Subjects, SubjectScanRequested)
	}
}

func TestJetstreamConfig_KeepsExplicitLimits(t *testing.T) {
	cfg := jetstreamConfig(StreamConfig{
		Name:     "s",
		MaxMsgs:  10,
		MaxBytes: 2048,
		MaxAge:   time.Hour,
		Replicas: 3,
	})

	if cfg.MaxMsgs != 10 || cfg.MaxBytes != 2048 || cfg.MaxAge != time.Hour || cfg.Replicas != 3 {
		t.Errorf("explicit limits overwritten: %+v", cfg)
	}
}

func TestClient_NilState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should return false for nil connection")
	}
	if client.JetStream() != nil {
		t.Error("JetStream() should return nil")
	}
	if client.Conn() != nil {
		t.Error("Conn() should return nil")
	}
	if err := client.HealthCheck(); err == nil {
		t.Error("HealthCheck() should return error for nil connection")
	}
}

func TestClient_CloseIdempotent(t *testing.T) {
	client := &Client{}

	client.Close()
	client.Close()

	if !client.closed {
		t.Error("client should be marked as closed")
	}
}

func TestNewClient_Unreachable(t *testing.T) {
	if _, err := NewClient("nats://127.0.0.1:1", "test"); err == nil {
		t.Error("NewClient() should return error for an unreachable server")
	}
}

func TestClient_NotConnected(t *testing.T) {
	client := &Client{}
	ctx := context.Background()

	if _, err := client.CreateStream(ctx, StreamConfig{Name: "test"}); err == nil {
		t.Error("CreateStream() should return error when not connected")
	}
	if _, err := client.CreateConsumer(ctx, "stream", "consumer", "subject"); err == nil {
		t.Error("CreateConsumer() should return error when not connected")
	}
	if _, err := client.Publish(ctx, "subject", []byte("data")); err == nil {
		t.Error("Publish() should return error when not connected")
	}
	if err := client.SetupStreams(ctx); err == nil {
		t.Error("SetupStreams() should return error when not connected")
	}
	if err := client.PublishReport(ctx, ReportEvent{Filename: "a.py"}); err == nil {
		t.Error("PublishReport() should return error when not connected")
	}
	if err := client.PublishScanRequest(ctx, uuid.New()); err == nil {
		t.Error("PublishScanRequest() should return error when not connected")
	}
	if _, err := client.ScanConsumer(ctx); err == nil {
		t.Error("ScanConsumer() should return error when not connected")
	}
	if err := client.ConsumeReports(ctx, "c", func(ReportEvent) error { return nil }); err == nil {
		t.Error("ConsumeReports() should return error when not connected")
	}
}

func TestDefaultStreamConfig_Values(t *testing.T) {
	cfg := DefaultStreamConfig()

	if cfg.Name != StreamReports {
		t.Errorf("Name = %s, want %s", cfg.Name, StreamReports)
	}
	if len(cfg.Subjects) != 1 || cfg.Subjects[0] != SubjectReportsAll {
		t.Errorf("Subjects = %v, want [%s]", cfg.Subjects, SubjectReportsAll)
	}
	if cfg.Description == "" {
		t.Error("Description should not be empty")
	}
}

func TestDecodeReportEvent(t *testing.T) {
	ev, err := DecodeReportEvent([]byte(`{"filename":"a.py","function_count":2,"hotspot_count":2,"top_score":44}`))
	if err != nil {
		t.Fatalf("DecodeReportEvent() error: %v", err)
	}
	if ev.Filename != "a.py" || ev.TopScore != 44 || ev.FunctionCount != 2 {
		t.Errorf("DecodeReportEvent() = %+v", ev)
	}

	if _, err := DecodeReportEvent([]byte("not json")); err == nil {
		t.Error("DecodeReportEvent() should fail on malformed payload")
	}
}
