package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/EcoCode-hq/ecocode/internal/analysis"
	"github.com/EcoCode-hq/ecocode/internal/cache"
	"github.com/EcoCode-hq/ecocode/internal/config"
	"github.com/EcoCode-hq/ecocode/internal/db"
	"github.com/EcoCode-hq/ecocode/internal/nats"
)

const nestedSource = "def nested(xs):\n    for x in xs:\n        for y in xs:\n            print(x, y)\n"

// fakeStore is an in-memory ReportStore
type fakeStore struct {
	mu        sync.Mutex
	reports   map[uuid.UUID]*db.Report
	order     []uuid.UUID
	pingErr   error
	saveErr   error
	lastLimit int
}

func newFakeStore() *fakeStore {
	return &fakeStore{reports: make(map[uuid.UUID]*db.Report)}
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeStore) SaveReport(ctx context.Context, r *db.Report) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	f.reports[r.ID] = r
	f.order = append(f.order, r.ID)
	return nil
}

func (f *fakeStore) GetReport(ctx context.Context, id uuid.UUID) (*db.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reports[id], nil
}

func (f *fakeStore) ListReports(ctx context.Context, limit int) ([]*db.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	var out []*db.Report
	for i := len(f.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.reports[f.order[i]])
	}
	return out, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []nats.ReportEvent
}

func (f *fakeEvents) PublishReport(ctx context.Context, ev nats.ReportEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

type countingAnalyzer struct {
	inner Analyzer
	calls int
}

func (c *countingAnalyzer) Analyze(ctx context.Context, source, filename string) *analysis.Result {
	c.calls++
	return c.inner.Analyze(ctx, source, filename)
}

func testConfig() *config.Config {
	defaults := analysis.DefaultOptions()
	return &config.Config{
		Port: 8000,
		Env:  "test",
		Analysis: config.AnalysisConfig{
			ElectricityRatePerKWh: defaults.ElectricityRatePerKWh,
			JoulesPerScorePoint:   defaults.JoulesPerScorePoint,
			ExpensiveCalls:        defaults.ExpensiveCalls,
			MaxSourceBytes:        defaults.MaxSourceBytes,
			MaxTreeDepth:          defaults.MaxDepth,
		},
		CacheTTL: time.Minute,
	}
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) *Server {
	t.Helper()
	return newTestServerWith(t, cfg, analysis.NewAnalyzer(cfg.AnalysisOptions(), nil), opts...)
}

func newTestServerWith(t *testing.T, cfg *config.Config, a Analyzer, opts ...Option) *Server {
	t.Helper()
	s, err := NewServer(cfg, a, opts...)
	if err != nil {
		t.Fatalf("NewServer() error: %v", err)
	}
	return s
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func analyzeBody(t *testing.T, code, filename any) string {
	t.Helper()
	body := map[string]any{"code": code}
	if filename != nil {
		body["filename"] = filename
	}
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

type analyzeResponse struct {
	Summary  analysis.Summary   `json:"summary"`
	Hotspots []analysis.Hotspot `json:"hotspots"`
	Error    *analysis.Error    `json:"error"`
	ReportID *string            `json:"report_id"`
}

func decodeAnalyze(t *testing.T, rr *httptest.ResponseRecorder) analyzeResponse {
	t.Helper()
	var resp analyzeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v\n%s", err, rr.Body.String())
	}
	return resp
}

func TestRoot(t *testing.T) {
	s := newTestServer(t, testConfig())
	rr := do(s, "GET", "/", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("root returned status %d, want %d", rr.Code, http.StatusOK)
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp["status"] != "ok" || resp["message"] != "EcoCode backend running" {
		t.Errorf("root response = %v", resp)
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, testConfig())
	rr := do(s, "GET", "/health", "")

	if rr.Code != http.StatusOK {
		t.Errorf("healthCheck returned status %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestReadyCheck(t *testing.T) {
	t.Run("without store", func(t *testing.T) {
		s := newTestServer(t, testConfig())
		if rr := do(s, "GET", "/ready", ""); rr.Code != http.StatusOK {
			t.Errorf("readyCheck returned status %d, want %d", rr.Code, http.StatusOK)
		}
	})

	t.Run("store reachable", func(t *testing.T) {
		s := newTestServer(t, testConfig(), WithStore(newFakeStore()))
		if rr := do(s, "GET", "/ready", ""); rr.Code != http.StatusOK {
			t.Errorf("readyCheck returned status %d, want %d", rr.Code, http.StatusOK)
		}
	})

	t.Run("store down", func(t *testing.T) {
		store := newFakeStore()
		store.pingErr = errors.New("connection refused")
		s := newTestServer(t, testConfig(), WithStore(store))
		if rr := do(s, "GET", "/ready", ""); rr.Code != http.StatusServiceUnavailable {
			t.Errorf("readyCheck returned status %d, want %d", rr.Code, http.StatusServiceUnavailable)
		}
	})
}

func TestCorsMiddleware(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("sets CORS headers", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Error("Access-Control-Allow-Origin header not set")
		}
		if rr.Header().Get("Access-Control-Allow-Methods") == "" {
			t.Error("Access-Control-Allow-Methods header not set")
		}
		if rr.Header().Get("Access-Control-Allow-Headers") == "" {
			t.Error("Access-Control-Allow-Headers header not set")
		}
	})

	t.Run("echoes origin with credentials", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Access-Control-Allow-Origin = %s, want http://localhost:3000", got)
		}
		if rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
			t.Error("Access-Control-Allow-Credentials header not set")
		}
	})

	t.Run("OPTIONS request returns 200", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/test", nil)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("OPTIONS returned status %d, want %d", rr.Code, http.StatusOK)
		}
	})
}

func TestPreflightThroughRouter(t *testing.T) {
	s := newTestServer(t, testConfig())
	rr := do(s, "OPTIONS", "/analyze", "")

	if rr.Code != http.StatusOK {
		t.Errorf("OPTIONS /analyze returned status %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestRespondJSON(t *testing.T) {
	rr := httptest.NewRecorder()

	respondJSON(rr, http.StatusCreated, map[string]string{"key": "value"})

	if rr.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusCreated)
	}
	if rr.Header().Get("Content-Type") != "application/json" {
		t.Error("Content-Type should be application/json")
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if resp["key"] != "value" {
		t.Errorf("key = %s, want value", resp["key"])
	}
}

func TestRespondJSON_NilData(t *testing.T) {
	rr := httptest.NewRecorder()

	respondJSON(rr, http.StatusNoContent, nil)

	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNoContent)
	}
	if rr.Body.Len() != 0 {
		t.Error("body should be empty for nil data")
	}
}

func TestRespondError(t *testing.T) {
	rr := httptest.NewRecorder()

	respondError(rr, http.StatusBadRequest, "invalid input")

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if resp["error"] != "invalid input" {
		t.Errorf("error = %s, want 'invalid input'", resp["error"])
	}
}

func TestAnalyze(t *testing.T) {
	s := newTestServer(t, testConfig())
	rr := do(s, "POST", "/analyze", analyzeBody(t, nestedSource, "jobs.py"))

	if rr.Code != http.StatusOK {
		t.Fatalf("analyze returned status %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeAnalyze(t, rr)
	if resp.Summary.Filename != "jobs.py" {
		t.Errorf("filename = %s, want jobs.py", resp.Summary.Filename)
	}
	if resp.Summary.FunctionCount != 1 || resp.Summary.HotspotCount != 1 {
		t.Errorf("counts = %d/%d, want 1/1", resp.Summary.FunctionCount, resp.Summary.HotspotCount)
	}
	if len(resp.Hotspots) != 1 {
		t.Fatalf("len(hotspots) = %d, want 1", len(resp.Hotspots))
	}

	h := resp.Hotspots[0]
	if h.Name != "nested" || h.Score != 39 {
		t.Errorf("hotspot = %s/%d, want nested/39", h.Name, h.Score)
	}
	if h.Category != analysis.CategoryCPU {
		t.Errorf("category = %s, want CPU", h.Category)
	}
	if resp.Error != nil {
		t.Errorf("error = %+v, want none", resp.Error)
	}
	if resp.ReportID != nil {
		t.Error("report_id should be absent without history")
	}
}

func TestAnalyze_DefaultFilename(t *testing.T) {
	s := newTestServer(t, testConfig())

	tests := []struct {
		name string
		body string
	}{
		{"omitted", analyzeBody(t, "x = 1\n", nil)},
		{"null", `{"code": "x = 1\n", "filename": null}`},
		{"empty", analyzeBody(t, "x = 1\n", "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(s, "POST", "/analyze", tt.body)
			if rr.Code != http.StatusOK {
				t.Fatalf("analyze returned status %d", rr.Code)
			}
			if got := decodeAnalyze(t, rr).Summary.Filename; got != "main.py" {
				t.Errorf("filename = %s, want main.py", got)
			}
		})
	}
}

func TestAnalyze_BadRequests(t *testing.T) {
	s := newTestServer(t, testConfig())

	tests := []struct {
		name string
		body string
	}{
		{"missing code", `{"filename": "a.py"}`},
		{"null code", `{"code": null}`},
		{"invalid JSON", `{"code": `},
		{"wrong type", `{"code": 42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(s, "POST", "/analyze", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("analyze returned status %d, want %d", rr.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestAnalyze_EmptyCode(t *testing.T) {
	s := newTestServer(t, testConfig())
	rr := do(s, "POST", "/analyze", analyzeBody(t, "", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("analyze returned status %d, want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), `"hotspots":[]`) {
		t.Errorf("hotspots should encode as an empty array: %s", rr.Body.String())
	}
}

func TestAnalyze_SyntaxError(t *testing.T) {
	s := newTestServer(t, testConfig())
	rr := do(s, "POST", "/analyze", analyzeBody(t, "def broken(:\n    pass\n", "bad.py"))

	if rr.Code != http.StatusOK {
		t.Fatalf("analyze returned status %d, want %d", rr.Code, http.StatusOK)
	}

	resp := decodeAnalyze(t, rr)
	if resp.Error == nil {
		t.Fatal("error should be set for invalid source")
	}
	if resp.Error.Kind != "SyntaxError" {
		t.Errorf("error kind = %s, want SyntaxError", resp.Error.Kind)
	}
	if resp.Summary.FunctionCount != 0 || len(resp.Hotspots) != 0 {
		t.Error("failed analysis should report nothing")
	}
	if !strings.Contains(rr.Body.String(), `"hotspots":[]`) {
		t.Errorf("hotspots should encode as an empty array: %s", rr.Body.String())
	}
}

func TestAnalyze_BodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Analysis.MaxSourceBytes = 10
	s := newTestServer(t, cfg)

	rr := do(s, "POST", "/analyze", analyzeBody(t, strings.Repeat("x", 10000), nil))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("analyze returned status %d, want %d", rr.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestAnalyze_SourceLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Analysis.MaxSourceBytes = 100
	s := newTestServer(t, cfg)

	rr := do(s, "POST", "/analyze", analyzeBody(t, strings.Repeat("x = 1\n", 50), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("analyze returned status %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decodeAnalyze(t, rr)
	if resp.Error == nil || resp.Error.Kind != "LimitExceeded" {
		t.Errorf("error = %+v, want LimitExceeded", resp.Error)
	}
}

func TestAnalyze_UsesCache(t *testing.T) {
	cfg := testConfig()
	c := cache.NewMemoryCache(10, time.Minute)
	t.Cleanup(c.Close)

	counting := &countingAnalyzer{inner: analysis.NewAnalyzer(cfg.AnalysisOptions(), nil)}
	s := newTestServerWith(t, cfg, counting, WithCache(c))

	body := analyzeBody(t, nestedSource, "a.py")
	first := do(s, "POST", "/analyze", body)
	second := do(s, "POST", "/analyze", body)

	if counting.calls != 1 {
		t.Errorf("analyzer calls = %d, want 1", counting.calls)
	}
	if first.Body.String() != second.Body.String() {
		t.Error("cached response should match the original")
	}

	// a different filename is a different key
	do(s, "POST", "/analyze", analyzeBody(t, nestedSource, "b.py"))
	if counting.calls != 2 {
		t.Errorf("analyzer calls = %d, want 2", counting.calls)
	}
}

func TestAnalyze_RecordsReport(t *testing.T) {
	store := newFakeStore()
	events := &fakeEvents{}
	s := newTestServer(t, testConfig(), WithStore(store), WithEvents(events))

	rr := do(s, "POST", "/analyze", analyzeBody(t, nestedSource, "jobs.py"))
	if rr.Code != http.StatusOK {
		t.Fatalf("analyze returned status %d", rr.Code)
	}

	resp := decodeAnalyze(t, rr)
	if resp.ReportID == nil {
		t.Fatal("report_id should be set with history enabled")
	}

	id, err := uuid.Parse(*resp.ReportID)
	if err != nil {
		t.Fatalf("report_id is not a UUID: %v", err)
	}

	stored := store.reports[id]
	if stored == nil {
		t.Fatal("report was not saved")
	}
	if stored.Filename != "jobs.py" || stored.TopScore != 39 {
		t.Errorf("stored report = %+v", stored)
	}

	if len(events.events) != 1 {
		t.Fatalf("published %d events, want 1", len(events.events))
	}
	ev := events.events[0]
	if ev.ReportID != id.String() || ev.TopScore != 39 || ev.SourceHash != stored.SourceHash {
		t.Errorf("event = %+v", ev)
	}
}

func TestAnalyze_StoreFailure(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("disk full")
	events := &fakeEvents{}
	s := newTestServer(t, testConfig(), WithStore(store), WithEvents(events))

	rr := do(s, "POST", "/analyze", analyzeBody(t, nestedSource, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("analyze returned status %d, want %d", rr.Code, http.StatusOK)
	}
	if decodeAnalyze(t, rr).ReportID != nil {
		t.Error("report_id should be absent when saving fails")
	}
	if len(events.events) != 1 || events.events[0].ReportID != "" {
		t.Errorf("event should still publish without a report id: %+v", events.events)
	}
}

func TestAnalyze_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRPS = 0.001
	cfg.RateLimitBurst = 1
	s := newTestServer(t, cfg)

	body := analyzeBody(t, "x = 1\n", nil)
	if rr := do(s, "POST", "/analyze", body); rr.Code != http.StatusOK {
		t.Fatalf("first request status %d, want %d", rr.Code, http.StatusOK)
	}

	rr := do(s, "POST", "/analyze", body)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status %d, want %d", rr.Code, http.StatusTooManyRequests)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header not set")
	}

	// other routes are not limited
	if rr := do(s, "GET", "/health", ""); rr.Code != http.StatusOK {
		t.Errorf("health returned status %d under rate limit", rr.Code)
	}
}

func TestReports_Disabled(t *testing.T) {
	s := newTestServer(t, testConfig())

	for _, path := range []string{"/reports", "/reports/" + uuid.NewString()} {
		if rr := do(s, "GET", path, ""); rr.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s returned status %d, want %d", path, rr.Code, http.StatusServiceUnavailable)
		}
	}
}

func TestGetReport(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, testConfig(), WithStore(store))

	rr := do(s, "POST", "/analyze", analyzeBody(t, nestedSource, "jobs.py"))
	id := *decodeAnalyze(t, rr).ReportID

	t.Run("found", func(t *testing.T) {
		rr := do(s, "GET", "/reports/"+id, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("getReport returned status %d, want %d", rr.Code, http.StatusOK)
		}

		var report db.Report
		if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
			t.Fatal(err)
		}
		if report.ID.String() != id || report.Filename != "jobs.py" {
			t.Errorf("report = %+v", report)
		}
		if len(report.Result) == 0 {
			t.Error("report should carry the analysis result")
		}
	})

	t.Run("invalid ID", func(t *testing.T) {
		if rr := do(s, "GET", "/reports/not-a-uuid", ""); rr.Code != http.StatusBadRequest {
			t.Errorf("getReport returned status %d, want %d", rr.Code, http.StatusBadRequest)
		}
	})

	t.Run("unknown ID", func(t *testing.T) {
		if rr := do(s, "GET", "/reports/"+uuid.NewString(), ""); rr.Code != http.StatusNotFound {
			t.Errorf("getReport returned status %d, want %d", rr.Code, http.StatusNotFound)
		}
	})
}

func TestListReports(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, testConfig(), WithStore(store))

	t.Run("empty", func(t *testing.T) {
		rr := do(s, "GET", "/reports", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("listReports returned status %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `"reports":[]`) {
			t.Errorf("empty listing should encode as an array: %s", rr.Body.String())
		}
		if store.lastLimit != defaultReportLimit {
			t.Errorf("limit = %d, want %d", store.lastLimit, defaultReportLimit)
		}
	})

	for _, name := range []string{"a.py", "b.py", "c.py"} {
		do(s, "POST", "/analyze", analyzeBody(t, "x = 1\n", name))
	}

	t.Run("limit", func(t *testing.T) {
		rr := do(s, "GET", "/reports?limit=2", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("listReports returned status %d", rr.Code)
		}

		var resp ReportListResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Count != 2 || len(resp.Reports) != 2 {
			t.Fatalf("count = %d, want 2", resp.Count)
		}
		if resp.Reports[0].Filename != "c.py" {
			t.Errorf("newest report = %s, want c.py", resp.Reports[0].Filename)
		}
	})

	t.Run("limit capped", func(t *testing.T) {
		do(s, "GET", "/reports?limit=5000", "")
		if store.lastLimit != maxReportLimit {
			t.Errorf("limit = %d, want %d", store.lastLimit, maxReportLimit)
		}
	})

	t.Run("invalid limit", func(t *testing.T) {
		for _, q := range []string{"abc", "0", "-3"} {
			if rr := do(s, "GET", "/reports?limit="+q, ""); rr.Code != http.StatusBadRequest {
				t.Errorf("limit=%s returned status %d, want %d", q, rr.Code, http.StatusBadRequest)
			}
		}
	})
}
