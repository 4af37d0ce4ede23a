package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/EcoCode-hq/ecocode/internal/analysis"
	"github.com/EcoCode-hq/ecocode/internal/cache"
	"github.com/EcoCode-hq/ecocode/internal/config"
	"github.com/EcoCode-hq/ecocode/internal/db"
	"github.com/EcoCode-hq/ecocode/internal/jobs"
	"github.com/EcoCode-hq/ecocode/internal/nats"
)

// Analyzer scores submitted source
type Analyzer interface {
	Analyze(ctx context.Context, source, filename string) *analysis.Result
}

// ReportStore persists analysis reports
type ReportStore interface {
	Ping(ctx context.Context) error
	SaveReport(ctx context.Context, r *db.Report) error
	GetReport(ctx context.Context, id uuid.UUID) (*db.Report, error)
	ListReports(ctx context.Context, limit int) ([]*db.Report, error)
}

// EventPublisher announces finished analyses
type EventPublisher interface {
	PublishReport(ctx context.Context, ev nats.ReportEvent) error
}

// ScanStore persists repository scan jobs
type ScanStore interface {
	Create(ctx context.Context, job *jobs.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*jobs.Job, error)
	ListRecent(ctx context.Context, limit int) ([]*jobs.Job, error)
}

// ScanQueue hands scan jobs to the workers
type ScanQueue interface {
	PublishScanRequest(ctx context.Context, jobID uuid.UUID) error
}

// Server represents the API server
type Server struct {
	cfg      *config.Config
	router   *chi.Mux
	analyzer Analyzer
	cache    cache.Cache
	store    ReportStore
	events   EventPublisher
	scans    ScanStore
	queue    ScanQueue
	limiter  *rate.Limiter
}

// Option configures optional server collaborators
type Option func(*Server)

// WithCache puts a result cache in front of the analyzer
func WithCache(c cache.Cache) Option {
	return func(s *Server) { s.cache = c }
}

// WithStore enables report history
func WithStore(store ReportStore) Option {
	return func(s *Server) { s.store = store }
}

// WithEvents enables report events
func WithEvents(events EventPublisher) Option {
	return func(s *Server) { s.events = events }
}

// WithScans enables repository scan jobs. A nil queue leaves the workers to
// find jobs by polling.
func WithScans(store ScanStore, queue ScanQueue) Option {
	return func(s *Server) {
		s.scans = store
		s.queue = queue
	}
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, analyzer Analyzer, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		analyzer: analyzer,
		cache:    cache.NullCache{},
	}

	for _, opt := range opts {
		opt(s)
	}

	if cfg.RateLimitRPS > 0 {
		burst := max(cfg.RateLimitBurst, 1)
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(corsMiddleware)
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.root)
	s.router.Get("/health", s.healthCheck)
	s.router.Get("/ready", s.readyCheck)

	s.router.Post("/analyze", s.withRateLimit(s.analyze))

	s.router.Route("/reports", func(r chi.Router) {
		r.Get("/", s.listReports)
		r.Get("/{reportID}", s.getReport)
	})

	s.router.Route("/scans", func(r chi.Router) {
		r.Post("/", s.withRateLimit(s.createScan))
		r.Get("/", s.listScans)
		r.Get("/{scanID}", s.getScan)
	})
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "EcoCode backend running",
	})
}

// Health check handlers
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.store.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("report store not ready")
			respondError(w, http.StatusServiceUnavailable, "report store unavailable")
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	if data == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
