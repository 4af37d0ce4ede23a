package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/EcoCode-hq/ecocode/internal/db"
)

const (
	defaultReportLimit = 20
	maxReportLimit     = 100
)

// ReportListResponse is the response body for GET /reports
type ReportListResponse struct {
	Reports []*db.Report `json:"reports"`
	Count   int          `json:"count"`
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "report history not available")
		return
	}

	limit := defaultReportLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxReportLimit)
	}

	reports, err := s.store.ListReports(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list reports")
		respondError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if reports == nil {
		reports = []*db.Report{}
	}

	respondJSON(w, http.StatusOK, ReportListResponse{Reports: reports, Count: len(reports)})
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "report history not available")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "reportID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid report ID")
		return
	}

	report, err := s.store.GetReport(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("report_id", id.String()).Msg("failed to get report")
		respondError(w, http.StatusInternalServerError, "failed to get report")
		return
	}
	if report == nil {
		respondError(w, http.StatusNotFound, "report not found")
		return
	}

	respondJSON(w, http.StatusOK, report)
}
