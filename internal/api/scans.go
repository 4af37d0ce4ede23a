package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/EcoCode-hq/ecocode/internal/jobs"
	"github.com/EcoCode-hq/ecocode/internal/repo"
)

// ScanRequest is the request body for POST /scans
type ScanRequest struct {
	RepoURL string `json:"repo_url"`
	Branch  string `json:"branch,omitempty"`
}

// ScanListResponse is the response body for GET /scans
type ScanListResponse struct {
	Scans []*jobs.Job `json:"scans"`
	Count int         `json:"count"`
}

func (s *Server) createScan(w http.ResponseWriter, r *http.Request) {
	if s.scans == nil {
		respondError(w, http.StatusServiceUnavailable, "repository scans not available")
		return
	}

	var req ScanRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RepoURL == "" {
		respondError(w, http.StatusBadRequest, "repo_url is required")
		return
	}
	if _, err := repo.ParseRepoURL(req.RepoURL); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := jobs.NewJob(req.RepoURL, req.Branch)
	if err := s.scans.Create(r.Context(), job); err != nil {
		log.Error().Err(err).Str("repo_url", req.RepoURL).Msg("failed to create scan job")
		respondError(w, http.StatusInternalServerError, "failed to queue scan")
		return
	}

	// workers also poll the database, so a lost message only delays the scan
	if s.queue != nil {
		if err := s.queue.PublishScanRequest(r.Context(), job.ID); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("failed to publish scan request")
		}
	}

	log.Info().Str("job_id", job.ID.String()).Str("repo_url", job.RepoURL).Msg("scan queued")

	w.Header().Set("Location", "/scans/"+job.ID.String())
	respondJSON(w, http.StatusAccepted, job)
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	if s.scans == nil {
		respondError(w, http.StatusServiceUnavailable, "repository scans not available")
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

	scans, err := s.scans.ListRecent(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list scans")
		respondError(w, http.StatusInternalServerError, "failed to list scans")
		return
	}
	if scans == nil {
		scans = []*jobs.Job{}
	}

	respondJSON(w, http.StatusOK, ScanListResponse{Scans: scans, Count: len(scans)})
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	if s.scans == nil {
		respondError(w, http.StatusServiceUnavailable, "repository scans not available")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "scanID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid scan ID")
		return
	}

	job, err := s.scans.GetByID(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("job_id", id.String()).Msg("failed to get scan")
		respondError(w, http.StatusInternalServerError, "failed to get scan")
		return
	}
	if job == nil {
		respondError(w, http.StatusNotFound, "scan not found")
		return
	}

	respondJSON(w, http.StatusOK, job)
}
