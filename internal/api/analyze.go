package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/EcoCode-hq/ecocode/internal/analysis"
	"github.com/EcoCode-hq/ecocode/internal/cache"
	"github.com/EcoCode-hq/ecocode/internal/db"
	"github.com/EcoCode-hq/ecocode/internal/nats"
)

// AnalyzeRequest is the request body for POST /analyze
type AnalyzeRequest struct {
	Code     *string `json:"code"`
	Filename *string `json:"filename"`
}

// AnalyzeResponse is the analysis result, tagged with its stored report
type AnalyzeResponse struct {
	*analysis.Result
	ReportID *uuid.UUID `json:"report_id,omitempty"`
}

// maxBodyBytes bounds the request body. JSON escaping can grow source text
// several times over, so the cap is looser than the source limit itself.
func (s *Server) maxBodyBytes() int64 {
	limit := int64(analysis.DefaultOptions().MaxSourceBytes)
	if s.cfg != nil && s.cfg.Analysis.MaxSourceBytes > 0 {
		limit = int64(s.cfg.Analysis.MaxSourceBytes)
	}
	return limit*6 + 4096
}

// analyze scores the submitted source. Once the body decodes the response is
// always 200; parse failures travel in the result's error field.
func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes())

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Code == nil {
		respondError(w, http.StatusBadRequest, "code is required")
		return
	}

	filename := analysis.DefaultFilename
	if req.Filename != nil && *req.Filename != "" {
		filename = *req.Filename
	}

	ctx := r.Context()
	key := cache.Key(filename, *req.Code)

	res, hit := s.cache.Get(ctx, key)
	if !hit {
		res = s.analyzer.Analyze(ctx, *req.Code, filename)
		if err := s.cache.Set(ctx, key, res, s.cacheTTL()); err != nil {
			log.Warn().Err(err).Msg("failed to cache result")
		}
	}

	resp := AnalyzeResponse{Result: res}
	resp.ReportID = s.record(ctx, *req.Code, res)

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) cacheTTL() time.Duration {
	if s.cfg == nil {
		return 0
	}
	return s.cfg.CacheTTL
}

// record saves the report and publishes its event when those are enabled.
// Failures are logged; the caller still gets its analysis.
func (s *Server) record(ctx context.Context, source string, res *analysis.Result) *uuid.UUID {
	if s.store == nil && s.events == nil {
		return nil
	}

	hash := cache.SourceHash(source)
	var reportID *uuid.UUID

	if s.store != nil {
		report, err := db.NewReport(hash, res)
		if err == nil {
			err = s.store.SaveReport(ctx, report)
		}
		if err != nil {
			log.Error().Err(err).Str("filename", res.Summary.Filename).Msg("failed to save report")
		} else {
			reportID = &report.ID
		}
	}

	if s.events != nil {
		ev := nats.ReportEvent{
			Filename:      res.Summary.Filename,
			SourceHash:    hash,
			FunctionCount: res.Summary.FunctionCount,
			HotspotCount:  res.Summary.HotspotCount,
			TopScore:      res.TopScore(),
		}
		if reportID != nil {
			ev.ReportID = reportID.String()
		}
		if res.Error != nil {
			ev.ErrorKind = string(res.Error.Kind)
		}
		if err := s.events.PublishReport(ctx, ev); err != nil {
			log.Warn().Err(err).Str("filename", ev.Filename).Msg("failed to publish report event")
		}
	}

	return reportID
}
