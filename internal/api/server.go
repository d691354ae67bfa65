// Package api exposes the HTTP interface for the import service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rodforge/supplier-import/internal/config"
	"github.com/rodforge/supplier-import/internal/importer"
	"github.com/rodforge/supplier-import/internal/job"
	"github.com/rodforge/supplier-import/internal/metrics"
)

// Server wires HTTP handlers to the orchestrator.
type Server struct {
	router chi.Router
	orch   *job.Orchestrator
	logger *zap.Logger
	cfg    config.Config
}

// NewServer constructs a Server with middleware and routes.
func NewServer(orch *job.Orchestrator, logger *zap.Logger, cfg config.Config) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		orch:   orch,
		logger: logger,
		cfg:    cfg,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/imports", func(r chi.Router) {
			r.Post("/", s.submitImport)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/status", s.getImportStatus)
				r.Post("/cancel", s.cancelImport)
			})
		})
		r.Post("/preview", s.preview)
		r.Put("/templates/{template_id}/aliases", s.putAlias)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type importRequest struct {
	TemplateID      string   `json:"template_id"`
	ScraperID       string   `json:"scraper_id"`
	URLs            []string `json:"urls"`
	SkipSuccessful  bool     `json:"skip_successful"`
	TimeoutSeconds  int      `json:"timeout_seconds"`
	MaxPageBytes    int      `json:"max_page_bytes"`
	TokensPerSecond float64  `json:"tokens_per_second"`
	BucketCapacity  int      `json:"bucket_capacity"`
}

func (s *Server) submitImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.TemplateID == "" {
		writeError(w, http.StatusBadRequest, "template_id required")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one URL required")
		return
	}
	params := importer.ImportParams{
		TemplateID:      req.TemplateID,
		ScraperID:       req.ScraperID,
		URLs:            req.URLs,
		SkipSuccessful:  req.SkipSuccessful,
		TimeoutSeconds:  req.TimeoutSeconds,
		MaxPageBytes:    req.MaxPageBytes,
		TokensPerSecond: req.TokensPerSecond,
		BucketCapacity:  req.BucketCapacity,
	}
	jobID, err := s.orch.Enqueue(r.Context(), params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(importer.JobStatusQueued),
	})
}

func (s *Server) getImportStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	j, err := s.orch.GetStatus(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, importer.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": j})
}

func (s *Server) cancelImport(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	alreadyFinished, err := s.orch.Cancel(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, importer.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":           jobID,
		"already_finished": alreadyFinished,
	})
}

type previewRequest struct {
	TemplateID string `json:"template_id"`
	ScraperID  string `json:"scraper_id"`
	URL        string `json:"url"`
}

func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.TemplateID == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "template_id and url required")
		return
	}
	result, err := s.orch.Preview(r.Context(), req.TemplateID, req.ScraperID, req.URL)
	if err != nil {
		if errors.Is(err, importer.ErrNotFound) {
			writeError(w, http.StatusNotFound, "template not found")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type aliasRequest struct {
	Label    string `json:"label"`
	FieldKey string `json:"field_key"`
}

func (s *Server) putAlias(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "template_id")
	var req aliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Label == "" || req.FieldKey == "" {
		writeError(w, http.StatusBadRequest, "label and field_key required")
		return
	}
	if err := s.orch.CorrectAlias(r.Context(), templateID, req.Label, req.FieldKey); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"template_id": templateID,
		"label":       req.Label,
		"field_key":   req.FieldKey,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
