package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitewatch/sitewatch/internal/crawl"
)

// crawlJobBudget bounds a background crawl job's lifetime.
const crawlJobBudget = 30 * time.Minute

type crawlRequest struct {
	Seeds    []string `json:"seeds"`
	MaxDepth int      `json:"max_depth"`
}

type countRequest struct {
	URL     string   `json:"url"`
	Phrases []string `json:"phrases"`
}

// submitCrawl handles POST /v1/crawls. The job runs in the background; the
// response carries an id for log correlation.
func (s *Server) submitCrawl(w http.ResponseWriter, r *http.Request) {
	if s.deps.Crawler == nil {
		writeError(w, http.StatusServiceUnavailable, "crawler unavailable")
		return
	}
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Seeds) == 0 {
		writeError(w, http.StatusBadRequest, "at least one seed url required")
		return
	}
	if req.MaxDepth < 0 {
		writeError(w, http.StatusBadRequest, "max_depth must be >= 0")
		return
	}

	jobID := uuid.NewString()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), crawlJobBudget)
		defer cancel()
		err := s.deps.Crawler.Run(ctx, crawl.Request{Seeds: req.Seeds, MaxDepth: req.MaxDepth})
		if err != nil {
			s.logger.Error("crawl job failed", zap.String("job_id", jobID), zap.Error(err))
			return
		}
		s.logger.Info("crawl job complete", zap.String("job_id", jobID))
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

// submitCount handles POST /v1/counts: count phrase occurrences on one page.
func (s *Server) submitCount(w http.ResponseWriter, r *http.Request) {
	if s.deps.Counter == nil {
		writeError(w, http.StatusServiceUnavailable, "occurrence counter unavailable")
		return
	}
	var req countRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	if err := s.deps.Counter.CountOccurrences(r.Context(), req.URL, req.Phrases); err != nil {
		s.logger.Error("count occurrences failed", zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "count failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "counted"})
}

// listPaths handles GET /v1/sites/{site}/paths.
func (s *Server) listPaths(w http.ResponseWriter, r *http.Request) {
	site := chi.URLParam(r, "site")
	paths, err := s.deps.Store.ListPaths(r.Context(), site)
	if err != nil {
		s.logger.Error("list paths failed", zap.String("site", site), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list paths")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"site": site, "paths": paths})
}

// deletePaths handles DELETE /v1/sites/{site}/paths: drop every path record
// and the crawl status for the site.
func (s *Server) deletePaths(w http.ResponseWriter, r *http.Request) {
	site := chi.URLParam(r, "site")
	if err := s.deps.Store.DeletePaths(r.Context(), site); err != nil {
		s.logger.Error("delete paths failed", zap.String("site", site), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete paths")
		return
	}
	if err := s.deps.Store.DeleteStatus(r.Context(), site); err != nil {
		s.logger.Error("delete status failed", zap.String("site", site), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"site": site, "status": "deleted"})
}

// getStatus handles GET /v1/sites/{site}/status.
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	site := chi.URLParam(r, "site")
	status, ok, err := s.deps.Store.GetStatus(r.Context(), site)
	if err != nil {
		s.logger.Error("get status failed", zap.String("site", site), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load status")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no crawl status for site")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"site": site, "status": string(status)})
}

// getFreshness handles GET /v1/sites/{site}/freshness?path=/some/page.
func (s *Server) getFreshness(w http.ResponseWriter, r *http.Request) {
	if s.deps.Freshness == nil {
		writeError(w, http.StatusServiceUnavailable, "freshness checker unavailable")
		return
	}
	site := chi.URLParam(r, "site")
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path query parameter required")
		return
	}
	res, err := s.deps.Freshness.HasCrawledRecently(r.Context(), site, path)
	if err != nil {
		s.logger.Error("freshness check failed", zap.String("site", site), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "freshness check failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// listOccurrences handles GET /v1/sites/{site}/occurrences.
func (s *Server) listOccurrences(w http.ResponseWriter, r *http.Request) {
	if s.deps.Occurrences == nil {
		writeError(w, http.StatusServiceUnavailable, "occurrence store unavailable")
		return
	}
	site := chi.URLParam(r, "site")
	occs, err := s.deps.Occurrences.ListOccurrences(r.Context(), site)
	if err != nil {
		s.logger.Error("list occurrences failed", zap.String("site", site), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list occurrences")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"site": site, "occurrences": occs})
}
