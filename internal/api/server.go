package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sitewatch/sitewatch/internal/config"
	"github.com/sitewatch/sitewatch/internal/crawl"
	"github.com/sitewatch/sitewatch/internal/metrics"
	"github.com/sitewatch/sitewatch/internal/notify"
	"github.com/sitewatch/sitewatch/internal/store"
)

const requestTimeout = 60 * time.Second

// CrawlRunner executes one crawl job.
type CrawlRunner interface {
	Run(ctx context.Context, req crawl.Request) error
}

// OccurrenceCounter folds phrase match counts into the occurrence store.
type OccurrenceCounter interface {
	CountOccurrences(ctx context.Context, url string, phrases []string) error
}

// FreshnessChecker answers the recrawl freshness query.
type FreshnessChecker interface {
	HasCrawledRecently(ctx context.Context, site, path string) (crawl.RecencyResult, error)
}

// Deps bundles the collaborators the server exposes over HTTP.
type Deps struct {
	Store       store.Store
	Occurrences store.OccurrenceStore
	Crawler     CrawlRunner
	Freshness   FreshnessChecker
	Counter     OccurrenceCounter
	Registry    *notify.Registry
	Sockets     *notify.WebSocketPusher
}

// Server wires HTTP handlers to the store, the crawler, and the live
// subscriber registry.
type Server struct {
	router   chi.Router
	deps     Deps
	upgrader websocket.Upgrader
	logger   *zap.Logger
	cfg      config.Config
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:   deps,
		logger: logger,
		cfg:    cfg,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// The websocket route hijacks the connection, so it stays outside the
	// timeout handler.
	r.Get("/v1/listen", s.listen)

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(requestTimeout))
		r.Route("/v1", func(r chi.Router) {
			r.Post("/crawls", s.submitCrawl)
			r.Post("/counts", s.submitCount)
			r.Route("/sites/{site}", func(r chi.Router) {
				r.Get("/paths", s.listPaths)
				r.Delete("/paths", s.deletePaths)
				r.Get("/status", s.getStatus)
				r.Get("/freshness", s.getFreshness)
				r.Get("/occurrences", s.listOccurrences)
			})
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The store is the single shared dependency; probe it with a cheap read.
	if _, _, err := s.deps.Store.GetStatus(r.Context(), "readyz-probe"); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			duration := time.Since(start)
			metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, duration)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", duration),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
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
