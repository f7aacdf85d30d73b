// Package server implements the optional `moonball serve` mode: a small
// long-running HTTP process exposing health/liveness/readiness probes,
// Prometheus metrics, and a semantic-search query endpoint over an
// already-built archive. Route registration is grounded on the teacher's
// internal/api/handlers.go RegisterRoutes pattern (gorilla/mux,
// health/ready/live + RecordHTTPRequest on every handler).
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kenchrcum/moonball/internal/archive"
	"github.com/kenchrcum/moonball/internal/config"
	"github.com/kenchrcum/moonball/internal/embed"
	"github.com/kenchrcum/moonball/internal/metrics"
	"github.com/kenchrcum/moonball/internal/middleware"
	"github.com/kenchrcum/moonball/internal/search"
)

// Server wires routing, middleware, and metrics for moonball serve.
type Server struct {
	archivePath string
	cipher      decryptor
	embedder    *embed.Client
	logger      *logrus.Logger
	metrics     *metrics.Metrics
	watcher     *config.Watcher
}

type decryptor interface {
	Decrypt([]byte) ([]byte, error)
}

// New builds a Server. cipher may be nil for unencrypted archives.
func New(archivePath string, cipher decryptor, embedder *embed.Client, logger *logrus.Logger, m *metrics.Metrics, watcher *config.Watcher) *Server {
	return &Server{
		archivePath: archivePath,
		cipher:      cipher,
		embedder:    embedder,
		logger:      logger,
		metrics:     m,
		watcher:     watcher,
	}
}

// Router builds the gorilla/mux router, wrapping every route in the
// teacher's recovery and request-logging middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RecoveryMiddleware(s.logger))
	r.Use(middleware.LoggingMiddleware(s.logger))

	r.HandleFunc("/healthz", s.wrap("/healthz", metrics.HealthHandler())).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.wrap("/readyz", metrics.ReadinessHandler(s.checkReady))).Methods(http.MethodGet)
	r.HandleFunc("/livez", s.wrap("/livez", metrics.LivenessHandler())).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)

	return r
}

// wrap records moonball_http_requests_total/duration around h, matching the
// teacher's per-handler RecordHTTPRequest calls.
func (s *Server) wrap(path string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h(w, r)
		s.metrics.RecordHTTPRequest(r.Method, path, http.StatusOK, time.Since(start))
	}
}

// checkReady verifies the configured embedder binary is still invocable,
// standing in for the teacher's KMS-reachability readiness check.
func (s *Server) checkReady(ctx context.Context) error {
	if s.embedder == nil {
		return nil
	}
	_, err := s.embedder.Embed(ctx, []byte("readiness-probe"))
	return err
}

type searchResponse struct {
	Results []search.Result `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query().Get("q")
	if q == "" {
		http.Error(w, "missing required query parameter: q", http.StatusBadRequest)
		s.metrics.RecordHTTPRequest(r.Method, "/search", http.StatusBadRequest, time.Since(start))
		return
	}

	k := 10
	meta, err := archive.NewReader(s.cipherOrNil()).ReadMetadata(s.archivePath)
	if err != nil {
		s.logger.WithError(err).Error("failed to read archive metadata for search")
		http.Error(w, "failed to read archive", http.StatusInternalServerError)
		s.metrics.RecordHTTPRequest(r.Method, "/search", http.StatusInternalServerError, time.Since(start))
		return
	}

	results, err := search.Search(r.Context(), &meta, s.embedder, q, k, s.threshold())
	s.metrics.RecordSearch(time.Since(start), err)
	if err != nil {
		s.logger.WithError(err).Error("search failed")
		http.Error(w, "search failed", http.StatusInternalServerError)
		s.metrics.RecordHTTPRequest(r.Method, "/search", http.StatusInternalServerError, time.Since(start))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(searchResponse{Results: results})
	s.metrics.RecordHTTPRequest(r.Method, "/search", http.StatusOK, time.Since(start))
}

func (s *Server) cipherOrNil() decryptor {
	if s.cipher == nil {
		return nil
	}
	return s.cipher
}

func (s *Server) threshold() float64 {
	if s.watcher == nil {
		return 0.0
	}
	return s.watcher.Current().SemanticSearch.Threshold
}
