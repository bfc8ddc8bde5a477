// Package devserver serves the live registry over HTTP while watching.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gnana997/compreg/pkg/catalog"
)

// Source exposes the live registry document.
type Source interface {
	Snapshot() *catalog.RegistryDocument
	JSON() ([]byte, error)
}

// Config configures a Server.
type Config struct {
	Addr string

	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer

	// Status reports the engine state on /healthz. Optional.
	Status func() string

	Logger *slog.Logger
}

// Server is the development HTTP server.
type Server struct {
	source Source
	config Config
	logger *slog.Logger
	router chi.Router
	now    func() time.Time
}

// New creates a Server over source.
func New(source Source, config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		source: source,
		config: config,
		logger: logger,
		now:    time.Now,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/registry.json", s.handleRegistry)
	r.Get("/diagnostics.json", s.handleDiagnostics)
	r.Get("/healthz", s.handleHealth)
	if s.config.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("devserver listening", "addr", s.config.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	if s.source.Snapshot() == nil {
		errorResponse(w, "registry not built yet", http.StatusServiceUnavailable)
		return
	}
	data, err := s.source.JSON()
	if err != nil {
		s.logger.Error("failed to serialize registry", "error", err)
		errorResponse(w, "failed to serialize registry", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	doc := s.source.Snapshot()
	if doc == nil {
		errorResponse(w, "registry not built yet", http.StatusServiceUnavailable)
		return
	}
	s.jsonResponse(w, doc.Report(s.now()), http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.config.Status != nil {
		body["state"] = s.config.Status()
	}
	if doc := s.source.Snapshot(); doc != nil {
		body["components"] = len(doc.Components)
	}
	s.jsonResponse(w, body, http.StatusOK)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("devserver request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", s.now().Sub(start).Milliseconds())
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func errorResponse(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
