// Package httpapi exposes the viewer over HTTP: the REST file lifecycle and
// data endpoints, health, readiness, and metrics routes, and the embedded
// browser UI.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loganrenz/narduk-grib/internal/config"
	"github.com/loganrenz/narduk-grib/internal/decoder"
	"github.com/loganrenz/narduk-grib/internal/domain"
	"github.com/loganrenz/narduk-grib/internal/fetch"
	"github.com/loganrenz/narduk-grib/internal/gribsvc"
	"github.com/loganrenz/narduk-grib/internal/observability"
	"github.com/loganrenz/narduk-grib/internal/store"
)

// Version is reported by the API index endpoint.
const Version = "1.0.0"

// Server wires the REST routes, middleware, and static UI onto one listener.
type Server struct {
	httpServer     *http.Server
	svc            *gribsvc.Service
	logger         *slog.Logger
	metrics        *observability.Metrics
	maxUploadBytes int64
}

// NewServer builds the HTTP server. ui holds the embedded viewer assets with
// index.html at its root.
func NewServer(cfg *config.Config, svc *gribsvc.Service, ui fs.FS, logger *slog.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		svc:            svc,
		logger:         logger,
		metrics:        metrics,
		maxUploadBytes: cfg.MaxUploadBytes,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.observe)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/", s.handleAPIIndex)
		r.Route("/grib", func(r chi.Router) {
			r.Get("/files", s.handleListFiles)
			r.Post("/upload", s.handleUpload)
			r.Get("/download", s.handleDownload)
			r.Get("/metadata/{fileID}", s.handleMetadata)
			r.Get("/data/{fileID}", s.handleData)
			r.Delete("/files/{fileID}", s.handleDelete)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, ui, "index.html")
	})
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(ui))))

	s.httpServer = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Minute, // uploads can be large and slow
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// observe records request metrics and an access log line per request.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.svc.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response write
}

// writeError maps service errors onto the REST error envelope. Unexpected
// errors are logged and hidden behind a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *domain.URLValidationError
		variableErr   *domain.UnknownVariableError
		upstreamErr   *fetch.UpstreamError
		maxBytesErr   *http.MaxBytesError
	)

	status := http.StatusInternalServerError
	message := err.Error()

	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &validationErr), errors.As(err, &variableErr):
		status = http.StatusBadRequest
	case errors.Is(err, decoder.ErrNotGRIB), errors.Is(err, decoder.ErrNoFields):
		status = http.StatusBadRequest
	case errors.Is(err, fetch.ErrTooLarge), errors.As(err, &maxBytesErr):
		status = http.StatusRequestEntityTooLarge
		message = "file exceeds size limit"
	case errors.As(err, &upstreamErr):
		status = http.StatusBadGateway
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = "internal server error"
	}

	writeJSON(w, status, map[string]string{"error": message})
}
