// Package api serves the encoder over HTTP. CSV posted to /api/v1/encode
// comes back as a stream, or is kept in the archive for later download.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/ssargent/colstream/pkg/metrics"
)

// Server holds the API server state
type Server struct {
	archive  StreamArchive
	config   ServerConfig
	metrics  *Metrics
	encoder  *metrics.Metrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	encodes  *semaphore.Weighted // nil when unlimited
}

// NewServer creates a new API server. archive may be nil, which disables
// the /streams routes. All collectors are registered with reg.
func NewServer(archive StreamArchive, config ServerConfig, reg *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = 10 * time.Second
	}
	var encodes *semaphore.Weighted
	if config.MaxConcurrent > 0 {
		encodes = semaphore.NewWeighted(int64(config.MaxConcurrent))
	}
	return &Server{
		encodes:  encodes,
		archive:  archive,
		config:   config,
		metrics:  NewMetrics(reg),
		encoder:  metrics.NewWithRegistry(reg, reg),
		gatherer: reg,
		logger:   logger,
	}
}

// Router returns the handler with all routes configured
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{headerStreamID, headerRows, headerBatches},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Unprotected for scraping
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.metrics.InstrumentAuthMiddleware(apiKeyMiddleware(s.config.APIKey)))

		r.Get("/health", s.metrics.InstrumentHandler("GET", "/api/v1/health", s.handleHealth))
		r.Post("/encode", s.metrics.InstrumentHandler("POST", "/api/v1/encode", s.handleEncode))

		r.Get("/streams", s.metrics.InstrumentHandler("GET", "/api/v1/streams", s.handleListStreams))
		r.Get("/streams/{id}", s.metrics.InstrumentHandler("GET", "/api/v1/streams/{id}", s.handleGetStream))
		r.Get("/streams/{id}/info", s.metrics.InstrumentHandler("GET", "/api/v1/streams/{id}/info", s.handleStreamInfo))
		r.Delete("/streams/{id}", s.metrics.InstrumentHandler("DELETE", "/api/v1/streams/{id}", s.handleDeleteStream))
	})

	return r
}

// requestLogger logs one line per request through the server's logger
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Bind, strconv.Itoa(s.config.Port))
}

// Serve accepts connections on l until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(l)
	}()
	s.logger.Info("serving", "addr", l.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and serves until ctx
// is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, l)
}
