// Package server exposes the diagnostic trace over HTTP: the current
// window as JSON, a live change stream, the journal history and Prometheus
// metrics.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/memories-gateway/internal/core/domain"
)

// TraceSource is the live trace window.
type TraceSource interface {
	Snapshot() []domain.TraceEvent
	Subscribe() (<-chan struct{}, func())
}

// History serves events evicted from the window.
type History interface {
	Recent(ctx context.Context, limit int) ([]domain.TraceEvent, error)
}

// Option configures a Server.
type Option func(*Server)

// WithHistory enables GET /trace/history.
func WithHistory(h History) Option {
	return func(s *Server) {
		s.history = h
	}
}

// WithGatherer enables GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithRateLimit caps requests per second. Zero means unlimited.
func WithRateLimit(rps float64) Option {
	return func(s *Server) {
		s.rateLimit = rps
	}
}

// WithRequestTimeout bounds non-streaming requests.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.timeout = d
	}
}

// Server is the debug panel.
type Server struct {
	Router *chi.Mux
	Addr   string

	trace     TraceSource
	history   History
	gatherer  prometheus.Gatherer
	rateLimit float64
	timeout   time.Duration
	logger    *slog.Logger
}

// New builds the debug panel for the given trace.
func New(addr string, tr TraceSource, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		Addr:    addr,
		trace:   tr,
		timeout: 30 * time.Second,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(RateLimitMiddleware(s.rateLimit))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "memories-debug")
	})

	r.Group(func(r chi.Router) {
		r.Use(TimeoutMiddleware(s.timeout))
		r.Get("/healthz", s.handleHealth)
		r.Get("/trace", s.handleSnapshot)
		r.Get("/trace/history", s.handleHistory)
		if s.gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		}
	})
	r.Get("/trace/stream", s.handleStream)

	s.Router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("debug server listening", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("debug server stopped")
	return nil
}
