// Package server provides the HTTP server in front of the recognizer.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luserve/luserve/internal/config"
	"github.com/luserve/luserve/internal/metrics"
	"github.com/luserve/luserve/internal/pkg/logger"
	"github.com/luserve/luserve/internal/pkg/middleware"
	"github.com/luserve/luserve/internal/recognizer"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics exposes m on the metrics path and records HTTP metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithBuildInfo sets the values reported by /v1/version.
func WithBuildInfo(b BuildInfo) Option {
	return func(s *Server) { s.build = b }
}

// Server is the HTTP front end.
type Server struct {
	cfg     *config.Config
	log     *logger.Logger
	svc     *recognizer.Service
	metrics *metrics.Metrics
	build   BuildInfo

	handler     http.Handler
	rateLimiter *middleware.RateLimiter
	inFlight    atomic.Int64
	ready       atomic.Bool

	mu         sync.Mutex
	httpServer *http.Server
}

// New creates a server and builds its middleware chain.
func New(cfg *config.Config, svc *recognizer.Service, log *logger.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:   cfg,
		log:   log,
		svc:   svc,
		build: BuildInfo{Version: "dev", Commit: "none", Date: "unknown"},
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	// Chain, outermost first: recovery, rate limit, CORS, logging, in-flight.
	handler := http.Handler(mux)
	if s.metrics != nil {
		handler = metrics.HTTPMiddleware(s.metrics, handler)
	}
	handler = inFlightMiddleware(handler, &s.inFlight)
	handler = loggingMiddleware(handler, log)
	handler = corsMiddleware(handler, cfg.CORSOrigins())
	if cfg.Security.RateLimit > 0 {
		rlCfg := middleware.DefaultRateLimiterConfig()
		rlCfg.RequestsPerSecond = float64(cfg.Security.RateLimit)
		rlCfg.Burst = cfg.Security.RateLimit * 2
		s.rateLimiter = middleware.NewRateLimiter(rlCfg)
		handler = s.rateLimiter.Middleware(handler)
	}
	handler = recoveryMiddleware(handler, log)

	s.handler = handler
	s.ready.Store(true)
	return s
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe listens on the configured address and serves until
// Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Address(), err)
	}
	return s.Serve(ln)
}

// Serve serves HTTP on ln until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.log.Info("Starting HTTP server", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown fails readiness, stops accepting connections, and waits for
// in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	var err error
	if srv != nil {
		if err = srv.Shutdown(ctx); err != nil {
			s.log.Error("HTTP shutdown error", "error", err)
		}
	}

	if s.drainInFlight(ctx) {
		s.log.Info("All in-flight requests completed")
	} else {
		s.log.Warn("Shutdown timeout reached with pending requests", "remaining", s.inFlight.Load())
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	return err
}

// InFlight returns the number of requests being served.
func (s *Server) InFlight() int64 {
	return s.inFlight.Load()
}

// drainInFlight waits for all in-flight requests to complete or ctx to end.
func (s *Server) drainInFlight(ctx context.Context) bool {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.inFlight.Load() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
