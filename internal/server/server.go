// Package server wires the admission engine, its HTTP surface and its
// background sweeper into one process.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"github.com/admitd/admitd/internal/config"
	"github.com/admitd/admitd/internal/handlers"
	"github.com/admitd/admitd/internal/metrics"
	"github.com/admitd/admitd/internal/middleware"
	"github.com/admitd/admitd/internal/ratelimit"
	"github.com/admitd/admitd/internal/security"
	"github.com/admitd/admitd/pkg/logger"
)

// Option customizes a Server.
type Option func(*Server)

// WithClock replaces the real clock, for tests.
func WithClock(clk clockwork.Clock) Option {
	return func(s *Server) { s.clock = clk }
}

// WithVersion sets the version reported by /health.
func WithVersion(version string) Option {
	return func(s *Server) { s.version = version }
}

// Server represents the HTTP server.
type Server struct {
	cfg     *config.Config
	log     *logger.Logger
	clock   clockwork.Clock
	version string

	// limiter answers decision requests; guard protects the API itself.
	// They use separate stores so callers cannot reset the service's own
	// accounting through the decision endpoints.
	limiter  *ratelimit.Limiter
	guard    *ratelimit.Limiter
	throttle *ratelimit.Throttle
	sweeper  *ratelimit.Sweeper

	sanitizer *security.Sanitizer

	healthHandler *handlers.HealthHandler
	limitsHandler *handlers.LimitsHandler
	docsHandler   *handlers.DocsHandler
	httpServer    *http.Server

	mu       sync.RWMutex
	listener net.Listener
	running  bool
}

// New creates a new Server instance.
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Server, error) {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		cfg:   cfg,
		log:   log,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}

	decisions := ratelimit.NewStore()
	own := ratelimit.NewStore()
	s.limiter = ratelimit.New(decisions, s.clock, log.With("component", "limiter"))
	s.guard = ratelimit.New(own, s.clock, log.With("component", "api_guard"))
	s.throttle = ratelimit.NewThrottle(s.clock)
	s.sweeper = ratelimit.NewSweeper(s.clock, log.With("component", "sweeper"), ratelimit.SweeperConfig{
		Interval:  cfg.Sweeper.Interval,
		Retention: cfg.Sweeper.Retention,
	}, decisions, own, s.throttle)

	s.healthHandler = handlers.NewHealthHandler(s.clock, s.version)
	s.healthHandler.AddCheck("sweeper", s.sweeper.Running)
	s.sanitizer = security.NewSanitizer(security.Config{
		MaxLength: cfg.Identifiers.MaxLength,
		Blocked:   cfg.Identifiers.Blocked,
	})
	s.limitsHandler = handlers.NewLimitsHandler(s.limiter, s.throttle, s.sanitizer, log)
	s.docsHandler = handlers.NewDocsHandler("")

	router, err := s.routes()
	if err != nil {
		return nil, err
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s, nil
}

// routes builds the router. Global middleware runs for every request; the
// API group is additionally admitted against the configured preset.
func (s *Server) routes() (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.Stack(s.log, s.cfg.Rate.TrustProxy, s.cfg.Rate.TrustedProxies)...)

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	r.Get("/health", s.healthHandler.Health)
	r.Get("/ready", s.healthHandler.Ready)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/docs", s.docsHandler.ScalarUI)
	r.Get("/docs/openapi.yaml", s.docsHandler.OpenAPISpec)

	var api []middleware.Middleware
	if s.cfg.Rate.Enabled {
		policy, err := s.cfg.Rate.Policy()
		if err != nil {
			return nil, fmt.Errorf("rate limit policy: %w", err)
		}
		api = append(api, middleware.RateLimit(s.guard, policy, middleware.RateLimitConfig{
			TrustProxy:     s.cfg.Rate.TrustProxy,
			APIKeyHeader:   s.cfg.Rate.APIKeyHeader,
			TrustedProxies: s.cfg.Rate.TrustedProxies,
			Sanitizer:      s.sanitizer,
			Logger:         s.log,
		}))

		s.log.Info("rate limiting enabled",
			"preset", policy.Name,
			"requests", policy.MaxRequests,
			"window", policy.Window,
		)
	}

	r.Route("/api/v1", func(r chi.Router) {
		for _, mw := range api {
			r.Use(mw)
		}
		s.limitsHandler.Routes(r)
	})

	return r, nil
}

// Start starts the sweeper and serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Server.Address())
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.sweeper.Start()

	s.mu.Lock()
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.log.Info("server starting", "address", listener.Addr().String())

	err = s.httpServer.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.sweeper.Stop()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown drains in-flight requests, then stops the sweeper.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("server shutting down")

	s.healthHandler.SetReady(false)

	err := s.httpServer.Shutdown(ctx)
	s.sweeper.Stop()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if err != nil {
		s.log.Error("shutdown error", "error", err.Error())
		return err
	}

	s.log.Info("server stopped")
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the address the server is listening on, once started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HealthHandler returns the health handler.
func (s *Server) HealthHandler() *handlers.HealthHandler {
	return s.healthHandler
}

// Limiter returns the limiter behind the decision endpoints.
func (s *Server) Limiter() *ratelimit.Limiter {
	return s.limiter
}

// Sweeper returns the background sweeper.
func (s *Server) Sweeper() *ratelimit.Sweeper {
	return s.sweeper
}
