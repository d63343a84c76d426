package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreams-grid/dreams-core/internal/plant"
)

const (
	gracefulShutdownTimeout = 10 * time.Second
	readTimeout             = 10 * time.Second
	writeTimeout            = 30 * time.Second
	idleTimeout             = 60 * time.Second
)

// Logger is the logging interface used by this package.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// HealthChecker is implemented by components with a liveness probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RosterSource lists every outstation.
type RosterSource interface {
	ListRoster(ctx context.Context) ([]plant.RosterEntry, error)
}

// Deps holds the dependencies of the server.
type Deps struct {
	// Listen is the host:port to bind.
	Listen string

	Logger  Logger
	Version string

	// Gatherer supplies /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer

	// Checks are probed by /healthz, keyed by component name.
	Checks map[string]HealthChecker

	// Roster and RosterToken enable /api/Plants. Without a token the route
	// is not mounted.
	Roster      RosterSource
	RosterToken string
}

// Server is the operational HTTP server.
type Server struct {
	deps     Deps
	server   *http.Server
	listener net.Listener
}

// New creates a server. It is not listening until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Listen == "" {
		return nil, errors.New("listen address is required")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.RosterToken != "" && deps.Roster == nil {
		return nil, errors.New("roster token set without a roster source")
	}
	return &Server{deps: deps}, nil
}

// Start binds the listen address and serves in the background. Bind errors
// are returned here rather than logged later.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.deps.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.deps.Listen, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.deps.Logger.Error("ops server error", "error", err)
		}
	}()

	s.deps.Logger.Info("ops server listening", "address", ln.Addr().String(), "roster", s.deps.RosterToken != "")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close waits for in-flight requests, then stops the server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("ops server shutdown: %w", err)
	}
	return nil
}
