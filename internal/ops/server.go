// Package ops provides the orgbd operations HTTP API.
//
// It serves health, Prometheus metrics, controller descriptions, live ORGB
// sessions, the session audit trail and a WebSocket feed of server events.
// The ORGB protocol itself never goes through this package.
//
//	srv, err := ops.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package ops

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/orgbd/internal/audit"
	"github.com/nerrad567/orgbd/internal/controller"
	"github.com/nerrad567/orgbd/internal/infrastructure/config"
	"github.com/nerrad567/orgbd/internal/infrastructure/logging"
	"github.com/nerrad567/orgbd/internal/server"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SessionSource exposes the ORGB server's live sessions and counters.
type SessionSource interface {
	Sessions() []server.SessionInfo
	Stats() server.Stats

	// Addr is the ORGB listening address, nil until the listener is bound.
	Addr() net.Addr
}

// HealthChecker is implemented by every backing service the health endpoint
// reports on.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the ops server.
type Deps struct {
	Config   config.OpsConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Registry *controller.Registry
	Sessions SessionSource

	// Optional.
	Audit    audit.Repository
	Gatherer prometheus.Gatherer
	Checks   map[string]HealthChecker
	Hub      *Hub
	Version  string
}

// Server is the ops HTTP server.
type Server struct {
	cfg      config.OpsConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	registry *controller.Registry
	sessions SessionSource
	audit    audit.Repository
	gatherer prometheus.Gatherer
	checks   map[string]HealthChecker
	hub      *Hub
	version  string

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new ops server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, registry, sessions)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("controller registry is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("session source is required")
	}

	s := &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger,
		registry: deps.Registry,
		sessions: deps.Sessions,
		audit:    deps.Audit,
		gatherer: deps.Gatherer,
		checks:   deps.Checks,
		hub:      deps.Hub,
		version:  deps.Version,
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	return s, nil
}

// Hub returns the WebSocket hub. Register it as an events sink to feed
// connected clients.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listen address and serves in the background.
//
// Binding happens before Start returns, so a port conflict is reported
// to the caller rather than only logged.
//
// Parameters:
//   - ctx: Parent context for the WebSocket hub
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding ops API on %s: %w", addr, err)
	}
	s.listener = ln

	var hubCtx context.Context
	hubCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(hubCtx)

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	s.logger.Info("ops API listening", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close gracefully shuts down the ops server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("ops API shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down ops API: %w", err)
	}
	return nil
}
