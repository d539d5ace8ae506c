package console

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-mqttmgr/internal/manager"
)

const (
	// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
	gracefulShutdownTimeout = 10 * time.Second

	// healthCheckTimeout bounds each dependency check behind GET /health.
	healthCheckTimeout = 2 * time.Second
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Controller is the part of the connection manager the console drives.
// *manager.Manager implements it.
type Controller interface {
	SetURI(uri string)
	SetUsername(username string)
	SetPassword(password string)
	SetAutoReconnect(enabled bool)

	ConnectAsync() error
	DisconnectAsync() error

	IsConnected() bool
	Flags() manager.Flags

	LockStatus(timeout time.Duration) bool
	UnlockStatus()
	StatusJSON() string
}

// Deps holds the dependencies required by the console server.
type Deps struct {
	Config   config.ConsoleConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Manager  Controller

	// Hub is shared with the manager, which notifies it of new snapshots.
	// When nil the server creates its own and nothing is pushed.
	Hub *Hub

	// Metrics serves GET /metrics. Nil disables the endpoint.
	Metrics http.Handler

	// HealthChecks are run by GET /health, keyed by dependency name.
	HealthChecks map[string]HealthCheck

	Version string
}

// Server is the HTTP console over the connection manager.
type Server struct {
	cfg     config.ConsoleConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	mgr     Controller
	hub     *Hub
	metrics http.Handler
	checks  map[string]HealthCheck
	version string

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a console server. It does not listen until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Manager == nil {
		return nil, fmt.Errorf("manager is required")
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.Logger)
	}

	return &Server{
		cfg:     deps.Config,
		secCfg:  deps.Security,
		logger:  deps.Logger,
		mgr:     deps.Manager,
		hub:     hub,
		metrics: deps.Metrics,
		checks:  deps.HealthChecks,
		version: deps.Version,
	}, nil
}

// Start binds the listen address and serves in the background. Bind
// errors are returned directly.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("console listen on %s: %w", s.server.Addr, err)
	}
	s.listener = ln
	s.logger.Info("console listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("console server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close waits up to gracefulShutdownTimeout for in-flight requests, then
// closes websocket clients.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("console shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down console: %w", err)
	}
	return nil
}
