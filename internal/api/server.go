package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tankwanghow/pou-con-sub006/internal/alarm"
	"github.com/tankwanghow/pou-con-sub006/internal/equipment"
	"github.com/tankwanghow/pou-con-sub006/internal/events"
	"github.com/tankwanghow/pou-con-sub006/internal/infrastructure/config"
	"github.com/tankwanghow/pou-con-sub006/internal/infrastructure/database"
	"github.com/tankwanghow/pou-con-sub006/internal/infrastructure/logging"
	"github.com/tankwanghow/pou-con-sub006/internal/infrastructure/mqtt"
	"github.com/tankwanghow/pou-con-sub006/internal/interlock"
	"github.com/tankwanghow/pou-con-sub006/internal/rules"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// AlarmController is the operator surface of the alarm engine.
// Implemented by *alarm.Engine; narrowed here so handlers can be tested
// against a stub.
type AlarmController interface {
	Acknowledge(ctx context.Context, ruleID string) error
	Mute(ctx context.Context, ruleID string) error
	Unmute(ctx context.Context, ruleID string) error
	ReloadRules(ctx context.Context) error
	Status() alarm.Status
}

// InterlockController is the operator surface of the interlock engine.
// Implemented by *interlock.Engine.
type InterlockController interface {
	CanStart(name string) interlock.Decision
	Permissions() map[string]interlock.Decision
	Rules() []rules.InterlockRule
	ReloadRules(ctx context.Context) error
}

// Commander issues equipment commands and status reads on behalf of
// operator requests. Implemented by *equipment.Gateway.
type Commander interface {
	GetStatus(ctx context.Context, name string, timeout time.Duration) (equipment.StatusMap, error)
	TurnOn(ctx context.Context, name, source string) error
	TurnOff(ctx context.Context, name, source string) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Rules       *rules.Registry
	Equipment   *equipment.Registry
	Commander   Commander
	Alarms      AlarmController
	Interlocks  InterlockController
	Events      events.Repository
	MQTT        *mqtt.Client // optional: bus health in /metrics
	DB          *database.DB // optional: pool stats in /metrics
	ExternalHub *Hub         // if set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for poucon.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	rules      *rules.Registry
	equipment  *equipment.Registry
	commander  Commander
	alarms     AlarmController
	interlocks InterlockController
	events     events.Repository
	mqtt       *mqtt.Client
	db         *database.DB
	version    string
	startTime  time.Time

	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, registries, engines)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Rules == nil {
		return nil, fmt.Errorf("rule registry is required")
	}
	if deps.Equipment == nil {
		return nil, fmt.Errorf("equipment registry is required")
	}
	if deps.Alarms == nil || deps.Interlocks == nil {
		return nil, fmt.Errorf("alarm and interlock engines are required")
	}
	// MQTT is optional — commands won't work without it but reads/WebSocket
	// still function.

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		rules:      deps.Rules,
		equipment:  deps.Equipment,
		commander:  deps.Commander,
		alarms:     deps.Alarms,
		interlocks: deps.Interlocks,
		events:     deps.Events,
		mqtt:       deps.MQTT,
		db:         deps.DB,
		version:    deps.Version,
		startTime:  time.Now(),
	}

	// Use externally-provided hub if available (needed when the engines
	// also hold the hub for WebSocket broadcasting).
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the
// HTTP listener in a background goroutine. The server can be stopped
// with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// Create WebSocket hub (unless one was injected externally)
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// Hub returns the WebSocket hub for wiring into the engines.
func (s *Server) Hub() *Hub {
	return s.hub
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
