package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-it600/internal/bridge"
	"github.com/nerrad567/gray-logic-it600/internal/gateway"
	"github.com/nerrad567/gray-logic-it600/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-it600/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-it600/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-it600/internal/inventory"
	"github.com/nerrad567/gray-logic-it600/internal/poll"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// GatewayMonitor is the slice of the gateway client the status endpoint
// reports on.
type GatewayMonitor interface {
	HealthCheck(ctx context.Context) error
	Stats() gateway.Stats
}

// ConnectionChecker reports broker connectivity for the status endpoint.
type ConnectionChecker interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Manager     *poll.Manager
	Dispatcher  *bridge.Dispatcher   // optional: commands return 503 without it
	Gateway     GatewayMonitor       // optional: /status omits the gateway section
	MQTT        ConnectionChecker    // optional: /status reports disconnected
	Inventory   inventory.Repository // optional: /inventory returns 503 without it
	DB          *database.DB         // optional: /status omits the database section
	ExternalHub *Hub                 // if set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for the iT600 bridge daemon.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	manager    *poll.Manager
	dispatcher *bridge.Dispatcher
	gateway    GatewayMonitor
	mqtt       ConnectionChecker
	inventory  inventory.Repository
	db         *database.DB
	version    string
	startTime  time.Time

	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
	cycleSubs   []cycleSub         // terminal-cycle listeners feeding the hub
}

// cycleSub pairs a coordinator with the listener registered on it so Close
// can unsubscribe.
type cycleSub struct {
	coordinator *poll.Coordinator
	sub         poll.Subscription
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Manager == nil {
		return nil, fmt.Errorf("poll manager is required")
	}
	// Dispatcher, gateway, MQTT, inventory, and DB are optional. Reads and
	// the WebSocket stream work from the manager alone; the handlers that
	// need the missing piece degrade per route.

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		manager:    deps.Manager,
		dispatcher: deps.Dispatcher,
		gateway:    deps.Gateway,
		mqtt:       deps.MQTT,
		inventory:  deps.Inventory,
		db:         deps.DB,
		version:    deps.Version,
		startTime:  time.Now(),
	}

	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, registers terminal-cycle
// listeners for real-time WebSocket broadcast, and launches the HTTP
// listener in a background goroutine. The server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// Create WebSocket hub (unless one was injected externally)
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	// Broadcast a cycle event to WebSocket clients after every terminal
	// refresh cycle.
	if err := s.subscribeCycleEvents(); err != nil {
		s.logger.Warn("failed to subscribe to refresh cycles for WebSocket", "error", err)
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
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Stop feeding the hub before tearing it down.
	for _, cs := range s.cycleSubs {
		cs.coordinator.Unsubscribe(cs.sub)
	}
	s.cycleSubs = nil

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

// HealthCheck verifies the API server is running.
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
