package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/ac-mqtt-bridge/internal/bridges/aircon"
	"github.com/nerrad567/ac-mqtt-bridge/internal/device"
	"github.com/nerrad567/ac-mqtt-bridge/internal/infrastructure/config"
	"github.com/nerrad567/ac-mqtt-bridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Header read timeout for the listener.
const readHeaderTimeout = 5 * time.Second

// BridgeView is the part of the bridge the API reads from.
type BridgeView interface {
	State() aircon.State
	BusConnected() bool
	Devices() []aircon.DeviceStatus
	Device(address string) (aircon.DeviceStatus, bool)
	Rediscover(ctx context.Context) (int, error)
}

// HistoryReader serves recorded state snapshots.
type HistoryReader interface {
	GetHistory(ctx context.Context, address string, limit int) ([]device.StateHistoryEntry, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Bridge   BridgeView
	History  HistoryReader       // optional; history routes answer 503 without it
	Gatherer prometheus.Gatherer // optional; defaults to prometheus.DefaultGatherer
	Version  string
}

// Server is the HTTP status server.
//
// It is created with New, which also builds the WebSocket hub so it can be
// registered as the bridge's observer before Start.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	bridge    BridgeView
	history   HistoryReader
	gatherer  prometheus.Gatherer
	version   string
	hub       *Hub
	startTime time.Time

	mu     sync.Mutex
	server *http.Server
	addr   string
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		bridge:    deps.Bridge,
		history:   deps.History,
		gatherer:  gatherer,
		version:   deps.Version,
		hub:       NewHub(deps.Config.WebSocket, deps.Logger),
		startTime: time.Now(),
	}, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in a background goroutine.
//
// The address is bound synchronously so a port conflict is returned here
// rather than logged later.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.addr = ln.Addr().String()

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", s.addr)
	return nil
}

// Addr returns the bound listener address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	// Hub first: hijacked WebSocket connections are not tracked by Shutdown.
	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
