package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/azoula-gateway/internal/audit"
	"github.com/nerrad567/azoula-gateway/internal/device"
	"github.com/nerrad567/azoula-gateway/internal/gateway"
	"github.com/nerrad567/azoula-gateway/internal/infrastructure/config"
	"github.com/nerrad567/azoula-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/azoula-gateway/internal/protocol"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Gateway is the part of *gateway.Gateway the server drives.
type Gateway interface {
	ID() string
	IsConnected() bool
	Devices() []*device.Device
	Device(id string) (*device.Device, error)
	DiscoverDevices(ctx context.Context, loadTSL bool) ([]*device.Device, error)
	GetDeviceProperties(ctx context.Context, deviceID string, names []string) (protocol.Properties, error)
	SetDeviceProperties(ctx context.Context, deviceID string, values map[string]any) error
	InvokeService(ctx context.Context, deviceID, identifier string, params map[string]any) (json.RawMessage, error)
	IdentifyDevice(ctx context.Context, deviceID string) error
	RegisterListener(kind gateway.EventKind, fn gateway.Listener, opts ...gateway.ListenerOption) func()
}

// HealthChecker is a backing service the health endpoint probes.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Gateway Gateway

	// Repository, when set, receives a snapshot after each discovery.
	Repository device.Repository

	// Audit, when set, records every control action and serves /audit.
	Audit audit.Repository

	// Checks are probed by /health, keyed by component name.
	Checks map[string]HealthChecker

	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	logger  *logging.Logger
	gw      Gateway
	repo    device.Repository
	audit   audit.Repository
	checks  map[string]HealthChecker
	version string

	server   *http.Server
	listener net.Listener
	hub      *Hub
	cancel   context.CancelFunc

	mu      sync.Mutex
	revokes []func()
}

// New creates a new API server. The server is not started until Start()
// is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}

	return &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		logger:  deps.Logger,
		gw:      deps.Gateway,
		repo:    deps.Repository,
		audit:   deps.Audit,
		checks:  deps.Checks,
		version: deps.Version,
		hub:     NewHub(deps.Logger),
	}, nil
}

// Start binds the listener, relays gateway events to the WebSocket hub and
// serves HTTP in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	s.relayEvents()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln
	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops relaying events and shuts the HTTP server down, waiting up
// to 10 seconds for in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	revokes := s.revokes
	s.revokes = nil
	s.mu.Unlock()
	for _, revoke := range revokes {
		revoke()
	}

	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
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

// relayEvents forwards gateway events to WebSocket subscribers.
func (s *Server) relayEvents() {
	kinds := []gateway.EventKind{
		gateway.EventOnlineStatus,
		gateway.EventPropertyUpdate,
		gateway.EventDevice,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kind := range kinds {
		s.revokes = append(s.revokes, s.gw.RegisterListener(kind, s.broadcastEvent))
	}
}

func (s *Server) broadcastEvent(ev gateway.Event) {
	channel, payload := eventMessage(s.gw.ID(), ev)
	if channel == "" {
		return
	}
	s.hub.Publish(channel, payload)
}

// WebSocket channels.
const (
	ChannelGatewayOnline  = "gateway.online_status"
	ChannelDeviceOnline   = "device.online_status"
	ChannelPropertyUpdate = "device.property_update"
	ChannelDeviceEvent    = "device.event"
)

func eventMessage(gatewayID string, ev gateway.Event) (string, map[string]any) {
	ts := ev.Time.UTC().Format(time.RFC3339Nano)
	switch ev.Kind {
	case gateway.EventOnlineStatus:
		if ev.DeviceID == gatewayID {
			return ChannelGatewayOnline, map[string]any{
				"gateway_id": gatewayID,
				"online":     ev.Online,
				"time":       ts,
			}
		}
		return ChannelDeviceOnline, map[string]any{
			"device_id": ev.DeviceID,
			"online":    ev.Online,
			"time":      ts,
		}
	case gateway.EventPropertyUpdate:
		return ChannelPropertyUpdate, map[string]any{
			"device_id":  ev.DeviceID,
			"properties": ev.Properties,
			"time":       ts,
		}
	case gateway.EventDevice:
		return ChannelDeviceEvent, map[string]any{
			"device_id":  ev.DeviceID,
			"identifier": ev.Identifier,
			"params":     ev.Params,
			"time":       ts,
		}
	}
	return "", nil
}
