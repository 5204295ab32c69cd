package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/azoula-gateway/internal/device"
	"github.com/nerrad567/azoula-gateway/internal/infrastructure/config"
	"github.com/nerrad567/azoula-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/azoula-gateway/internal/protocol"
	"github.com/nerrad567/azoula-gateway/internal/tsl"
)

// Transport is the MQTT connection the gateway talks through.
// *mqtt.Client satisfies it.
type Transport interface {
	Connect(ctx context.Context, clientID string) error
	Close() error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
}

// Logger is the logging interface used by the gateway.
// *logging.Logger and *slog.Logger satisfy it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Gateway.
type Options struct {
	Gateway  config.GatewayConfig
	MQTT     config.MQTTConfig
	Timeouts config.TimeoutConfig

	// Transport defaults to an mqtt.Client built from MQTT.
	Transport Transport

	// Logger defaults to discarding output.
	Logger Logger
}

// Gateway is a client for one Azoula gateway.
//
// Outbound calls block the calling goroutine until their reply arrives or
// their timeout elapses. Inbound frames are handled on the transport's
// delivery goroutine and fanned out to listeners through the event bus.
type Gateway struct {
	id        string
	prefix    string
	topics    mqtt.Topics
	qos       byte
	timeouts  config.TimeoutConfig
	transport Transport
	logger    Logger

	corr      *correlator
	discovery *discovery
	bus       *eventBus
	registry  *device.Registry

	subscribeOnce sync.Once
	subscribeErr  error
	closeOnce     sync.Once
	closed        chan struct{}
}

// New builds a disconnected Gateway.
func New(opts Options) (*Gateway, error) {
	id := strings.TrimSpace(opts.Gateway.ID)
	if id == "" {
		return nil, errors.New("gateway: id is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	transport := opts.Transport
	if transport == nil {
		client := mqtt.New(opts.MQTT)
		client.SetLogger(logger)
		transport = client
	}

	prefix := opts.Gateway.ClientIDPrefix
	if prefix == "" {
		prefix = defaultClientIDPrefix
	}

	g := &Gateway{
		id:     id,
		prefix: prefix,
		topics: mqtt.Topics{
			GatewayPrefix:     opts.Gateway.GatewayTopicPrefix,
			PlatformAppPrefix: opts.Gateway.PlatformAppTopicPrefix,
		},
		qos:       clampQoS(opts.MQTT.QoS),
		timeouts:  withDefaultTimeouts(opts.Timeouts),
		transport: transport,
		logger:    logger,
		corr:      newCorrelator(logger),
		discovery: newDiscovery(logger),
		bus:       newEventBus(logger),
		registry:  device.NewRegistry(),
		closed:    make(chan struct{}),
	}
	g.registry.SetLogger(logger)

	transport.SetOnConnect(g.handleConnect)
	transport.SetOnDisconnect(g.handleDisconnect)
	return g, nil
}

// ID returns the gateway serial.
func (g *Gateway) ID() string {
	return g.id
}

// IsConnected reports whether the transport is connected.
func (g *Gateway) IsConnected() bool {
	return g.transport.IsConnected()
}

// Connect subscribes to the gateway's notification topic and connects with a
// fresh client id. The subscription is applied on every CONNACK.
func (g *Gateway) Connect(ctx context.Context) error {
	if g.isClosed() {
		return g.wrap("connect", ErrClosed)
	}

	g.subscribeOnce.Do(func() {
		g.subscribeErr = g.transport.Subscribe(g.topics.Notify(g.id), g.qos, g.handleFrame)
	})
	if g.subscribeErr != nil {
		return g.wrap("subscribe", g.subscribeErr)
	}

	clientID := g.newClientID()
	g.logger.Info("connecting to gateway", "gateway_id", g.id, "client_id", clientID)
	if err := g.transport.Connect(ctx, clientID); err != nil {
		return g.wrap("connect", err)
	}
	return nil
}

// Disconnect closes the connection. Listeners receive an offline status for
// the gateway.
func (g *Gateway) Disconnect() error {
	wasConnected := g.transport.IsConnected()
	if err := g.transport.Close(); err != nil {
		return g.wrap("disconnect", err)
	}
	if wasConnected {
		g.logger.Info("disconnected from gateway", "gateway_id", g.id)
		g.bus.publish(Event{Kind: EventOnlineStatus, DeviceID: g.id, Online: false})
	}
	return nil
}

// Close disconnects, delivers queued events and stops the event dispatcher.
func (g *Gateway) Close() error {
	var err error
	g.closeOnce.Do(func() {
		err = g.Disconnect()
		close(g.closed)
		g.bus.close()
	})
	return err
}

func (g *Gateway) isClosed() bool {
	select {
	case <-g.closed:
		return true
	default:
		return false
	}
}

// Devices returns the current discovery result set in discovery order.
func (g *Gateway) Devices() []*device.Device {
	return g.registry.List()
}

// Device returns one device from the current result set.
func (g *Gateway) Device(id string) (*device.Device, error) {
	d, err := g.registry.Get(id)
	if err != nil {
		return nil, g.wrap("device", fmt.Errorf("%s: %w", id, err))
	}
	return d, nil
}

// Restore replaces the current device list with stored snapshots, so
// capability checks work before the first discovery of a session.
func (g *Gateway) Restore(snapshots []device.Snapshot) {
	devices := make([]*device.Device, 0, len(snapshots))
	for _, s := range snapshots {
		devices = append(devices, device.FromSnapshot(s))
	}
	g.registry.Replace(devices)
}

// RegisterListener subscribes fn to events of kind. The returned func
// revokes the registration; calling it more than once is harmless.
func (g *Gateway) RegisterListener(kind EventKind, fn Listener, opts ...ListenerOption) func() {
	return g.bus.register(kind, fn, opts...)
}

// OnOnlineStatus registers fn for gateway and device reachability changes.
func (g *Gateway) OnOnlineStatus(fn func(id string, online bool), opts ...ListenerOption) func() {
	return g.RegisterListener(EventOnlineStatus, func(ev Event) { fn(ev.DeviceID, ev.Online) }, opts...)
}

// OnPropertyUpdate registers fn for property reports.
func (g *Gateway) OnPropertyUpdate(fn func(deviceID string, props protocol.Properties), opts ...ListenerOption) func() {
	return g.RegisterListener(EventPropertyUpdate, func(ev Event) { fn(ev.DeviceID, ev.Properties) }, opts...)
}

// OnDeviceEvent registers fn for events posted by devices.
func (g *Gateway) OnDeviceEvent(fn func(deviceID, identifier string, params map[string]any), opts ...ListenerOption) func() {
	return g.RegisterListener(EventDevice, func(ev Event) { fn(ev.DeviceID, ev.Identifier, ev.Params) }, opts...)
}

func (g *Gateway) handleConnect() {
	g.logger.Info("gateway online", "gateway_id", g.id)
	g.bus.publish(Event{Kind: EventOnlineStatus, DeviceID: g.id, Online: true})
}

func (g *Gateway) handleDisconnect(err error) {
	g.logger.Warn("gateway connection lost", "gateway_id", g.id, "error", err)
	g.bus.publish(Event{Kind: EventOnlineStatus, DeviceID: g.id, Online: false})
}

// handleFrame is the single entry point for inbound frames. It runs on the
// transport's delivery goroutine and never blocks on callers.
func (g *Gateway) handleFrame(topic string, payload []byte) error {
	msg, err := protocol.Decode(payload)
	if err != nil {
		g.logger.Warn("dropping malformed frame", "topic", topic, "error", err, "size", len(payload))
		return nil
	}

	switch msg.Method {
	case protocol.MethodDiscoverReply:
		g.discovery.accept(msg)

	case protocol.MethodTSLGetReply, protocol.MethodServiceInvokeReply:
		if !g.corr.resolveID(msg) {
			g.logger.Debug("reply without waiter", "method", msg.RawMethod, "id", msg.ID)
		}

	case protocol.MethodPropertyGetReply, protocol.MethodPropertyPost:
		g.handleProperties(msg)

	case protocol.MethodEventPost:
		params, err := msg.EventParams()
		if err != nil {
			g.logger.Warn("dropping device event", "device_id", msg.DeviceID, "error", err)
			return nil
		}
		if d, err := g.registry.Get(msg.DeviceID); err == nil {
			if m := d.TSL(); m != nil && !m.HasEvent(msg.Identifier) {
				g.logger.Debug("event not declared in device tsl", "device_id", msg.DeviceID, "identifier", msg.Identifier)
			}
		}
		g.bus.publish(Event{
			Kind:       EventDevice,
			DeviceID:   msg.DeviceID,
			Identifier: msg.Identifier,
			Params:     params,
		})

	case protocol.MethodDeviceOnline, protocol.MethodDeviceOffline:
		online := msg.Method == protocol.MethodDeviceOnline
		if _, err := g.registry.SetOnline(msg.DeviceID, online); err != nil {
			g.logger.Debug("online status for unknown device", "device_id", msg.DeviceID)
		}
		g.bus.publish(Event{Kind: EventOnlineStatus, DeviceID: msg.DeviceID, Online: online})

	case protocol.MethodDiscover, protocol.MethodTSLGet, protocol.MethodServiceInvoke, protocol.MethodPropertyGet:
		g.logger.Debug("ignoring request frame", "method", msg.RawMethod)

	default:
		g.logger.Debug("unhandled method", "method", msg.RawMethod, "device_id", msg.DeviceID)
	}
	return nil
}

func (g *Gateway) handleProperties(msg *protocol.Message) {
	if msg.DeviceID == "" {
		g.logger.Debug("property frame without device id", "method", msg.RawMethod)
		return
	}
	if failed(msg) {
		g.logger.Warn("property read failed", "device_id", msg.DeviceID, "code", msg.Code)
		return
	}
	props, err := msg.Properties()
	if err != nil {
		g.logger.Warn("dropping property frame", "device_id", msg.DeviceID, "error", err)
		return
	}
	if len(props) == 0 {
		return
	}

	if err := g.registry.UpdateProperties(msg.DeviceID, props); err != nil {
		g.logger.Debug("properties for unknown device", "device_id", msg.DeviceID)
	}
	g.corr.resolveDevice(msg.DeviceID, props, msg)
	g.bus.publish(Event{Kind: EventPropertyUpdate, DeviceID: msg.DeviceID, Properties: props})
}

// send publishes req on the gateway's command topic.
func (g *Gateway) send(req *protocol.Request) error {
	payload, err := req.Encode()
	if err != nil {
		return err
	}
	g.logger.Debug("sending request", "method", req.Method.String(), "id", req.ID, "device_id", req.DeviceID)
	return g.transport.Publish(g.topics.Command(g.id), payload, g.qos, false)
}

func (g *Gateway) newClientID() string {
	return fmt.Sprintf("%s_%s_%s", g.prefix, g.id, uuid.NewString()[:8])
}

func (g *Gateway) wrap(op string, err error) error {
	return &Error{Op: op, GatewayID: g.id, Err: err}
}

// decodeTSL reads the model from a TSL reply, preferring data over params.
func decodeTSL(msg *protocol.Message) (*tsl.Model, error) {
	raw := msg.Data
	if raw == nil {
		raw = msg.Params
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: empty tsl reply", ErrDecode)
	}
	return tsl.Parse(raw)
}

// rawOrNil returns nil for empty payloads.
func rawOrNil(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
