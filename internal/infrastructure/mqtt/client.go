package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/azoula-gateway/internal/infrastructure/config"
)

// State is the connection lifecycle state of a Client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Client wraps paho.mqtt.golang as a connection manager for one gateway.
//
// Every Connect call builds a fresh paho client, so a caller can use a new
// client id per attempt. After the first successful connect paho's
// auto-reconnect (when enabled) takes over; each reconnect restores the
// tracked subscriptions and fires the on-connect callback again.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	cfg       config.MQTTConfig
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	// client and state are replaced together on every Connect attempt.
	client pahomqtt.Client
	state  State
	connMu sync.RWMutex

	// subscriptions tracks subscriptions for (re-)subscription on connect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run on paho's router goroutine, one message at a time in arrival
// order. They should not block for extended periods.
//
// The returned error is logged and does not affect acknowledgment.
type MessageHandler func(topic string, payload []byte) error

// New creates a disconnected Client. No network activity happens until Connect.
func New(cfg config.MQTTConfig) *Client {
	return &Client{
		cfg:           cfg,
		newClient:     pahomqtt.NewClient,
		subscriptions: make(map[string]subscription),
	}
}

// Connect opens a connection to the broker using clientID.
//
// It blocks until the broker's CONNACK arrives, defaultConnectTimeout
// elapses, or ctx is done. Failures are classified as ErrConnectionTimeout,
// ErrAuthenticationFailed, ErrNetwork or ErrConnectionFailed, and leave the
// client in StateDisconnected.
//
// On success, tracked subscriptions are applied and the on-connect callback
// is invoked before Connect returns.
//
// Calling Connect while already connected is a no-op; calling it while
// another attempt is in flight returns ErrConnectInProgress.
func (c *Client) Connect(ctx context.Context, clientID string) error {
	c.connMu.Lock()
	switch c.state {
	case StateConnecting:
		c.connMu.Unlock()
		return ErrConnectInProgress
	case StateConnected:
		c.connMu.Unlock()
		return nil
	}

	// A previous client may still be running paho's reconnect loop.
	if old := c.client; old != nil {
		old.Disconnect(0)
	}

	opts := buildClientOptions(c.cfg, clientID)

	var connects atomic.Int32
	opts.SetOnConnectHandler(func(pc pahomqtt.Client) {
		// The first CONNACK is completed by Connect itself.
		if connects.Add(1) > 1 {
			c.handleReconnect(pc)
		}
	})
	opts.SetConnectionLostHandler(func(pc pahomqtt.Client, err error) {
		c.handleConnectionLost(pc, err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		if logger := c.getLogger(); logger != nil {
			logger.Info("MQTT reconnecting", "client_id", clientID)
		}
	})

	pc := c.newClient(opts)
	c.client = pc
	c.state = StateConnecting
	c.connMu.Unlock()

	token := pc.Connect()

	timer := time.NewTimer(defaultConnectTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		c.abort(pc)
		return fmt.Errorf("%w: no CONNACK after %v", ErrConnectionTimeout, defaultConnectTimeout)
	case <-ctx.Done():
		c.abort(pc)
		return fmt.Errorf("mqtt connect: %w", ctx.Err())
	}

	if err := classifyConnectError(token); err != nil {
		c.abort(pc)
		return err
	}

	c.connMu.Lock()
	if c.client != pc {
		// Close raced with the CONNACK.
		c.connMu.Unlock()
		pc.Disconnect(0)
		return ErrNotConnected
	}
	c.state = StateConnected
	c.connMu.Unlock()

	c.restoreSubscriptions(pc)
	c.fireOnConnect()

	return nil
}

// abort tears down a failed attempt.
func (c *Client) abort(pc pahomqtt.Client) {
	pc.Disconnect(0)

	c.connMu.Lock()
	if c.client == pc {
		c.state = StateDisconnected
	}
	c.connMu.Unlock()
}

// handleReconnect is called by paho after an automatic reconnect.
func (c *Client) handleReconnect(pc pahomqtt.Client) {
	c.connMu.Lock()
	if c.client != pc {
		c.connMu.Unlock()
		return
	}
	c.state = StateConnected
	c.connMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Info("MQTT reconnected")
	}

	c.restoreSubscriptions(pc)
	c.fireOnConnect()
}

// handleConnectionLost is called by paho when an established connection drops.
func (c *Client) handleConnectionLost(pc pahomqtt.Client, err error) {
	c.connMu.Lock()
	if c.client != pc {
		c.connMu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.connMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

func (c *Client) fireOnConnect() {
	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// restoreSubscriptions (re-)subscribes to all tracked topics on pc.
func (c *Client) restoreSubscriptions(pc pahomqtt.Client) {
	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.subMu.RUnlock()

	for _, sub := range subs {
		err := await(pc.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler)), ErrSubscribeFailed)
		if err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT subscription restore failed", "topic", sub.topic, "error", err)
			}
		}
	}
}

// Close disconnects from the broker. It is the solicited disconnect: the
// on-disconnect callback is not invoked.
//
// Returns:
//   - error: always nil; closing a closed client is not an error
func (c *Client) Close() error {
	c.connMu.Lock()
	pc := c.client
	c.client = nil
	c.state = StateDisconnected
	c.connMu.Unlock()

	if pc == nil {
		return nil
	}

	// Disconnect with quiesce period for pending operations
	pc.Disconnect(defaultDisconnectQuiesce)

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.state
}

// IsConnected reports whether the client is connected and the network
// connection is open.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.state == StateConnected && c.client != nil && c.client.IsConnectionOpen()
}

// current returns the active paho client if connected.
func (c *Client) current() (pahomqtt.Client, bool) {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	if c.state != StateConnected || c.client == nil || !c.client.IsConnectionOpen() {
		return nil, false
	}
	return c.client, true
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
// The error parameter describes why the connection was lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for connection, error and panic logging.
// If not set, these are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
