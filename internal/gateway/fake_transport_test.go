package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/azoula-gateway/internal/infrastructure/config"
	"github.com/nerrad567/azoula-gateway/internal/infrastructure/mqtt"
)

const testGatewayID = "6A242121110E"

// sentRequest is an outbound frame as the gateway firmware would see it.
type sentRequest struct {
	Topic      string          `json:"-"`
	ID         string          `json:"id"`
	Version    string          `json:"version"`
	DeviceID   string          `json:"deviceID"`
	Method     string          `json:"method"`
	Identifier string          `json:"identifier"`
	Params     json.RawMessage `json:"params"`
}

// fakeTransport stands in for the MQTT client. Frames are delivered to the
// subscribed handler one at a time, like paho's router.
type fakeTransport struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	publishErr   error
	clientIDs    []string
	subTopic     string
	handler      mqtt.MessageHandler
	onConnect    func()
	onDisconnect func(error)
	sent         []sentRequest
	responder    func(req sentRequest)

	deliverMu sync.Mutex
	requests  chan sentRequest
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{requests: make(chan sentRequest, 64)}
}

func (f *fakeTransport) Connect(_ context.Context, clientID string) error {
	f.mu.Lock()
	f.clientIDs = append(f.clientIDs, clientID)
	if f.connectErr != nil {
		err := f.connectErr
		f.mu.Unlock()
		return err
	}
	f.connected = true
	cb := f.onConnect
	f.mu.Unlock()

	if cb != nil {
		cb()
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Publish(topic string, payload []byte, _ byte, _ bool) error {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return mqtt.ErrNotConnected
	}
	if f.publishErr != nil {
		err := f.publishErr
		f.mu.Unlock()
		return err
	}
	var req sentRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		f.mu.Unlock()
		return err
	}
	req.Topic = topic
	f.sent = append(f.sent, req)
	responder := f.responder
	f.mu.Unlock()

	select {
	case f.requests <- req:
	default:
	}
	if responder != nil {
		go responder(req)
	}
	return nil
}

func (f *fakeTransport) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subTopic = topic
	f.handler = handler
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) SetOnConnect(cb func()) {
	f.mu.Lock()
	f.onConnect = cb
	f.mu.Unlock()
}

func (f *fakeTransport) SetOnDisconnect(cb func(error)) {
	f.mu.Lock()
	f.onDisconnect = cb
	f.mu.Unlock()
}

func (f *fakeTransport) setResponder(fn func(req sentRequest)) {
	f.mu.Lock()
	f.responder = fn
	f.mu.Unlock()
}

// deliver feeds an inbound frame to the gateway.
func (f *fakeTransport) deliver(t testing.TB, frame any) {
	t.Helper()
	var payload []byte
	switch v := frame.(type) {
	case string:
		payload = []byte(v)
	case []byte:
		payload = v
	default:
		var err error
		if payload, err = json.Marshal(v); err != nil {
			t.Fatalf("marshal frame: %v", err)
		}
	}

	f.mu.Lock()
	handler, topic := f.handler, f.subTopic
	f.mu.Unlock()
	if handler == nil {
		t.Fatal("deliver before Subscribe")
	}

	f.deliverMu.Lock()
	defer f.deliverMu.Unlock()
	if err := handler(topic, payload); err != nil {
		t.Errorf("handler error = %v", err)
	}
}

// lose simulates an unsolicited connection loss.
func (f *fakeTransport) lose(err error) {
	f.mu.Lock()
	f.connected = false
	cb := f.onDisconnect
	f.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// nextRequest waits for the next outbound frame.
func (f *fakeTransport) nextRequest(t testing.TB) sentRequest {
	t.Helper()
	select {
	case req := <-f.requests:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("no request published")
		return sentRequest{}
	}
}

func (f *fakeTransport) sentRequests() []sentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentRequest, len(f.sent))
	copy(out, f.sent)
	return out
}

// recordingLogger captures log messages by level.
type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLogger) log(level, msg string) {
	l.mu.Lock()
	l.entries = append(l.entries, level+": "+msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.log("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.log("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.log("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.log("error", msg) }

func (l *recordingLogger) has(entry string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e == entry {
			return true
		}
	}
	return false
}

func testTimeouts() config.TimeoutConfig {
	return config.TimeoutConfig{
		Discovery:   time.Second,
		TSL:         200 * time.Millisecond,
		PropertyGet: 200 * time.Millisecond,
		Service:     200 * time.Millisecond,
	}
}

// newTestGateway returns a connected gateway over a fake transport.
func newTestGateway(t *testing.T) (*Gateway, *fakeTransport, *recordingLogger) {
	t.Helper()
	ft := newFakeTransport()
	logger := &recordingLogger{}
	g, err := New(Options{
		Gateway:   config.GatewayConfig{ID: testGatewayID, ClientIDPrefix: "test"},
		MQTT:      config.MQTTConfig{QoS: 1},
		Timeouts:  testTimeouts(),
		Transport: ft,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { g.Close() }) //nolint:errcheck // test cleanup

	if err := g.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	settle(t, g)
	return g, ft, logger
}

// eventKindMarker is only published by settle.
const eventKindMarker EventKind = 99

// settle returns once every event queued so far has been dispatched.
func settle(t testing.TB, g *Gateway) {
	t.Helper()
	done := make(chan struct{})
	var once sync.Once
	revoke := g.bus.register(eventKindMarker, func(Event) { once.Do(func() { close(done) }) })
	defer revoke()

	g.bus.publish(Event{Kind: eventKindMarker})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event bus did not settle")
	}
}

// frame builds an inbound envelope.
func frame(method, id, deviceID string, code int, fields map[string]any) map[string]any {
	f := map[string]any{"method": method, "deviceID": deviceID}
	if id != "" {
		f["id"] = id
	}
	if code != 0 {
		f["code"] = code
	}
	for k, v := range fields {
		f[k] = v
	}
	return f
}

func page(id string, current, count int, deviceIDs ...string) map[string]any {
	list := make([]map[string]any, 0, len(deviceIDs))
	for _, d := range deviceIDs {
		list = append(list, map[string]any{"deviceID": d, "deviceType": "0101", "online": "1"})
	}
	return frame("thing.subdev.getall.reply", id, testGatewayID, 200, map[string]any{
		"PageCount":   count,
		"CurrentPage": current,
		"data":        map[string]any{"deviceList": list},
	})
}

// collector gathers events delivered to a listener.
type collector struct {
	mu     sync.Mutex
	events []Event
	signal chan struct{}
}

func newCollector() *collector {
	return &collector{signal: make(chan struct{}, 256)}
}

func (c *collector) listen(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	c.signal <- struct{}{}
}

func (c *collector) waitFor(t testing.TB, n int) []Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		if len(c.events) >= n {
			out := make([]Event, len(c.events))
			copy(out, c.events)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		select {
		case <-c.signal:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events", n)
			return nil
		}
	}
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}
