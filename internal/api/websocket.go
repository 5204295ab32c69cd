package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/azoula-gateway/internal/infrastructure/logging"
)

// Frame types.
const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	framePing        = "ping"
	framePong        = "pong"
	frameEvent       = "event"
	frameAck         = "ack"
	frameError       = "error"
)

// channelAll subscribes to every channel.
const channelAll = "*"

// outboxSize bounds frames queued for one subscriber. Frames beyond it
// are dropped for that subscriber only.
const outboxSize = 256

// Frame is one JSON text message on the event socket, in either
// direction. Clients send subscribe, unsubscribe and ping frames; the
// server sends event, ack, pong and error frames.
type Frame struct {
	Type     string   `json:"type"`
	ID       string   `json:"id,omitempty"`
	Channel  string   `json:"channel,omitempty"`
	Channels []string `json:"channels,omitempty"`
	Time     string   `json:"time,omitempty"`
	Data     any      `json:"data,omitempty"`
}

// Hub fans gateway events out to WebSocket subscribers.
type Hub struct {
	logger *logging.Logger

	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

// Run blocks until ctx is done, then disconnects every subscriber.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for s := range subs {
		s.close()
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish queues an event frame for every subscriber of channel.
func (h *Hub) Publish(channel string, data any) {
	raw, err := json.Marshal(Frame{
		Type:    frameEvent,
		Channel: channel,
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
		Data:    data,
	})
	if err != nil {
		h.logger.Error("failed to encode event frame", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		if s.wants(channel) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(raw)
	}
	if len(targets) > 0 {
		h.logger.Debug("event published", "channel", channel, "subscribers", len(targets))
	}
}

func (h *Hub) add(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subs[s] = struct{}{}
	return true
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// subscriber is one WebSocket connection and the channels it follows.
type subscriber struct {
	hub  *Hub
	conn *websocket.Conn
	out  chan []byte

	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	channels map[string]struct{}
}

func newSubscriber(hub *Hub, conn *websocket.Conn) *subscriber {
	return &subscriber{
		hub:      hub,
		conn:     conn,
		out:      make(chan []byte, outboxSize),
		done:     make(chan struct{}),
		channels: make(map[string]struct{}),
	}
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *subscriber) enqueue(raw []byte) {
	select {
	case <-s.done:
	case s.out <- raw:
	default:
		s.hub.logger.Debug("subscriber outbox full, frame dropped")
	}
}

func (s *subscriber) wants(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, all := s.channels[channelAll]
	_, one := s.channels[channel]
	return all || one
}

func (s *subscriber) reply(f Frame) {
	raw, err := json.Marshal(f)
	if err != nil {
		return
	}
	s.enqueue(raw)
}

func (s *subscriber) fail(id, message string) {
	s.reply(Frame{Type: frameError, ID: id, Data: map[string]string{"message": message}})
}

// readLoop handles client frames until the connection drops.
func (s *subscriber) readLoop(maxSize int64, idle time.Duration) {
	defer func() {
		s.hub.remove(s)
		s.close()
	}()

	if maxSize > 0 {
		s.conn.SetReadLimit(maxSize)
	}
	extend := func() error { return s.conn.SetReadDeadline(time.Now().Add(idle)) }
	//nolint:errcheck // a failed deadline surfaces on the next read
	extend()
	s.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		//nolint:errcheck // as above
		extend()
		s.handle(raw)
	}
}

// writeLoop drains the outbox and sends keepalive pings.
func (s *subscriber) writeLoop(ping, writeWait time.Duration) {
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	write := func(kind int, raw []byte) error {
		//nolint:errcheck // write error reported below
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return s.conn.WriteMessage(kind, raw)
	}

	for {
		select {
		case <-s.done:
			//nolint:errcheck // connection is going away
			write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case raw := <-s.out:
			if write(websocket.TextMessage, raw) != nil {
				return
			}
		case <-ticker.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (s *subscriber) handle(raw []byte) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		s.fail("", "malformed frame")
		return
	}

	switch f.Type {
	case framePing:
		s.reply(Frame{Type: framePong, ID: f.ID})
	case frameSubscribe, frameUnsubscribe:
		s.updateChannels(f)
	default:
		s.fail(f.ID, "unknown frame type: "+f.Type)
	}
}

// updateChannels applies a subscribe or unsubscribe frame. One unknown
// channel rejects the whole frame.
func (s *subscriber) updateChannels(f Frame) {
	if len(f.Channels) == 0 {
		s.fail(f.ID, f.Type+" needs at least one channel")
		return
	}
	for _, ch := range f.Channels {
		if !knownChannel(ch) {
			s.fail(f.ID, "unknown channel: "+ch)
			return
		}
	}

	s.mu.Lock()
	for _, ch := range f.Channels {
		if f.Type == frameSubscribe {
			s.channels[ch] = struct{}{}
		} else {
			delete(s.channels, ch)
		}
	}
	current := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		current = append(current, ch)
	}
	s.mu.Unlock()

	slices.Sort(current)
	s.hub.logger.Debug("websocket channels updated", "op", f.Type, "channels", current)
	s.reply(Frame{Type: frameAck, ID: f.ID, Channels: current})
}

func knownChannel(ch string) bool {
	switch ch {
	case channelAll, ChannelGatewayOnline, ChannelDeviceOnline, ChannelPropertyUpdate, ChannelDeviceEvent:
		return true
	}
	return false
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API binds to the local network next to the gateway.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket upgrades the request and attaches a subscriber. Nothing
// is delivered until the client subscribes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := newSubscriber(s.hub, conn)
	if !s.hub.add(sub) {
		conn.Close()
		return
	}
	s.logger.Debug("websocket subscriber connected", "remote", r.RemoteAddr, "subscribers", s.hub.Count())

	ping := time.Duration(s.wsCfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = 30 * time.Second
	}
	pong := time.Duration(s.wsCfg.PongTimeout) * time.Second
	if pong <= 0 {
		pong = 10 * time.Second
	}

	go sub.writeLoop(ping, pong)
	go sub.readLoop(int64(s.wsCfg.MaxMessageSize), ping+pong)
}
