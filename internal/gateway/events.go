package gateway

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/azoula-gateway/internal/protocol"
)

// EventKind identifies what an Event reports.
type EventKind int

const (
	// EventOnlineStatus reports gateway or sub-device reachability.
	EventOnlineStatus EventKind = iota + 1

	// EventPropertyUpdate reports property values posted by a device or
	// returned by a property read.
	EventPropertyUpdate

	// EventDevice reports an event posted by a device.
	EventDevice
)

func (k EventKind) String() string {
	switch k {
	case EventOnlineStatus:
		return "online_status"
	case EventPropertyUpdate:
		return "property_update"
	case EventDevice:
		return "device_event"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a notification delivered to listeners. Which fields are set
// depends on Kind.
type Event struct {
	Kind     EventKind
	DeviceID string
	Time     time.Time

	// EventOnlineStatus
	Online bool

	// EventPropertyUpdate
	Properties protocol.Properties

	// EventDevice
	Identifier string
	Params     map[string]any
}

// Listener receives events of the kind it registered for.
type Listener func(Event)

// ListenerOption configures a registration.
type ListenerOption func(*listener)

// WithAsync runs the listener in its own goroutine for each event instead
// of inline on the dispatcher.
func WithAsync() ListenerOption {
	return func(l *listener) { l.async = true }
}

type listener struct {
	kind    EventKind
	fn      Listener
	async   bool
	revoked atomic.Bool
}

// eventBus hands events from the MQTT goroutine to listeners. publish never
// blocks: events go into an unbounded FIFO drained by one dispatcher
// goroutine, so sync listeners see events in arrival order.
type eventBus struct {
	listenersMu sync.RWMutex
	listeners   []*listener

	queueMu sync.Mutex
	cond    *sync.Cond
	queue   []Event
	closed  bool

	stopped chan struct{}
	async   sync.WaitGroup
	logger  Logger
}

func newEventBus(logger Logger) *eventBus {
	b := &eventBus{
		stopped: make(chan struct{}),
		logger:  logger,
	}
	b.cond = sync.NewCond(&b.queueMu)
	go b.run()
	return b
}

// register adds a listener and returns its idempotent revoke func.
func (b *eventBus) register(kind EventKind, fn Listener, opts ...ListenerOption) func() {
	l := &listener{kind: kind, fn: fn}
	for _, opt := range opts {
		opt(l)
	}

	b.listenersMu.Lock()
	b.listeners = append(b.listeners, l)
	b.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.revoked.Store(true)
			b.listenersMu.Lock()
			defer b.listenersMu.Unlock()
			for i, existing := range b.listeners {
				if existing == l {
					b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// publish queues ev for dispatch. Events published after close are dropped.
func (b *eventBus) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	if b.closed {
		b.logger.Debug("event dropped after close", "kind", ev.Kind.String(), "device_id", ev.DeviceID)
		return
	}
	b.queue = append(b.queue, ev)
	b.cond.Signal()
}

func (b *eventBus) run() {
	defer close(b.stopped)
	for {
		b.queueMu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 {
			b.queueMu.Unlock()
			return
		}
		ev := b.queue[0]
		b.queue[0] = Event{}
		b.queue = b.queue[1:]
		b.queueMu.Unlock()

		b.dispatch(ev)
	}
}

func (b *eventBus) dispatch(ev Event) {
	b.listenersMu.RLock()
	snapshot := make([]*listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		if l.kind == ev.Kind {
			snapshot = append(snapshot, l)
		}
	}
	b.listenersMu.RUnlock()

	for _, l := range snapshot {
		if l.async {
			b.async.Add(1)
			go func(l *listener) {
				defer b.async.Done()
				b.invoke(l, ev)
			}(l)
			continue
		}
		b.invoke(l, ev)
	}
}

func (b *eventBus) invoke(l *listener, ev Event) {
	if l.revoked.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("listener panicked", "kind", ev.Kind.String(), "device_id", ev.DeviceID, "panic", r)
		}
	}()
	l.fn(ev)
}

// close drains queued events, stops the dispatcher and waits for async
// listeners to return. It is safe to call more than once.
func (b *eventBus) close() {
	b.queueMu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.queueMu.Unlock()

	<-b.stopped
	b.async.Wait()
}
