package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/azoula-gateway/internal/protocol"
)

// result completes a waiter.
type result struct {
	msg   *protocol.Message
	props protocol.Properties
	err   error
}

// waiter is a pending call. ch is buffered so the resolver never blocks and
// whoever removes the waiter from its table is the only one to send.
type waiter struct {
	key      string
	byDevice bool
	names    []string
	ch       chan result
}

// correlator matches inbound replies to pending calls.
//
// Explicit waiters are keyed by request id. Implicit waiters are keyed by
// device id and resolved by the next property update for that device whose
// properties intersect names. There is one implicit slot per device; a newer
// waiter displaces the older one.
type correlator struct {
	mu       sync.Mutex
	byID     map[string]*waiter
	byDevice map[string]*waiter
	logger   Logger
}

func newCorrelator(logger Logger) *correlator {
	return &correlator{
		byID:     make(map[string]*waiter),
		byDevice: make(map[string]*waiter),
		logger:   logger,
	}
}

// expect registers an explicit waiter for request id.
func (c *correlator) expect(id string) *waiter {
	w := &waiter{key: id, ch: make(chan result, 1)}
	c.mu.Lock()
	c.byID[id] = w
	c.mu.Unlock()
	return w
}

// expectDevice registers the implicit waiter for deviceID.
func (c *correlator) expectDevice(deviceID string, names []string) *waiter {
	w := &waiter{key: deviceID, byDevice: true, names: names, ch: make(chan result, 1)}

	c.mu.Lock()
	prev := c.byDevice[deviceID]
	c.byDevice[deviceID] = w
	c.mu.Unlock()

	if prev != nil {
		c.logger.Warn("property read superseded", "device_id", deviceID)
		prev.ch <- result{err: ErrWaiterSuperseded}
	}
	return w
}

// resolveID completes the explicit waiter for msg.ID. It reports false when
// no caller is waiting.
func (c *correlator) resolveID(msg *protocol.Message) bool {
	if msg.ID == "" {
		return false
	}
	c.mu.Lock()
	w, ok := c.byID[msg.ID]
	if ok {
		delete(c.byID, msg.ID)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	w.ch <- result{msg: msg}
	return true
}

// resolveDevice completes the implicit waiter for deviceID if props
// intersect the names it asked for.
func (c *correlator) resolveDevice(deviceID string, props protocol.Properties, msg *protocol.Message) bool {
	c.mu.Lock()
	w, ok := c.byDevice[deviceID]
	if !ok || !props.Intersects(w.names) {
		c.mu.Unlock()
		return false
	}
	delete(c.byDevice, deviceID)
	c.mu.Unlock()

	w.ch <- result{msg: msg, props: props}
	return true
}

// cancel removes w if it is still registered. It reports false when w was
// already resolved.
func (c *correlator) cancel(w *waiter) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	table := c.byID
	if w.byDevice {
		table = c.byDevice
	}
	if table[w.key] != w {
		return false
	}
	delete(table, w.key)
	return true
}

// wait blocks until w resolves, ctx is done or timeout elapses, whichever
// comes first. An expired deadline of either kind yields ErrRequestTimeout.
func (c *correlator) wait(ctx context.Context, w *waiter, timeout time.Duration) (result, error) {
	limit := "caller deadline"
	if timeout > 0 {
		if d, ok := ctx.Deadline(); !ok || time.Until(d) > timeout {
			limit = timeout.String()
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case r := <-w.ch:
		return r, r.err
	case <-ctx.Done():
		if !c.cancel(w) {
			// Resolved while we were giving up.
			r := <-w.ch
			return r, r.err
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return result{}, fmt.Errorf("%w (%s)", ErrRequestTimeout, limit)
		}
		return result{}, ctx.Err()
	}
}

// pending returns the number of registered waiters.
func (c *correlator) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID) + len(c.byDevice)
}
