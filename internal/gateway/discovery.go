package gateway

import (
	"sync"

	"github.com/nerrad567/azoula-gateway/internal/protocol"
)

// discoverySession accumulates the pages of one discovery request.
type discoverySession struct {
	id         string
	pageCount  int
	highest    int
	seen       map[int]struct{}
	records    []protocol.DeviceRecord
	index      map[string]struct{}
	done       chan struct{}
	finished   bool
	superseded bool
	failCode   int
}

func newDiscoverySession(id string) *discoverySession {
	return &discoverySession{
		id:    id,
		seen:  make(map[int]struct{}),
		index: make(map[string]struct{}),
		done:  make(chan struct{}),
	}
}

// add appends records not seen before, keeping first-seen order.
func (s *discoverySession) add(records []protocol.DeviceRecord) {
	for _, rec := range records {
		if rec.DeviceID == "" {
			continue
		}
		if _, dup := s.index[rec.DeviceID]; dup {
			continue
		}
		s.index[rec.DeviceID] = struct{}{}
		s.records = append(s.records, rec)
	}
}

func (s *discoverySession) complete() {
	if !s.finished {
		s.finished = true
		close(s.done)
	}
}

// discovery reassembles paginated device lists. Only one session is active;
// starting another supersedes it.
type discovery struct {
	mu     sync.Mutex
	active *discoverySession
	logger Logger
}

func newDiscovery(logger Logger) *discovery {
	return &discovery{logger: logger}
}

// start opens a session for request id.
func (d *discovery) start(id string) *discoverySession {
	s := newDiscoverySession(id)

	d.mu.Lock()
	prev := d.active
	d.active = s
	if prev != nil {
		prev.superseded = true
		prev.complete()
	}
	d.mu.Unlock()

	if prev != nil {
		d.logger.Info("discovery superseded", "previous_id", prev.id, "id", id)
	}
	return s
}

// accept feeds a discovery reply into the active session. Replies echoing a
// different request id are stale and dropped. A reply without an id is
// attributed to the active session.
func (d *discovery) accept(msg *protocol.Message) {
	page, err := msg.DevicePage()
	if err != nil {
		d.logger.Warn("dropping discovery page", "error", err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.active
	if s == nil || s.finished {
		d.logger.Debug("discovery page without active session", "id", msg.ID)
		return
	}
	if msg.ID != "" && msg.ID != s.id {
		d.logger.Debug("stale discovery page", "id", msg.ID, "active_id", s.id)
		return
	}

	s.add(page.Devices)

	switch {
	case failed(msg):
		s.failCode = msg.Code
		s.complete()
	case !page.Paged || page.PageCount <= 0:
		s.complete()
	default:
		s.pageCount = page.PageCount
		s.seen[page.CurrentPage] = struct{}{}
		if page.CurrentPage > s.highest {
			s.highest = page.CurrentPage
		}
		if s.highest >= s.pageCount || len(s.seen) >= s.pageCount {
			s.complete()
		}
	}
}

// finish detaches s and returns its records. superseded reports whether a
// newer discovery replaced it.
func (d *discovery) finish(s *discoverySession) (records []protocol.DeviceRecord, superseded bool, failCode int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == s {
		d.active = nil
	}
	s.complete()
	out := make([]protocol.DeviceRecord, len(s.records))
	copy(out, s.records)
	return out, s.superseded, s.failCode
}

// failed reports a reply carrying a code other than success. An absent code
// counts as success, so only an explicit non-200 code rejects a reply. This
// is looser than a strict code == 200 test: a discovery page or property
// reply that omits code is accepted.
func failed(msg *protocol.Message) bool {
	return msg.Code != 0 && msg.Code != protocol.CodeSuccess
}
