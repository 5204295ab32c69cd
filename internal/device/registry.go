package device

import (
	"sync"

	"github.com/nerrad567/azoula-gateway/internal/protocol"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry indexes the current discovery result set by device ID and keeps
// discovery order for listing.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device
	order   []string
	logger  Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// Replace swaps in a new result set. Nil entries are skipped and the first
// device wins when an ID repeats.
func (r *Registry) Replace(devices []*Device) {
	index := make(map[string]*Device, len(devices))
	order := make([]string, 0, len(devices))
	for _, d := range devices {
		if d == nil {
			continue
		}
		if _, dup := index[d.ID]; dup {
			continue
		}
		index[d.ID] = d
		order = append(order, d.ID)
	}

	r.mu.Lock()
	r.devices = index
	r.order = order
	logger := r.logger
	r.mu.Unlock()

	logger.Info("device registry replaced", "count", len(order))
}

// Get returns the device with the given ID.
func (r *Registry) Get(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d, nil
}

// List returns the devices in discovery order.
func (r *Registry) List() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Device, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.devices[id])
	}
	return out
}

// SetOnline updates a device's reachability and reports whether it changed.
func (r *Registry) SetOnline(id string, online bool) (bool, error) {
	d, err := r.Get(id)
	if err != nil {
		return false, err
	}
	return d.SetOnline(online), nil
}

// UpdateProperties merges reported values into a device.
func (r *Registry) UpdateProperties(id string, props protocol.Properties) error {
	d, err := r.Get(id)
	if err != nil {
		return err
	}
	d.UpdateProperties(props)
	return nil
}

// Snapshots copies the state of each device, keeping order.
func Snapshots(devices []*Device) []Snapshot {
	out := make([]Snapshot, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.Snapshot())
	}
	return out
}
