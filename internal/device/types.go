package device

import (
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/azoula-gateway/internal/protocol"
	"github.com/nerrad567/azoula-gateway/internal/tsl"
)

// typeNames are friendly names for Zigbee device type codes, used when the
// gateway record carries no configured name.
var typeNames = map[string]string{
	"0100": "ON/OFF Light",
	"0101": "Dimmable Light",
	"0102": "RGB Light",
	"010c": "CCT Light",
	"010d": "RGBCCT Light",
}

// TypeName returns the friendly name for a device type code.
func TypeName(deviceType string) (string, bool) {
	name, ok := typeNames[strings.ToLower(strings.TrimSpace(deviceType))]
	return name, ok
}

// Device is a sub-device behind the gateway.
//
// Identity fields are fixed at creation. Online state, TSL and properties are
// guarded by mu.
type Device struct {
	ID           string
	Name         string
	Profile      string
	DeviceType   string
	ProductID    string
	Version      string
	Manufacturer string
	Protocol     string
	DiscoveredAt time.Time

	mu         sync.RWMutex
	online     bool
	model      *tsl.Model
	properties protocol.Properties
	updatedAt  time.Time
}

// NewFromRecord builds a Device from a discovery record. The name falls back
// to the device type's friendly name and then to the ID.
func NewFromRecord(rec protocol.DeviceRecord) (*Device, error) {
	if rec.DeviceID == "" {
		return nil, ErrInvalidDevice
	}

	name := strings.TrimSpace(rec.Config.Name)
	if name == "" {
		if typeName, ok := TypeName(rec.DeviceType); ok {
			name = typeName
		} else {
			name = rec.DeviceID
		}
	}

	now := time.Now().UTC()
	return &Device{
		ID:           rec.DeviceID,
		Name:         name,
		Profile:      rec.Profile,
		DeviceType:   rec.DeviceType,
		ProductID:    rec.ProductID,
		Version:      rec.Version,
		Manufacturer: rec.Manufacturer,
		Protocol:     rec.Protocol,
		DiscoveredAt: now,
		online:       bool(rec.Online),
		properties:   make(protocol.Properties),
		updatedAt:    now,
	}, nil
}

// FromSnapshot rebuilds a Device from a stored snapshot.
func FromSnapshot(s Snapshot) *Device {
	d := &Device{
		ID:           s.ID,
		Name:         s.Name,
		Profile:      s.Profile,
		DeviceType:   s.DeviceType,
		ProductID:    s.ProductID,
		Version:      s.Version,
		Manufacturer: s.Manufacturer,
		Protocol:     s.Protocol,
		DiscoveredAt: s.DiscoveredAt,
		online:       s.Online,
		model:        s.TSL,
		properties:   maps.Clone(s.Properties),
		updatedAt:    s.UpdatedAt,
	}
	if d.properties == nil {
		d.properties = make(protocol.Properties)
	}
	return d
}

// Online reports the last known reachability.
func (d *Device) Online() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.online
}

// SetOnline records reachability and reports whether it changed.
func (d *Device) SetOnline(online bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	changed := d.online != online
	d.online = online
	d.updatedAt = time.Now().UTC()
	return changed
}

// TSL returns the capability model, or nil if it was never fetched.
func (d *Device) TSL() *tsl.Model {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.model
}

// SetTSL attaches a capability model.
func (d *Device) SetTSL(m *tsl.Model) {
	d.mu.Lock()
	d.model = m
	d.mu.Unlock()
}

// Categories returns the entity categories implied by the TSL.
func (d *Device) Categories() []tsl.Category {
	return tsl.RequiredCategories(d.TSL())
}

// Properties returns a copy of the last reported property values.
func (d *Device) Properties() protocol.Properties {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.properties)
}

// Property returns one property value.
func (d *Device) Property(id string) (protocol.PropertyValue, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.properties[id]
	return v, ok
}

// UpdateProperties merges reported values into the device.
func (d *Device) UpdateProperties(props protocol.Properties) {
	if len(props) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	maps.Copy(d.properties, props)
	d.updatedAt = time.Now().UTC()
}

// UpdatedAt is the time of the last online or property change.
func (d *Device) UpdatedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.updatedAt
}

// Snapshot is a point-in-time copy of a Device, used for JSON output and
// persistence.
type Snapshot struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Profile      string              `json:"profile,omitempty"`
	DeviceType   string              `json:"device_type,omitempty"`
	ProductID    string              `json:"product_id,omitempty"`
	Version      string              `json:"version,omitempty"`
	Manufacturer string              `json:"manufacturer,omitempty"`
	Protocol     string              `json:"protocol,omitempty"`
	Online       bool                `json:"online"`
	Categories   []tsl.Category      `json:"categories,omitempty"`
	Properties   protocol.Properties `json:"properties,omitempty"`
	TSL          *tsl.Model          `json:"tsl,omitempty"`
	DiscoveredAt time.Time           `json:"discovered_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Snapshot copies the device's current state.
func (d *Device) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Snapshot{
		ID:           d.ID,
		Name:         d.Name,
		Profile:      d.Profile,
		DeviceType:   d.DeviceType,
		ProductID:    d.ProductID,
		Version:      d.Version,
		Manufacturer: d.Manufacturer,
		Protocol:     d.Protocol,
		Online:       d.online,
		Categories:   tsl.RequiredCategories(d.model),
		Properties:   maps.Clone(d.properties),
		TSL:          d.model,
		DiscoveredAt: d.DiscoveredAt,
		UpdatedAt:    d.updatedAt,
	}
}
