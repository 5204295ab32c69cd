package tsl

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Well-known service identifiers.
const (
	// ServiceGet lists, as its input parameters, the properties that can be read on demand.
	ServiceGet = "get"

	// ServiceSet writes property values.
	ServiceSet = "set"

	// ServiceIdentify makes the device blink or beep.
	ServiceIdentify = "identify"
)

// ErrInvalidModel is returned by Parse for a structurally invalid TSL document.
var ErrInvalidModel = errors.New("tsl: invalid model")

// AccessMode is a property's access mode.
type AccessMode string

const (
	AccessRead      AccessMode = "r"
	AccessWrite     AccessMode = "w"
	AccessReadWrite AccessMode = "rw"
)

// CanRead reports whether the mode permits reading.
func (a AccessMode) CanRead() bool { return a == AccessRead || a == AccessReadWrite }

// CanWrite reports whether the mode permits writing.
func (a AccessMode) CanWrite() bool { return a == AccessWrite || a == AccessReadWrite }

// DataType is a property's type declaration. Specs is kept raw because its
// shape depends on Type (int ranges, enum maps, struct members).
type DataType struct {
	Type  string          `json:"type"`
	Specs json.RawMessage `json:"specs,omitempty"`
}

// Property declares a device property.
type Property struct {
	Identifier string     `json:"identifier"`
	Name       string     `json:"name,omitempty"`
	AccessMode AccessMode `json:"accessMode,omitempty"`
	DataType   DataType   `json:"dataType"`
}

// Service declares an invocable device service.
type Service struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name,omitempty"`
	CallType   string `json:"callType,omitempty"`
	InputData  Params `json:"inputData,omitempty"`
	OutputData Params `json:"outputData,omitempty"`
}

// Event declares a device event.
type Event struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name,omitempty"`
	// Type is the severity: info, alert or fault.
	Type       string `json:"type,omitempty"`
	OutputData Params `json:"outputData,omitempty"`
}

// Params is a list of parameter identifiers. On the wire each entry is
// either a bare identifier or an object carrying one.
type Params []string

func (p *Params) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*p = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Params, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj struct {
			Identifier string `json:"identifier"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return err
		}
		out = append(out, obj.Identifier)
	}
	*p = out
	return nil
}

// Contains reports whether id is one of the parameters.
func (p Params) Contains(id string) bool {
	for _, v := range p {
		if v == id {
			return true
		}
	}
	return false
}

// Model is a device's capability model. It is immutable after Parse.
type Model struct {
	Properties []Property `json:"properties"`
	Services   []Service  `json:"services"`
	Events     []Event    `json:"events"`
}

// Parse decodes a TSL document and checks that identifiers are present and
// unique within each list.
func Parse(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Model) validate() error {
	seen := make(map[string]struct{})
	check := func(kind, id string) error {
		if id == "" {
			return fmt.Errorf("%w: %s without identifier", ErrInvalidModel, kind)
		}
		key := kind + "/" + id
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate %s %q", ErrInvalidModel, kind, id)
		}
		seen[key] = struct{}{}
		return nil
	}

	for _, p := range m.Properties {
		if err := check("property", p.Identifier); err != nil {
			return err
		}
	}
	for _, s := range m.Services {
		if err := check("service", s.Identifier); err != nil {
			return err
		}
	}
	for _, e := range m.Events {
		if err := check("event", e.Identifier); err != nil {
			return err
		}
	}
	return nil
}

// PropertySpec returns the declaration of property id.
func (m *Model) PropertySpec(id string) (Property, bool) {
	if m == nil {
		return Property{}, false
	}
	for _, p := range m.Properties {
		if p.Identifier == id {
			return p, true
		}
	}
	return Property{}, false
}

// ServiceSpec returns the declaration of service id.
func (m *Model) ServiceSpec(id string) (Service, bool) {
	if m == nil {
		return Service{}, false
	}
	for _, s := range m.Services {
		if s.Identifier == id {
			return s, true
		}
	}
	return Service{}, false
}

// EventSpec returns the declaration of event id.
func (m *Model) EventSpec(id string) (Event, bool) {
	if m == nil {
		return Event{}, false
	}
	for _, e := range m.Events {
		if e.Identifier == id {
			return e, true
		}
	}
	return Event{}, false
}

// HasProperty reports whether the model declares property id.
func (m *Model) HasProperty(id string) bool {
	_, ok := m.PropertySpec(id)
	return ok
}

// HasService reports whether the model declares service id.
func (m *Model) HasService(id string) bool {
	_, ok := m.ServiceSpec(id)
	return ok
}

// HasEvent reports whether the model declares event id.
func (m *Model) HasEvent(id string) bool {
	_, ok := m.EventSpec(id)
	return ok
}

// CanGetProperty reports whether property id exists and is listed as an
// input of the "get" service. A declared property may still be write-only
// or event-only.
func (m *Model) CanGetProperty(id string) bool {
	if !m.HasProperty(id) {
		return false
	}
	get, ok := m.ServiceSpec(ServiceGet)
	return ok && get.InputData.Contains(id)
}

// GettableProperties returns, in declaration order, every property CanGetProperty accepts.
func (m *Model) GettableProperties() []string {
	if m == nil {
		return nil
	}
	var out []string
	for _, p := range m.Properties {
		if m.CanGetProperty(p.Identifier) {
			out = append(out, p.Identifier)
		}
	}
	return out
}

// SupportsIdentify reports whether the device declares the identify service.
func (m *Model) SupportsIdentify() bool {
	return m.HasService(ServiceIdentify)
}
