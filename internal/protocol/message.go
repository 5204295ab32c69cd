package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	// CodeSuccess is the reply code for a successful request.
	CodeSuccess = 200

	// Version is sent in every request envelope.
	Version = "1.0"
)

// ErrDecode is returned for frames that are not valid protocol JSON.
var ErrDecode = errors.New("protocol: malformed frame")

// NewID returns a fresh request id (upper-case UUID).
func NewID() string {
	return strings.ToUpper(uuid.NewString())
}

// Request is an outbound frame.
type Request struct {
	ID         string
	DeviceID   string
	Method     Method
	Identifier string
	Params     any
}

// NewRequest returns a request with a fresh id.
func NewRequest(method Method, deviceID string) *Request {
	return &Request{
		ID:       NewID(),
		DeviceID: deviceID,
		Method:   method,
	}
}

type wireRequest struct {
	ID         string `json:"id"`
	Version    string `json:"version"`
	DeviceID   string `json:"deviceID"`
	Method     string `json:"method"`
	Identifier string `json:"identifier,omitempty"`
	Params     any    `json:"params,omitempty"`
}

// Encode marshals the request envelope.
func (r *Request) Encode() ([]byte, error) {
	if r.Method == MethodUnknown {
		return nil, fmt.Errorf("protocol: cannot encode request without a method")
	}
	return json.Marshal(wireRequest{
		ID:         r.ID,
		Version:    Version,
		DeviceID:   r.DeviceID,
		Method:     r.Method.String(),
		Identifier: r.Identifier,
		Params:     r.Params,
	})
}

// Message is a decoded inbound frame. Absent fields are zero values.
type Message struct {
	ID         string
	DeviceID   string
	Method     Method
	RawMethod  string
	Code       int
	Identifier string
	Params     json.RawMessage
	Data       json.RawMessage

	pageCount   *FlexInt
	currentPage *FlexInt
}

// Field matching in encoding/json is case-insensitive, so "PageCount" and
// "pageCount" both land in the same field.
type wireMessage struct {
	ID          json.RawMessage `json:"id"`
	DeviceID    string          `json:"deviceID"`
	Method      string          `json:"method"`
	Code        FlexInt         `json:"code"`
	Identifier  string          `json:"identifier"`
	Params      json.RawMessage `json:"params"`
	Data        json.RawMessage `json:"data"`
	PageCount   *FlexInt        `json:"pageCount"`
	CurrentPage *FlexInt        `json:"currentPage"`
}

// Decode parses an inbound frame. It fails with ErrDecode for invalid JSON
// and for frames without a method.
func Decode(payload []byte) (*Message, error) {
	var w wireMessage
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if w.Method == "" {
		return nil, fmt.Errorf("%w: missing method", ErrDecode)
	}

	return &Message{
		ID:          rawID(w.ID),
		DeviceID:    w.DeviceID,
		Method:      ParseMethod(w.Method),
		RawMethod:   w.Method,
		Code:        int(w.Code),
		Identifier:  w.Identifier,
		Params:      nonNull(w.Params),
		Data:        nonNull(w.Data),
		pageCount:   w.PageCount,
		currentPage: w.CurrentPage,
	}, nil
}

// rawID accepts string or numeric ids.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if bytes.Equal(raw, []byte("null")) {
		return ""
	}
	return string(raw)
}

func nonNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	return raw
}

// Succeeded reports whether the reply carries CodeSuccess.
func (m *Message) Succeeded() bool {
	return m.Code == CodeSuccess
}

// Properties decodes the property map carried by a property post or a
// property get reply. Params take precedence over data.
func (m *Message) Properties() (Properties, error) {
	src := m.Params
	if src == nil {
		src = m.Data
	}
	props := Properties{}
	if src == nil {
		return props, nil
	}
	if err := json.Unmarshal(src, &props); err != nil {
		return nil, fmt.Errorf("%w: properties: %w", ErrDecode, err)
	}
	return props, nil
}

// EventParams decodes the output parameters of an event post.
func (m *Message) EventParams() (map[string]any, error) {
	out := map[string]any{}
	if m.Params == nil {
		return out, nil
	}
	if err := json.Unmarshal(m.Params, &out); err != nil {
		return nil, fmt.Errorf("%w: event params: %w", ErrDecode, err)
	}
	return out, nil
}

// DevicePage is one page of a discovery reply.
type DevicePage struct {
	Devices     []DeviceRecord
	PageCount   int
	CurrentPage int

	// Paged is false when the reply carried no paging fields.
	Paged bool
}

type wireDevicePage struct {
	DeviceList  []DeviceRecord `json:"deviceList"`
	PageCount   *FlexInt       `json:"pageCount"`
	CurrentPage *FlexInt       `json:"currentPage"`
}

// DevicePage decodes the discovery payload. Paging fields are read from the
// envelope first and from data as a fallback.
func (m *Message) DevicePage() (*DevicePage, error) {
	var w wireDevicePage
	if m.Data != nil {
		if err := json.Unmarshal(m.Data, &w); err != nil {
			return nil, fmt.Errorf("%w: device list: %w", ErrDecode, err)
		}
	}

	pageCount, currentPage := m.pageCount, m.currentPage
	if pageCount == nil {
		pageCount = w.PageCount
	}
	if currentPage == nil {
		currentPage = w.CurrentPage
	}

	page := &DevicePage{Devices: w.DeviceList}
	if pageCount != nil {
		page.Paged = true
		page.PageCount = int(*pageCount)
		if currentPage != nil {
			page.CurrentPage = int(*currentPage)
		}
	}
	return page, nil
}

// DeviceRecord is a sub-device entry from a discovery reply.
type DeviceRecord struct {
	DeviceID         string  `json:"deviceID"`
	Profile          string  `json:"profile"`
	DeviceType       string  `json:"deviceType"`
	ProductID        string  `json:"productId"`
	Version          string  `json:"version"`
	DeviceStatus     string  `json:"deviceStatus"`
	Online           Flag    `json:"online"`
	Protocol         string  `json:"protocol"`
	Manufacturer     string  `json:"manufacturer"`
	ManufacturerCode FlexInt `json:"manufacturerCode"`
	ImageType        FlexInt `json:"imageType"`
	HouseholdID      string  `json:"householdId"`
	IsAdded          Flag    `json:"isAdded"`
	Config           struct {
		Name string `json:"name"`
	} `json:"config"`
}

// PropertyValue is a property reading as reported by the gateway.
type PropertyValue struct {
	Value        any   `json:"value"`
	Time         int64 `json:"time,omitempty"`
	ChangeByUser int   `json:"changeByUser,omitempty"`
}

// UnmarshalJSON accepts the {value,time,changeByUser} object form and bare
// scalars.
func (p *PropertyValue) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return err
		}
		if raw, ok := obj["value"]; ok {
			var w struct {
				Time         FlexInt `json:"time"`
				ChangeByUser FlexInt `json:"changeByUser"`
			}
			if err := json.Unmarshal(trimmed, &w); err != nil {
				return err
			}
			if err := json.Unmarshal(raw, &p.Value); err != nil {
				return err
			}
			p.Time = int64(w.Time)
			p.ChangeByUser = int(w.ChangeByUser)
			return nil
		}
	}
	*p = PropertyValue{}
	return json.Unmarshal(trimmed, &p.Value)
}

// Float returns the value as a float64 when it is numeric, boolean or a
// numeric string.
func (p PropertyValue) Float() (float64, bool) {
	switch v := p.Value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// Properties maps property identifiers to values.
type Properties map[string]PropertyValue

// Names returns the identifiers in sorted order.
func (p Properties) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Intersects reports whether any of names is present. An empty names list
// matches everything.
func (p Properties) Intersects(names []string) bool {
	if len(names) == 0 {
		return true
	}
	for _, name := range names {
		if _, ok := p[name]; ok {
			return true
		}
	}
	return false
}

