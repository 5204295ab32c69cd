package gateway

import (
	"errors"

	"github.com/nerrad567/azoula-gateway/internal/device"
	"github.com/nerrad567/azoula-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/azoula-gateway/internal/protocol"
)

// Connection errors are shared with the mqtt package so errors.Is matches
// through either name.
var (
	ErrConnectionTimeout    = mqtt.ErrConnectionTimeout
	ErrAuthenticationFailed = mqtt.ErrAuthenticationFailed
	ErrNetwork              = mqtt.ErrNetwork
	ErrConnectionFailed     = mqtt.ErrConnectionFailed
	ErrNotConnected         = mqtt.ErrNotConnected
	ErrDecode               = protocol.ErrDecode
	ErrDeviceNotFound       = device.ErrDeviceNotFound
)

var (
	// ErrRequestTimeout is returned when no correlated reply arrived in time.
	ErrRequestTimeout = errors.New("gateway: request timed out")

	// ErrServiceInvocationFailed is returned when a service reply carries a
	// non-success code.
	ErrServiceInvocationFailed = errors.New("gateway: service invocation failed")

	// ErrRequestRejected is returned when a TSL reply carries a non-success
	// code.
	ErrRequestRejected = errors.New("gateway: request rejected")

	// ErrWaiterSuperseded is returned to a property read displaced by a newer
	// read of the same device.
	ErrWaiterSuperseded = errors.New("gateway: superseded by a newer request")

	// ErrDiscoverySuperseded is returned to a discovery displaced by a newer
	// one.
	ErrDiscoverySuperseded = errors.New("gateway: discovery superseded")

	// ErrUnsupported is returned when the device's TSL does not declare the
	// requested property or service.
	ErrUnsupported = errors.New("gateway: not supported by device")

	// ErrClosed is returned by operations on a closed Gateway.
	ErrClosed = errors.New("gateway: closed")
)

// Error records a failed gateway operation.
type Error struct {
	Op        string
	GatewayID string
	Err       error
}

func (e *Error) Error() string {
	return "gateway " + e.GatewayID + ": " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
