package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the broker refuses the connection
	// with a code that is neither an authentication nor a network failure.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrConnectionTimeout is returned when no CONNACK arrives within the connect timeout.
	ErrConnectionTimeout = errors.New("mqtt: connection timed out")

	// ErrAuthenticationFailed is returned for CONNACK codes 4 (bad username or
	// password) and 5 (not authorised).
	ErrAuthenticationFailed = errors.New("mqtt: authentication failed")

	// ErrNetwork is returned when the broker cannot be reached at all.
	ErrNetwork = errors.New("mqtt: network error")

	// ErrConnectInProgress is returned when Connect is called while another
	// attempt is still waiting for its CONNACK.
	ErrConnectInProgress = errors.New("mqtt: connect already in progress")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe operation fails.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty or invalid topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
