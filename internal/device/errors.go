package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID is not in the result set
	// or the snapshot store.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDevice is returned for a record without a device ID.
	ErrInvalidDevice = errors.New("device: invalid")
)
