package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrUnreachable) {
//	    // mark stale and retry on the next poll
//	}
var (
	// ErrDiscoveryEmpty is returned when a discovery cycle finds no usable devices.
	// The previous registry contents are left untouched.
	ErrDiscoveryEmpty = errors.New("device: no devices discovered")

	// ErrOutOfRange is returned when a temperature falls outside the family band.
	ErrOutOfRange = errors.New("device: value out of range")

	// ErrUnknownMode is returned when a mode name is not in the family vocabulary.
	ErrUnknownMode = errors.New("device: unknown mode")

	// ErrUnknownFanSpeed is returned when a fan speed is not in the family vocabulary.
	ErrUnknownFanSpeed = errors.New("device: unknown fan speed")

	// ErrUnreachable is returned when a device does not answer within its timeout.
	ErrUnreachable = errors.New("device: unreachable")

	// ErrCommandFailed is returned when the device-control library rejects an operation.
	ErrCommandFailed = errors.New("device: command failed")

	// ErrUnknownFamily is returned when a device type has no registered family.
	ErrUnknownFamily = errors.New("device: unknown device family")

	// ErrInvalidDescriptor is returned when a descriptor lacks an address or endpoint.
	ErrInvalidDescriptor = errors.New("device: invalid descriptor")
)
