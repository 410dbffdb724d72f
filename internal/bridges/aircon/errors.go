package aircon

import "errors"

// Bridge errors. Per-command and per-device failures are contained by the
// component that detects them; none of these terminate the bridge.
var (
	// ErrNotOurTopic is returned for topics outside the bridge's namespace.
	// Such messages are ignored without a warning.
	ErrNotOurTopic = errors.New("aircon: topic outside bridge namespace")

	// ErrUnknownCapability is returned when a command topic names a
	// capability the bridge does not accept.
	ErrUnknownCapability = errors.New("aircon: unknown capability")

	// ErrUnknownAddress is returned when a command targets an address that
	// is not in the registry.
	ErrUnknownAddress = errors.New("aircon: unknown address")

	// ErrInvalidPayload is returned when a command value cannot be decoded.
	ErrInvalidPayload = errors.New("aircon: invalid payload")

	// ErrNotReady is returned when a command arrives while the bridge is not
	// dispatching (discovering, shutting down or stopped).
	ErrNotReady = errors.New("aircon: bridge not ready")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("aircon: bridge already started")
)
