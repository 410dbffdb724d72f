package aircon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nerrad567/ac-mqtt-bridge/internal/device"
)

// Power payloads, matched case-insensitively on input and published upper-case.
const (
	powerOn  = "ON"
	powerOff = "OFF"
)

// Command is one decoded inbound command. It lives for a single message.
type Command struct {
	ID         string
	Address    string
	Capability device.CapabilityKind
	Value      string
}

// Dispatcher turns routed messages into device operations.
//
// It owns payload decoding for each capability and invokes exactly one
// adapter operation per valid command. It never retries: a failed command is
// reported to the caller and the next poll shows the device's real state.
type Dispatcher struct {
	devices device.View
}

// NewDispatcher creates a dispatcher resolving addresses through devices.
func NewDispatcher(devices device.View) *Dispatcher {
	return &Dispatcher{devices: devices}
}

// Dispatch decodes payload for route and runs the matching adapter operation.
// The returned Command is filled in as far as decoding got, so callers can
// report failures with a correlation ID.
func (d *Dispatcher) Dispatch(ctx context.Context, route Route, payload []byte) (Command, error) {
	cmd := Command{
		ID:         uuid.NewString(),
		Address:    route.Address,
		Capability: route.Capability,
		Value:      unwrapScalar(payload),
	}

	adapter, ok := d.devices.Lookup(route.Address)
	if !ok {
		return cmd, fmt.Errorf("%w: %s", ErrUnknownAddress, route.Address)
	}

	switch route.Capability {
	case device.CapTemperature:
		v, err := parseTemperature(cmd.Value)
		if err != nil {
			return cmd, err
		}
		return cmd, adapter.SetTemperature(ctx, v)

	case device.CapPower:
		on, err := parsePower(cmd.Value)
		if err != nil {
			return cmd, err
		}
		return cmd, adapter.SetPower(ctx, on)

	case device.CapMode:
		return cmd, adapter.SetMode(ctx, cmd.Value, device.VocabularyNative)

	case device.CapModeExternal:
		return cmd, adapter.SetMode(ctx, cmd.Value, device.VocabularyExternal)

	case device.CapFanSpeed:
		return cmd, adapter.SetFanSpeed(ctx, cmd.Value, device.VocabularyNative)

	case device.CapFanSpeedExternal:
		return cmd, adapter.SetFanSpeed(ctx, cmd.Value, device.VocabularyExternal)
	}

	return cmd, fmt.Errorf("%w: %q", ErrUnknownCapability, route.Capability)
}

// unwrapScalar returns the payload text with a JSON-encoded string unwrapped.
// Numbers and bare words pass through as written.
func unwrapScalar(payload []byte) string {
	s := strings.TrimSpace(string(payload))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		var inner string
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			return strings.TrimSpace(inner)
		}
	}
	return s
}

func parseTemperature(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: temperature %q is not a number", ErrInvalidPayload, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: temperature %q is not finite", ErrInvalidPayload, s)
	}
	return v, nil
}

func parsePower(s string) (bool, error) {
	switch strings.ToUpper(s) {
	case powerOn:
		return true, nil
	case powerOff:
		return false, nil
	}
	return false, fmt.Errorf("%w: power %q is neither on nor off", ErrInvalidPayload, s)
}

// commandResult classifies an error for metrics.
func commandResult(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, ErrUnknownAddress):
		return resultUnknown
	case errors.Is(err, ErrInvalidPayload):
		return resultInvalid
	case errors.Is(err, ErrNotReady):
		return resultNotReady
	case errors.Is(err, device.ErrOutOfRange),
		errors.Is(err, device.ErrUnknownMode),
		errors.Is(err, device.ErrUnknownFanSpeed):
		return resultRejected
	case errors.Is(err, device.ErrUnreachable):
		return resultUnreachable
	default:
		return resultFailed
	}
}
