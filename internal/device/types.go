package device

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// CapabilityKind identifies one controllable attribute of a device.
// The string value is the token used in bus topics.
type CapabilityKind string

// Command capabilities accepted on <prefix>/<capability>/<address>/set.
const (
	CapTemperature      CapabilityKind = "temp"
	CapPower            CapabilityKind = "power"
	CapMode             CapabilityKind = "mode"
	CapFanSpeed         CapabilityKind = "fanspeed"
	CapFanSpeedExternal CapabilityKind = "fanspeed_homeassistant"
	CapModeExternal     CapabilityKind = "mode_homeassistant"
)

// CapAmbientTemperature is published but never accepted as a command.
const CapAmbientTemperature CapabilityKind = "ambient_temp"

// commandCapabilities is the enumerated set of command capabilities.
var commandCapabilities = []CapabilityKind{
	CapTemperature,
	CapPower,
	CapMode,
	CapFanSpeed,
	CapFanSpeedExternal,
	CapModeExternal,
}

// CommandCapabilities returns the capabilities that accept commands.
func CommandCapabilities() []CapabilityKind {
	out := make([]CapabilityKind, len(commandCapabilities))
	copy(out, commandCapabilities)
	return out
}

// ParseCapability resolves a topic token to a command capability.
// Matching is exact; topic tokens are case-sensitive on the bus.
func ParseCapability(token string) (CapabilityKind, bool) {
	for _, c := range commandCapabilities {
		if string(c) == token {
			return c, true
		}
	}
	return "", false
}

// Vocabulary selects which naming scheme a mode or fan-speed value uses.
type Vocabulary int

const (
	// VocabularyNative is the device family's own naming (e.g. "COOLING", "MID").
	VocabularyNative Vocabulary = iota

	// VocabularyExternal is the home-automation platform naming (e.g. "cool", "medium").
	VocabularyExternal
)

func (v Vocabulary) String() string {
	if v == VocabularyExternal {
		return "external"
	}
	return "native"
}

// Descriptor is the immutable identity of a discovered device.
type Descriptor struct {
	Address      string        `json:"address"`
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Name         string        `json:"name"`
	Family       string        `json:"family"`
	DeviceType   uint16        `json:"device_type"`
	PollInterval time.Duration `json:"poll_interval"`
}

// Endpoint returns host:port for logging.
func (d Descriptor) Endpoint() string {
	return net.JoinHostPort(d.Host, fmt.Sprint(d.Port))
}

// Validate checks the descriptor carries an address and a network endpoint.
func (d Descriptor) Validate() error {
	if d.Address == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidDescriptor)
	}
	if d.Host == "" {
		return fmt.Errorf("%w: host is required for %s", ErrInvalidDescriptor, d.Address)
	}
	if d.Port < 0 || d.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range for %s", ErrInvalidDescriptor, d.Port, d.Address)
	}
	return nil
}

// NormalizeAddress canonicalises a hardware address.
// MAC addresses in any notation net.ParseMAC accepts (or bare 12-digit hex)
// become upper-case colon form; anything else is upper-cased and trimmed.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if hw, err := net.ParseMAC(addr); err == nil {
		return strings.ToUpper(hw.String())
	}
	if len(addr) == 12 && isHex(addr) {
		parts := make([]string, 0, 6)
		for i := 0; i < 12; i += 2 {
			parts = append(parts, addr[i:i+2])
		}
		return strings.ToUpper(strings.Join(parts, ":"))
	}
	return strings.ToUpper(addr)
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// State is the last-known snapshot of one device.
//
// Nil pointer fields mean "not yet observed" and are never published.
type State struct {
	Temperature        *float64  `json:"temperature,omitempty"`
	AmbientTemperature *float64  `json:"ambient_temperature,omitempty"`
	Power              *bool     `json:"power,omitempty"`
	Mode               *string   `json:"mode,omitempty"`
	FanSpeed           *string   `json:"fan_speed,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
	Reachable          bool      `json:"reachable"`
}

// Clone returns a copy that shares no pointers with s.
func (s State) Clone() State {
	cpy := s
	if s.Temperature != nil {
		cpy.Temperature = Float(*s.Temperature)
	}
	if s.AmbientTemperature != nil {
		cpy.AmbientTemperature = Float(*s.AmbientTemperature)
	}
	if s.Power != nil {
		cpy.Power = Bool(*s.Power)
	}
	if s.Mode != nil {
		cpy.Mode = String(*s.Mode)
	}
	if s.FanSpeed != nil {
		cpy.FanSpeed = String(*s.FanSpeed)
	}
	return cpy
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
