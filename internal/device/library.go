package device

import (
	"context"
	"time"
)

// Raw status keys reported by the device-control library.
const (
	StatusPower       = "power"
	StatusMode        = "mode"
	StatusFanSpeed    = "fanspeed"
	StatusTemperature = "temp"
	StatusAmbient     = "ambient_temp"
)

// RawDevice is a device as reported by the library's discovery call.
type RawDevice struct {
	DeviceType uint16
	Host       string
	Port       int
	Address    string
	Name       string
}

// RawStatus is the library's status shape: a loosely typed key/value map.
// Keys absent from the map are unknown.
type RawStatus map[string]any

// Library is the device-control collaborator that owns the wire protocol.
type Library interface {
	// Discover broadcasts on the local segment and returns responding devices.
	// An empty result with a nil error means nothing answered.
	Discover(ctx context.Context, timeout time.Duration, bindAddress string) ([]RawDevice, error)

	// Construct builds a handle for one device.
	Construct(deviceType uint16, host string, port int, address, name string, pollInterval time.Duration) (Handle, error)
}

// Handle is the library's per-device control surface.
//
// Implementations should honour ctx; the Adapter enforces its own timeout
// regardless.
type Handle interface {
	SetTemperature(ctx context.Context, value float64) error
	SwitchOn(ctx context.Context) error
	SwitchOff(ctx context.Context) error
	SetMode(ctx context.Context, mode string) error
	SetFanSpeed(ctx context.Context, speed string) error
	Status(ctx context.Context) (RawStatus, error)
}

// Descriptors converts discovery results into descriptors, keeping only
// devices whose type has a registered family. Duplicate addresses keep the
// last report. pollInterval applies to every device.
func Descriptors(raws []RawDevice, pollInterval time.Duration) (descs []Descriptor, skipped []RawDevice) {
	seen := make(map[string]int, len(raws))
	for _, raw := range raws {
		family, err := FamilyForType(raw.DeviceType)
		if err != nil {
			skipped = append(skipped, raw)
			continue
		}
		desc := Descriptor{
			Address:      NormalizeAddress(raw.Address),
			Host:         raw.Host,
			Port:         raw.Port,
			Name:         raw.Name,
			Family:       family.Tag,
			DeviceType:   raw.DeviceType,
			PollInterval: pollInterval,
		}
		if desc.Name == "" {
			desc.Name = desc.Address
		}
		if i, dup := seen[desc.Address]; dup {
			descs[i] = desc
			continue
		}
		seen[desc.Address] = len(descs)
		descs = append(descs, desc)
	}
	return descs, skipped
}
