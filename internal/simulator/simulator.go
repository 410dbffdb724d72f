package simulator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/ac-mqtt-bridge/internal/device"
	"github.com/nerrad567/ac-mqtt-bridge/internal/infrastructure/config"
)

// defaultPort is the Broadlink control port.
const defaultPort = 80

// ErrUnknownDevice is returned by Construct for an address that was never declared.
var ErrUnknownDevice = errors.New("simulator: unknown device")

// Library serves a fixed set of virtual devices.
//
// Thread Safety: All methods are safe for concurrent use.
type Library struct {
	mu      sync.Mutex
	devices []device.RawDevice
	units   map[string]*Unit
}

// New creates a library from the configured virtual devices. Entries without
// an address are skipped; a zero device type defaults to a Broadlink AC.
func New(specs []config.SimulatedDevice) *Library {
	lib := &Library{units: make(map[string]*Unit)}
	for _, s := range specs {
		if s.Address == "" {
			continue
		}
		addr := device.NormalizeAddress(s.Address)
		devType := s.DeviceType
		if devType == 0 {
			devType = device.DeviceTypeBroadlinkAC
		}
		host := s.Host
		if host == "" {
			host = "127.0.0.1"
		}
		port := s.Port
		if port == 0 {
			port = defaultPort
		}

		lib.devices = append(lib.devices, device.RawDevice{
			DeviceType: devType,
			Host:       host,
			Port:       port,
			Address:    addr,
			Name:       s.Name,
		})
		lib.units[addr] = newUnit(s.Temperature, s.AmbientTemperature)
	}
	return lib
}

// Discover returns every declared device. It honours ctx but otherwise
// answers immediately; timeout and bindAddress only matter on a real network.
func (l *Library) Discover(ctx context.Context, _ time.Duration, _ string) ([]device.RawDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]device.RawDevice, len(l.devices))
	copy(out, l.devices)
	return out, nil
}

// Construct returns the handle for a declared device.
func (l *Library) Construct(_ uint16, _ string, _ int, address, _ string, _ time.Duration) (device.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.units[device.NormalizeAddress(address)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, address)
	}
	return u, nil
}

// Unit returns the simulated device for address, for tests and tooling.
func (l *Library) Unit(address string) (*Unit, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.units[device.NormalizeAddress(address)]
	return u, ok
}

// Unit is one virtual air conditioner.
type Unit struct {
	mu          sync.Mutex
	power       bool
	mode        string
	fanSpeed    string
	temperature float64
	ambient     float64
	offline     bool
}

func newUnit(temperature, ambient float64) *Unit {
	if temperature == 0 {
		temperature = 22
	}
	if ambient == 0 {
		ambient = temperature
	}
	return &Unit{
		mode:        "AUTO",
		fanSpeed:    "AUTO",
		temperature: temperature,
		ambient:     ambient,
	}
}

// SetOffline makes every operation fail as unreachable until cleared.
func (u *Unit) SetOffline(offline bool) {
	u.mu.Lock()
	u.offline = offline
	u.mu.Unlock()
}

// SetAmbient changes the reported room temperature.
func (u *Unit) SetAmbient(v float64) {
	u.mu.Lock()
	u.ambient = v
	u.mu.Unlock()
}

// update applies fn under the lock unless the unit is offline.
func (u *Unit) update(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.offline {
		return device.ErrUnreachable
	}
	fn()
	return nil
}

func (u *Unit) SetTemperature(ctx context.Context, v float64) error {
	return u.update(ctx, func() { u.temperature = v })
}

func (u *Unit) SwitchOn(ctx context.Context) error {
	return u.update(ctx, func() { u.power = true })
}

func (u *Unit) SwitchOff(ctx context.Context) error {
	return u.update(ctx, func() { u.power = false })
}

func (u *Unit) SetMode(ctx context.Context, mode string) error {
	return u.update(ctx, func() { u.mode = mode })
}

func (u *Unit) SetFanSpeed(ctx context.Context, speed string) error {
	return u.update(ctx, func() { u.fanSpeed = speed })
}

// Status reports the unit in the library's raw shape.
func (u *Unit) Status(ctx context.Context) (device.RawStatus, error) {
	var st device.RawStatus
	err := u.update(ctx, func() {
		power := "OFF"
		if u.power {
			power = "ON"
		}
		st = device.RawStatus{
			device.StatusPower:       power,
			device.StatusMode:        u.mode,
			device.StatusFanSpeed:    u.fanSpeed,
			device.StatusTemperature: u.temperature,
			device.StatusAmbient:     u.ambient,
		}
	})
	return st, err
}
