package device

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DeviceTypeBroadlinkAC is the device type code reported by Broadlink-class
// split air conditioners during discovery.
const DeviceTypeBroadlinkAC uint16 = 0x4E2A

// ExternalModeOff is the external-vocabulary mode that powers the unit down.
const ExternalModeOff = "off"

// Family describes one class of climate-control appliance.
//
// Translation tables map external names (lower-case) to native names
// (upper-case). The reverse direction is derived on demand.
type Family struct {
	Tag                 string
	DeviceType          uint16
	MinTemperature      float64
	MaxTemperature      float64
	TemperatureStep     float64
	TemperatureDecimals int
	Modes               []string
	FanSpeeds           []string
	ExternalModes       map[string]string
	ExternalFanSpeeds   map[string]string
	Timeout             time.Duration
}

// BroadlinkAC is the built-in family for Broadlink-class air conditioners.
var BroadlinkAC = &Family{
	Tag:                 "broadlink-ac",
	DeviceType:          DeviceTypeBroadlinkAC,
	MinTemperature:      16,
	MaxTemperature:      32,
	TemperatureStep:     0.5,
	TemperatureDecimals: 1,
	Modes:               []string{"COOLING", "DRY", "HEATING", "AUTO", "FAN"},
	FanSpeeds:           []string{"LOW", "MID", "HIGH", "AUTO"},
	ExternalModes: map[string]string{
		"auto":     "AUTO",
		"cool":     "COOLING",
		"heat":     "HEATING",
		"dry":      "DRY",
		"fan_only": "FAN",
	},
	ExternalFanSpeeds: map[string]string{
		"low":    "LOW",
		"medium": "MID",
		"high":   "HIGH",
		"auto":   "AUTO",
	},
	Timeout: 5 * time.Second,
}

var (
	families   = map[uint16]*Family{DeviceTypeBroadlinkAC: BroadlinkAC}
	familiesMu sync.RWMutex
)

// RegisterFamily adds or replaces the family for f.DeviceType.
func RegisterFamily(f *Family) {
	familiesMu.Lock()
	families[f.DeviceType] = f
	familiesMu.Unlock()
}

// FamilyForType returns the family registered for a device type code.
func FamilyForType(deviceType uint16) (*Family, error) {
	familiesMu.RLock()
	f, ok := families[deviceType]
	familiesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: type 0x%04X", ErrUnknownFamily, deviceType)
	}
	return f, nil
}

// ValidateTemperature rejects values outside [MinTemperature, MaxTemperature].
// Both bounds are inclusive.
func (f *Family) ValidateTemperature(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %v is not a finite temperature", ErrOutOfRange, v)
	}
	if v < f.MinTemperature || v > f.MaxTemperature {
		return fmt.Errorf("%w: %v outside %v..%v", ErrOutOfRange, v, f.MinTemperature, f.MaxTemperature)
	}
	return nil
}

// SnapTemperature rounds v to the nearest TemperatureStep counted from
// MinTemperature, staying inside the band. A zero step leaves v unchanged.
func (f *Family) SnapTemperature(v float64) float64 {
	if f.TemperatureStep <= 0 {
		return v
	}
	snapped := f.MinTemperature + math.Round((v-f.MinTemperature)/f.TemperatureStep)*f.TemperatureStep
	return math.Min(math.Max(snapped, f.MinTemperature), f.MaxTemperature)
}

// FormatTemperature renders a temperature with the family's display precision.
func (f *Family) FormatTemperature(v float64) string {
	return strconv.FormatFloat(v, 'f', f.TemperatureDecimals, 64)
}

// NativeMode resolves a mode name in the given vocabulary to the native name.
// The external "off" mode is not a native mode and is handled by the adapter.
func (f *Family) NativeMode(name string, vocab Vocabulary) (string, error) {
	if vocab == VocabularyExternal {
		native, ok := f.ExternalModes[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownMode, name)
		}
		return native, nil
	}
	upper := strings.ToUpper(strings.TrimSpace(name))
	for _, m := range f.Modes {
		if m == upper {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, name)
}

// NativeFanSpeed resolves a fan speed in the given vocabulary to the native name.
func (f *Family) NativeFanSpeed(value string, vocab Vocabulary) (string, error) {
	if vocab == VocabularyExternal {
		native, ok := f.ExternalFanSpeeds[strings.ToLower(strings.TrimSpace(value))]
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownFanSpeed, value)
		}
		return native, nil
	}
	upper := strings.ToUpper(strings.TrimSpace(value))
	for _, s := range f.FanSpeeds {
		if s == upper {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFanSpeed, value)
}

// ExternalMode maps a native mode back to the external vocabulary.
// A powered-off unit is reported as "off" regardless of its mode.
func (f *Family) ExternalMode(native string, powered bool) (string, bool) {
	if !powered {
		return ExternalModeOff, true
	}
	return reverseLookup(f.ExternalModes, native)
}

// ExternalFanSpeed maps a native fan speed back to the external vocabulary.
func (f *Family) ExternalFanSpeed(native string) (string, bool) {
	return reverseLookup(f.ExternalFanSpeeds, native)
}

// reverseLookup finds the external key for a native value. Keys are scanned in
// sorted order so aliases resolve deterministically.
func reverseLookup(table map[string]string, native string) (string, bool) {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if table[k] == native {
			return k, true
		}
	}
	return "", false
}
