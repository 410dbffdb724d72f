package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Adapter is the per-device façade over a library Handle.
//
// It validates values against the device family before any network call,
// translates external vocabularies to native names, bounds every operation
// by a timeout, and never lets two operations on the same device overlap.
//
// Thread Safety: All methods are safe for concurrent use.
type Adapter struct {
	desc    Descriptor
	family  *Family
	handle  Handle
	timeout time.Duration

	// sem is a one-slot semaphore giving per-device exclusivity. A slot is
	// released only when the library call returns, even after the caller
	// has given up on it.
	sem chan struct{}

	now func() time.Time
}

// NewAdapter wraps handle for the device described by desc.
// A zero timeout selects the family default.
func NewAdapter(desc Descriptor, family *Family, handle Handle, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = family.Timeout
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Adapter{
		desc:    desc,
		family:  family,
		handle:  handle,
		timeout: timeout,
		sem:     make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Descriptor returns the device identity.
func (a *Adapter) Descriptor() Descriptor { return a.desc }

// Family returns the device family.
func (a *Adapter) Family() *Family { return a.family }

// Address returns the canonical device address.
func (a *Adapter) Address() string { return a.desc.Address }

// Timeout returns the bound applied to each operation.
func (a *Adapter) Timeout() time.Duration { return a.timeout }

// SetTemperature sets the target temperature, rounded to the family's step.
// Values outside the family band fail with ErrOutOfRange without touching the device.
func (a *Adapter) SetTemperature(ctx context.Context, value float64) error {
	if err := a.family.ValidateTemperature(value); err != nil {
		return err
	}
	value = a.family.SnapTemperature(value)
	return a.call(ctx, "set_temperature", func(ctx context.Context) error {
		return a.handle.SetTemperature(ctx, value)
	})
}

// SetPower switches the unit on or off.
func (a *Adapter) SetPower(ctx context.Context, on bool) error {
	return a.call(ctx, "set_power", func(ctx context.Context) error {
		if on {
			return a.handle.SwitchOn(ctx)
		}
		return a.handle.SwitchOff(ctx)
	})
}

// SetMode changes the operating mode.
//
// In the external vocabulary "off" powers the unit down and any other mode
// powers it up before switching, mirroring how home-automation climate
// entities treat mode as the on/off control.
func (a *Adapter) SetMode(ctx context.Context, name string, vocab Vocabulary) error {
	if vocab == VocabularyExternal && strings.EqualFold(strings.TrimSpace(name), ExternalModeOff) {
		return a.call(ctx, "set_mode", func(ctx context.Context) error {
			return a.handle.SwitchOff(ctx)
		})
	}

	native, err := a.family.NativeMode(name, vocab)
	if err != nil {
		return err
	}

	return a.call(ctx, "set_mode", func(ctx context.Context) error {
		if vocab == VocabularyExternal {
			if err := a.handle.SwitchOn(ctx); err != nil {
				return err
			}
		}
		return a.handle.SetMode(ctx, native)
	})
}

// SetFanSpeed changes the fan speed, translating from the given vocabulary.
func (a *Adapter) SetFanSpeed(ctx context.Context, value string, vocab Vocabulary) error {
	native, err := a.family.NativeFanSpeed(value, vocab)
	if err != nil {
		return err
	}
	return a.call(ctx, "set_fanspeed", func(ctx context.Context) error {
		return a.handle.SetFanSpeed(ctx, native)
	})
}

// ReadStatus queries the device and normalises the result.
// Fails with ErrUnreachable if the device does not answer within the timeout.
func (a *Adapter) ReadStatus(ctx context.Context) (State, error) {
	var raw RawStatus
	err := a.call(ctx, "read_status", func(ctx context.Context) error {
		var err error
		raw, err = a.handle.Status(ctx)
		return err
	})
	if err != nil {
		return State{}, err
	}
	return a.normalize(raw), nil
}

// call runs fn with per-device exclusivity and a bounded timeout.
func (a *Adapter) call(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	select {
	case a.sem <- struct{}{}:
	case <-ctx.Done():
		return a.contextError(op, ctx.Err())
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-a.sem }()
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in device library: %v", r)
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			return a.classify(op, err)
		}
		return nil
	case <-ctx.Done():
		return a.contextError(op, ctx.Err())
	}
}

func (a *Adapter) contextError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s %s: no answer within %v", ErrUnreachable, op, a.desc.Address, a.timeout)
	}
	return fmt.Errorf("%s %s: %w", op, a.desc.Address, err)
}

func (a *Adapter) classify(op string, err error) error {
	if errors.Is(err, ErrUnreachable) {
		return fmt.Errorf("%s %s: %w", op, a.desc.Address, err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %s %s: %w", ErrUnreachable, op, a.desc.Address, err)
	}
	return fmt.Errorf("%w: %s %s: %w", ErrCommandFailed, op, a.desc.Address, err)
}

// normalize converts the library status map to a State. Keys that are
// missing or malformed stay unknown.
func (a *Adapter) normalize(raw RawStatus) State {
	st := State{Timestamp: a.now().UTC(), Reachable: true}

	if v, ok := toFloat(raw[StatusTemperature]); ok {
		st.Temperature = Float(v)
	}
	if v, ok := toFloat(raw[StatusAmbient]); ok {
		st.AmbientTemperature = Float(v)
	}
	if v, ok := toPower(raw[StatusPower]); ok {
		st.Power = Bool(v)
	}
	if v, ok := raw[StatusMode].(string); ok && strings.TrimSpace(v) != "" {
		st.Mode = String(strings.ToUpper(strings.TrimSpace(v)))
	}
	if v, ok := raw[StatusFanSpeed].(string); ok && strings.TrimSpace(v) != "" {
		st.FanSpeed = String(strings.ToUpper(strings.TrimSpace(v)))
	}

	return st
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toPower(v any) (bool, bool) {
	switch p := v.(type) {
	case bool:
		return p, true
	case string:
		switch strings.ToUpper(strings.TrimSpace(p)) {
		case "ON":
			return true, true
		case "OFF":
			return false, true
		}
	}
	return false, false
}
