package device

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// fakeHandle is a scripted Handle that records every call.
type fakeHandle struct {
	mu     sync.Mutex
	calls  []string
	status RawStatus
	err    error
	delay  time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeHandle) record(call string) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	delay, err := f.delay, f.err
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

func (f *fakeHandle) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeHandle) SetTemperature(_ context.Context, v float64) error {
	return f.record("temp:" + BroadlinkAC.FormatTemperature(v))
}
func (f *fakeHandle) SwitchOn(context.Context) error  { return f.record("on") }
func (f *fakeHandle) SwitchOff(context.Context) error { return f.record("off") }
func (f *fakeHandle) SetMode(_ context.Context, m string) error {
	return f.record("mode:" + m)
}
func (f *fakeHandle) SetFanSpeed(_ context.Context, s string) error {
	return f.record("fanspeed:" + s)
}
func (f *fakeHandle) Status(context.Context) (RawStatus, error) {
	if err := f.record("status"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

// fakeLibrary constructs fakeHandles and returns a fixed discovery result.
type fakeLibrary struct {
	devices      []RawDevice
	handles      map[string]*fakeHandle
	constructErr error
}

func (l *fakeLibrary) Discover(context.Context, time.Duration, string) ([]RawDevice, error) {
	return l.devices, nil
}

func (l *fakeLibrary) Construct(_ uint16, _ string, _ int, address, _ string, _ time.Duration) (Handle, error) {
	if l.constructErr != nil {
		return nil, l.constructErr
	}
	if l.handles == nil {
		l.handles = make(map[string]*fakeHandle)
	}
	h := &fakeHandle{}
	l.handles[address] = h
	return h, nil
}

func testDescriptor(address string) Descriptor {
	return Descriptor{
		Address:    address,
		Host:       "192.168.1.50",
		Port:       80,
		Name:       "Living Room",
		Family:     BroadlinkAC.Tag,
		DeviceType: DeviceTypeBroadlinkAC,
	}
}

func newTestAdapter(h *fakeHandle, timeout time.Duration) *Adapter {
	return NewAdapter(testDescriptor("AA:BB:CC:DD:EE:FF"), BroadlinkAC, h, timeout)
}
