package aircon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/ac-mqtt-bridge/internal/device"
	"github.com/nerrad567/ac-mqtt-bridge/internal/infrastructure/mqtt"
)

const testAddr = "AA:BB:CC:DD:EE:FF"

// mockBus implements Bus and records every publish.
type mockBus struct {
	mu         sync.Mutex
	published  []mockPublish
	handlers   map[string]mqtt.MessageHandler
	connected  bool
	publishErr error
	subErr     error

	// onPublish, when set, runs after each accepted publish without the lock.
	onPublish func(topic string)
}

type mockPublish struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

func newMockBus() *mockBus {
	return &mockBus{handlers: make(map[string]mqtt.MessageHandler), connected: true}
}

func (m *mockBus) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	if m.publishErr != nil {
		m.mu.Unlock()
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{topic, string(payload), qos, retained})
	hook := m.onPublish
	m.mu.Unlock()
	if hook != nil {
		hook(topic)
	}
	return nil
}

func (m *mockBus) Subscribe(filter string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subErr != nil {
		return m.subErr
	}
	m.handlers[filter] = handler
	return nil
}

func (m *mockBus) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockBus) setPublishErr(err error) {
	m.mu.Lock()
	m.publishErr = err
	m.mu.Unlock()
}

// deliver routes a message to the matching subscription, as the broker would.
func (m *mockBus) deliver(topic, payload string) error {
	m.mu.Lock()
	var h mqtt.MessageHandler
	for filter, handler := range m.handlers {
		if mqtt.MatchTopic(filter, topic) {
			h = handler
			break
		}
	}
	m.mu.Unlock()
	if h == nil {
		return nil
	}
	return h(topic, []byte(payload))
}

func (m *mockBus) Published() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

// On returns the payloads published on topic, in order.
func (m *mockBus) On(topic string) []string {
	var out []string
	for _, p := range m.Published() {
		if p.Topic == topic {
			out = append(out, p.Payload)
		}
	}
	return out
}

func (m *mockBus) reset() {
	m.mu.Lock()
	m.published = nil
	m.mu.Unlock()
}

// fakeHandle is a stateful device: setters change what Status reports.
// Power starts unknown so tests control the first power publication.
type fakeHandle struct {
	mu        sync.Mutex
	calls     []string
	power     *bool
	mode      string
	fanSpeed  string
	temp      float64
	ambient   float64
	statusErr error
	cmdErr    error

	// statusDelay holds each Status call; a negative delay holds it until
	// the caller's context ends.
	statusDelay time.Duration

	// active and maxActive count overlapping handle calls.
	active    int
	maxActive int
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{mode: "COOLING", fanSpeed: "MID", temp: 21, ambient: 23.5}
}

// enter marks a handle call as running and returns its exit func.
func (f *fakeHandle) enter() func() {
	f.mu.Lock()
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}
}

func (f *fakeHandle) record(call string, apply func()) error {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.cmdErr != nil {
		return f.cmdErr
	}
	apply()
	return nil
}

func (f *fakeHandle) SetTemperature(_ context.Context, v float64) error {
	return f.record(fmt.Sprintf("temp:%.1f", v), func() { f.temp = v })
}

func (f *fakeHandle) SwitchOn(context.Context) error {
	return f.record("on", func() { f.power = device.Bool(true) })
}

func (f *fakeHandle) SwitchOff(context.Context) error {
	return f.record("off", func() { f.power = device.Bool(false) })
}

func (f *fakeHandle) SetMode(_ context.Context, m string) error {
	return f.record("mode:"+m, func() { f.mode = m })
}

func (f *fakeHandle) SetFanSpeed(_ context.Context, s string) error {
	return f.record("fanspeed:"+s, func() { f.fanSpeed = s })
}

func (f *fakeHandle) Status(ctx context.Context) (device.RawStatus, error) {
	defer f.enter()()

	f.mu.Lock()
	delay := f.statusDelay
	f.mu.Unlock()
	switch {
	case delay < 0:
		<-ctx.Done()
		return nil, ctx.Err()
	case delay > 0:
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	st := device.RawStatus{
		device.StatusMode:        f.mode,
		device.StatusFanSpeed:    f.fanSpeed,
		device.StatusTemperature: f.temp,
		device.StatusAmbient:     f.ambient,
	}
	if f.power != nil {
		st[device.StatusPower] = *f.power
	}
	return st, nil
}

// Commands returns recorded setter calls.
func (f *fakeHandle) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeHandle) setStatusErr(err error) {
	f.mu.Lock()
	f.statusErr = err
	f.mu.Unlock()
}

func (f *fakeHandle) setStatusDelay(d time.Duration) {
	f.mu.Lock()
	f.statusDelay = d
	f.mu.Unlock()
}

// busy reports whether a handle call is running.
func (f *fakeHandle) busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active > 0
}

func (f *fakeHandle) peakConcurrency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

func (f *fakeHandle) setAmbient(v float64) {
	f.mu.Lock()
	f.ambient = v
	f.mu.Unlock()
}

// fakeLibrary discovers a fixed device list and hands out fakeHandles.
type fakeLibrary struct {
	mu          sync.Mutex
	devices     []device.RawDevice
	discoverErr error
	handles     map[string]*fakeHandle
}

func newFakeLibrary(addrs ...string) *fakeLibrary {
	lib := &fakeLibrary{handles: make(map[string]*fakeHandle)}
	for i, a := range addrs {
		lib.devices = append(lib.devices, device.RawDevice{
			DeviceType: device.DeviceTypeBroadlinkAC,
			Host:       fmt.Sprintf("192.168.1.%d", 50+i),
			Port:       80,
			Address:    a,
			Name:       "unit " + a,
		})
		lib.handles[device.NormalizeAddress(a)] = newFakeHandle()
	}
	return lib
}

func (l *fakeLibrary) Discover(context.Context, time.Duration, string) ([]device.RawDevice, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.devices, l.discoverErr
}

func (l *fakeLibrary) Construct(_ uint16, _ string, _ int, address, _ string, _ time.Duration) (device.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.handles[address]
	if !ok {
		return nil, errors.New("no such device")
	}
	return h, nil
}

func (l *fakeLibrary) handle(addr string) *fakeHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handles[addr]
}

func (l *fakeLibrary) setDevices(addrs ...string) {
	next := newFakeLibrary(addrs...)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.devices = next.devices
	for a, h := range next.handles {
		if _, ok := l.handles[a]; !ok {
			l.handles[a] = h
		}
	}
}

// recordingLogger counts log calls per level.
type recordingLogger struct {
	mu     sync.Mutex
	warns  []string
	errors []string
	infos  []string
	debugs []string
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.add(&l.debugs, msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.add(&l.infos, msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add(&l.warns, msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add(&l.errors, msg) }

func (l *recordingLogger) add(dst *[]string, msg string) {
	l.mu.Lock()
	*dst = append(*dst, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warns() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warns...)
}

func (l *recordingLogger) resetWarns() {
	l.mu.Lock()
	l.warns = nil
	l.mu.Unlock()
}

// testBridge wires a bridge to a mock bus and fake library.
// Pollers tick hourly, so only the initial read and nudges touch devices.
type testBridge struct {
	*Bridge
	bus    *mockBus
	lib    *fakeLibrary
	logger *recordingLogger
}

func newTestBridge(t *testing.T, opts Options, addrs ...string) *testBridge {
	t.Helper()

	bus := newMockBus()
	lib := newFakeLibrary(addrs...)
	logger := &recordingLogger{}

	opts.Bus = bus
	opts.Library = lib
	opts.Registry = device.NewRegistry(device.LibraryFactory(lib, time.Second))
	if opts.Prefix == "" {
		opts.Prefix = "ac"
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Hour
	}
	opts.Logger = logger

	b, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(b.Stop)

	return &testBridge{Bridge: b, bus: bus, lib: lib, logger: logger}
}

// start runs Start and waits until every device's first poll is published.
// The external fan speed is the last field of a snapshot to go out.
func (tb *testBridge) start(t *testing.T) {
	t.Helper()
	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for _, a := range tb.registry.All() {
		topic := tb.router.StateTopic(device.CapFanSpeedExternal, a)
		waitFor(t, "initial poll of "+a, func() bool { return len(tb.bus.On(topic)) > 0 })
	}
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
