package aircon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/ac-mqtt-bridge/internal/device"
)

// HistoryRecorder persists snapshots whose publication changed something.
// *device.SQLiteStateHistoryRepository satisfies it.
type HistoryRecorder interface {
	RecordStateChange(ctx context.Context, address string, state device.State, source string) error
}

// StateObserver is told about every snapshot that changed at least one
// published field. The API's WebSocket hub implements it.
type StateObserver interface {
	StateChanged(address string, state device.State)
}

// Update is one snapshot handed to the publisher by a device's poller.
type Update struct {
	Address string
	Family  *device.Family
	State   device.State

	// Force republishes every known field regardless of the diff.
	Force bool

	// Source labels the history row (device.StateHistorySourcePoll or
	// device.StateHistorySourceCommand).
	Source string
}

// Diagnostic is the JSON body published on <prefix>/diagnostics/<address>.
type Diagnostic struct {
	Address    string    `json:"address"`
	Capability string    `json:"capability,omitempty"`
	Error      string    `json:"error"`
	CommandID  string    `json:"command_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// field is one publishable value derived from a snapshot.
type field struct {
	capability device.CapabilityKind
	payload    string
}

// Publisher decides what reaches the bus for each device.
//
// It remembers the payload last published per (address, capability) and
// only publishes values that differ. A value is remembered only after the
// bus accepted it, so a failed publish is retried on the next snapshot.
//
// Thread Safety: safe for concurrent use. Callers must not publish the same
// address from two goroutines; the bridge guarantees one poller per device.
type Publisher struct {
	bus     Bus
	router  *Router
	qos     byte
	metrics *Metrics

	observerMu sync.RWMutex
	history    HistoryRecorder
	observer   StateObserver

	mu        sync.Mutex
	published map[string]map[device.CapabilityKind]string
	states    map[string]device.State
	// forceGen counts force requests per address; forceDone is the
	// generation last satisfied by a complete publish.
	forceGen  map[string]uint64
	forceDone map[string]uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// NewPublisher creates a publisher writing through bus.
func NewPublisher(bus Bus, router *Router, qos byte, metrics *Metrics) *Publisher {
	return &Publisher{
		bus:       bus,
		router:    router,
		qos:       qos,
		metrics:   metrics,
		published: make(map[string]map[device.CapabilityKind]string),
		states:    make(map[string]device.State),
		forceGen:  make(map[string]uint64),
		forceDone: make(map[string]uint64),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger.
func (p *Publisher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

func (p *Publisher) log() Logger {
	p.loggerMu.RLock()
	defer p.loggerMu.RUnlock()
	return p.logger
}

// SetHistory sets the optional history recorder.
func (p *Publisher) SetHistory(h HistoryRecorder) {
	p.observerMu.Lock()
	p.history = h
	p.observerMu.Unlock()
}

// SetObserver sets the optional state observer.
func (p *Publisher) SetObserver(o StateObserver) {
	p.observerMu.Lock()
	p.observer = o
	p.observerMu.Unlock()
}

// Publish sends the fields of u.State that changed since the last successful
// publication, or every known field when forced. It returns the number of
// messages the bus accepted.
func (p *Publisher) Publish(ctx context.Context, u Update) (int, error) {
	fields := stateFields(u.Family, u.State)

	p.mu.Lock()
	gen := p.forceGen[u.Address]
	force := u.Force || gen != p.forceDone[u.Address]
	prev := make(map[device.CapabilityKind]string, len(p.published[u.Address]))
	for k, v := range p.published[u.Address] {
		prev[k] = v
	}
	p.mu.Unlock()

	var errs []error
	sent := make(map[device.CapabilityKind]string, len(fields))
	for _, f := range fields {
		if old, seen := prev[f.capability]; seen && old == f.payload && !force {
			continue
		}
		topic := p.router.StateTopic(f.capability, u.Address)
		if err := p.bus.Publish(topic, []byte(f.payload), p.qos, false); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", topic, err))
			continue
		}
		sent[f.capability] = f.payload
		p.metrics.published(string(f.capability))
	}

	p.mu.Lock()
	if p.published[u.Address] == nil {
		p.published[u.Address] = make(map[device.CapabilityKind]string)
	}
	for k, v := range sent {
		p.published[u.Address][k] = v
	}
	// A force requested while this publish was in flight stays pending.
	if len(errs) == 0 && force && p.forceGen[u.Address] == gen {
		p.forceDone[u.Address] = gen
	}
	p.states[u.Address] = u.State.Clone()
	p.mu.Unlock()

	if len(sent) > 0 {
		p.notify(ctx, u)
	}

	return len(sent), errors.Join(errs...)
}

func (p *Publisher) notify(ctx context.Context, u Update) {
	p.observerMu.RLock()
	history, observer := p.history, p.observer
	p.observerMu.RUnlock()

	if history != nil {
		source := u.Source
		if source == "" {
			source = device.StateHistorySourcePoll
		}
		if err := history.RecordStateChange(ctx, u.Address, u.State, source); err != nil {
			p.log().Warn("failed to record state history", "address", u.Address, "error", err)
		}
	}
	if observer != nil {
		observer.StateChanged(u.Address, u.State.Clone())
	}
}

// MarkUnreachable records a failed read. The next snapshot for the address is
// republished in full.
func (p *Publisher) MarkUnreachable(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forceGen[address]++
	if st, ok := p.states[address]; ok {
		st.Reachable = false
		p.states[address] = st
	}
}

// ForceAll makes the next snapshot of every known address a full republish.
// Used after the bus (re)connects so late subscribers get current state.
func (p *Publisher) ForceAll(addresses []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range addresses {
		p.forceGen[a]++
	}
}

// Retain drops remembered state for addresses not in keep.
func (p *Publisher) Retain(keep []string) {
	set := make(map[string]bool, len(keep))
	for _, a := range keep {
		set[a] = true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for a := range p.published {
		if !set[a] {
			delete(p.published, a)
		}
	}
	for a := range p.states {
		if !set[a] {
			delete(p.states, a)
		}
	}
	for a := range p.forceGen {
		if !set[a] {
			delete(p.forceGen, a)
			delete(p.forceDone, a)
		}
	}
}

// LastState returns the most recent snapshot seen for address.
func (p *Publisher) LastState(address string) (device.State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.states[address]
	if !ok {
		return device.State{}, false
	}
	return st.Clone(), true
}

// PublishAvailability sets the retained availability topic.
func (p *Publisher) PublishAvailability(online bool) error {
	payload := PayloadOffline
	if online {
		payload = PayloadOnline
	}
	return p.bus.Publish(p.router.AvailabilityTopic(), []byte(payload), p.qos, true)
}

// PublishDiagnostic publishes a failure report for one device.
func (p *Publisher) PublishDiagnostic(d Diagnostic) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding diagnostic: %w", err)
	}
	return p.bus.Publish(p.router.DiagnosticsTopic(d.Address), body, p.qos, false)
}

// stateFields renders the known fields of st in publication order.
// Unknown fields are skipped; nothing is ever defaulted.
func stateFields(family *device.Family, st device.State) []field {
	out := make([]field, 0, 7)

	if st.Temperature != nil {
		out = append(out, field{device.CapTemperature, family.FormatTemperature(*st.Temperature)})
	}
	if st.AmbientTemperature != nil {
		out = append(out, field{device.CapAmbientTemperature, family.FormatTemperature(*st.AmbientTemperature)})
	}
	if st.Power != nil {
		out = append(out, field{device.CapPower, powerPayload(*st.Power)})
	}
	if st.Mode != nil {
		out = append(out, field{device.CapMode, *st.Mode})
	}
	if ext, ok := externalMode(family, st); ok {
		out = append(out, field{device.CapModeExternal, ext})
	}
	if st.FanSpeed != nil {
		out = append(out, field{device.CapFanSpeed, *st.FanSpeed})
		if ext, ok := family.ExternalFanSpeed(*st.FanSpeed); ok {
			out = append(out, field{device.CapFanSpeedExternal, ext})
		}
	}
	return out
}

// externalMode needs the power state: a unit that is off reports "off"
// whatever its mode, and an unknown power state reports nothing.
func externalMode(family *device.Family, st device.State) (string, bool) {
	if st.Power == nil {
		return "", false
	}
	if !*st.Power {
		return family.ExternalMode("", false)
	}
	if st.Mode == nil {
		return "", false
	}
	return family.ExternalMode(*st.Mode, true)
}

func powerPayload(on bool) string {
	if on {
		return powerOn
	}
	return powerOff
}
