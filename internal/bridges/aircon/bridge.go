package aircon

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/ac-mqtt-bridge/internal/device"
	"github.com/nerrad567/ac-mqtt-bridge/internal/infrastructure/mqtt"
)

// Bridge operation constants.
const (
	defaultPollInterval     = 10 * time.Second
	defaultDiscoveryTimeout = 5 * time.Second

	// pruneInterval is how often state history is trimmed.
	pruneInterval = 24 * time.Hour
)

// State is the bridge lifecycle state.
type State int32

// Lifecycle states. Ready is the only state in which commands reach devices.
const (
	StateUninitialized State = iota
	StateDiscovering
	StateReady
	StateDegraded
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateDiscovering:
		return "discovering"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Bus is the message-bus surface the bridge needs. *mqtt.Client satisfies it.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(filter string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// TelemetryWriter receives every successful status read.
// *influxdb.Client satisfies it.
type TelemetryWriter interface {
	WriteDeviceState(address string, st device.State)
}

// HistoryStore records and trims published state history.
// *device.SQLiteStateHistoryRepository satisfies it.
type HistoryStore interface {
	HistoryRecorder
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Options holds everything needed to build a Bridge.
type Options struct {
	// Bus is the connected message-bus client. Required.
	Bus Bus

	// Library is the device-control collaborator used for discovery. Required.
	Library device.Library

	// Registry holds discovered devices. Required; the bridge is its only writer.
	Registry *device.Registry

	// Prefix is the topic prefix, e.g. "ac".
	Prefix string

	// QoS is used for every publish and the command subscription.
	QoS byte

	// PollInterval applies to devices whose descriptor carries none.
	PollInterval time.Duration

	// DiscoveryTimeout bounds each discovery broadcast.
	DiscoveryTimeout time.Duration

	// BindAddress is the local interface used for discovery ("" for any).
	BindAddress string

	// Diagnostics publishes failures to <prefix>/diagnostics/<address>.
	Diagnostics bool

	// History is optional. When set, changed snapshots are recorded and rows
	// older than HistoryRetention are pruned daily.
	History          HistoryStore
	HistoryRetention time.Duration

	// Telemetry is optional.
	Telemetry TelemetryWriter

	// Metrics is optional.
	Metrics *Metrics

	// Logger is optional.
	Logger Logger
}

// DeviceStatus is a device's identity plus its last-known state.
type DeviceStatus struct {
	Descriptor device.Descriptor `json:"descriptor"`
	State      *device.State     `json:"state,omitempty"`
	Reachable  bool              `json:"reachable"`
}

// Bridge connects the bus to the device registry.
//
// It handles:
//   - Discovery at startup and on demand, with the Degraded fallback
//   - Routing and dispatching inbound commands
//   - One poller per device publishing state diffs
//   - Availability on <prefix>/LWT and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	bus        Bus
	library    device.Library
	registry   *device.Registry
	router     *Router
	dispatcher *Dispatcher
	publisher  *Publisher
	metrics    *Metrics

	qos              byte
	pollInterval     time.Duration
	discoveryTimeout time.Duration
	bindAddress      string
	diagnostics      bool
	history          HistoryStore
	retention        time.Duration

	telemetry   TelemetryWriter
	telemetryMu sync.RWMutex

	// stateMu guards state and inflight.Add so Stop can wait for every
	// command admitted before shutdown began.
	state    State
	stateMu  sync.Mutex
	inflight sync.WaitGroup

	// Pollers are replaced wholesale on rediscovery.
	pollers      map[string]*poller
	pollerCancel context.CancelFunc
	pollerGroup  *errgroup.Group
	pollersMu    sync.Mutex

	discoverMu sync.Mutex

	// Shutdown coordination
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a bridge. Call Start to discover devices and begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.Bus == nil {
		return nil, fmt.Errorf("bus is required")
	}
	if opts.Library == nil {
		return nil, fmt.Errorf("device library is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	router := NewRouter(opts.Prefix)
	if router.Prefix() == "" {
		return nil, fmt.Errorf("topic prefix is required")
	}

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	discoveryTimeout := opts.DiscoveryTimeout
	if discoveryTimeout <= 0 {
		discoveryTimeout = defaultDiscoveryTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		bus:              opts.Bus,
		library:          opts.Library,
		registry:         opts.Registry,
		router:           router,
		dispatcher:       NewDispatcher(opts.Registry),
		publisher:        NewPublisher(opts.Bus, router, opts.QoS, opts.Metrics),
		metrics:          opts.Metrics,
		qos:              opts.QoS,
		pollInterval:     pollInterval,
		discoveryTimeout: discoveryTimeout,
		bindAddress:      opts.BindAddress,
		diagnostics:      opts.Diagnostics,
		history:          opts.History,
		retention:        opts.HistoryRetention,
		telemetry:        opts.Telemetry,
		pollers:          make(map[string]*poller),
		ctx:              ctx,
		ctxCancel:        cancel,
		logger:           noopLogger{},
	}
	if opts.History != nil {
		b.publisher.SetHistory(opts.History)
	}
	if opts.Logger != nil {
		b.SetLogger(opts.Logger)
	}
	b.metrics.setState(StateUninitialized)

	return b, nil
}

// SetLogger sets the logger for the bridge and its publisher.
func (b *Bridge) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
	b.publisher.SetLogger(logger)
}

func (b *Bridge) log() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// SetObserver registers the observer notified of changed snapshots.
func (b *Bridge) SetObserver(o StateObserver) {
	b.publisher.SetObserver(o)
}

// SetTelemetry replaces the telemetry writer; nil disables telemetry.
func (b *Bridge) SetTelemetry(t TelemetryWriter) {
	b.telemetryMu.Lock()
	b.telemetry = t
	b.telemetryMu.Unlock()
}

func (b *Bridge) telemetryWriter() TelemetryWriter {
	b.telemetryMu.RLock()
	defer b.telemetryMu.RUnlock()
	return b.telemetry
}

// Router returns the bridge's topic router.
func (b *Bridge) Router() *Router { return b.router }

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.state
}

func (b *Bridge) setState(s State) {
	b.stateMu.Lock()
	prev := b.state
	b.state = s
	b.stateMu.Unlock()

	b.stateChanged(prev, s)
}

// transition moves from one state to another only if the bridge is still in
// from. It reports whether the move happened.
func (b *Bridge) transition(from, to State) bool {
	b.stateMu.Lock()
	if b.state != from {
		b.stateMu.Unlock()
		return false
	}
	b.state = to
	b.stateMu.Unlock()

	b.stateChanged(from, to)
	return true
}

func (b *Bridge) stateChanged(from, to State) {
	b.metrics.setState(to)
	if from != to {
		b.log().Info("bridge state changed", "from", from.String(), "to", to.String())
	}
}

// Start subscribes to command topics, announces availability, runs the
// initial discovery and starts polling.
//
// An empty discovery is not an error: the bridge enters Degraded and keeps
// running. Only a failed subscription is returned.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.transition(StateUninitialized, StateDiscovering) {
		return ErrAlreadyStarted
	}

	filter := b.router.CommandFilter()
	if err := b.bus.Subscribe(filter, b.qos, b.handleMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.log().Info("subscribed to commands", "topic", filter)

	b.announce()

	n, err := b.discover(ctx)
	if err != nil {
		b.log().Warn("no devices discovered, bridge degraded",
			"error", err,
			"bind_address", b.bindAddress,
			"timeout", b.discoveryTimeout)
		b.transition(StateDiscovering, StateDegraded)
	} else if b.transition(StateDiscovering, StateReady) {
		b.log().Info("bridge started", "devices", n, "prefix", b.router.Prefix())
	}

	if b.history != nil && b.retention > 0 {
		b.wg.Add(1)
		go b.pruneLoop()
	}

	return nil
}

// Stop shuts down cooperatively: new commands are refused, in-flight commands
// and status reads finish or time out, then "offline" is published.
// The bus connection is left for the caller to close.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.setState(StateShuttingDown)

		b.ctxCancel()
		b.inflight.Wait()

		// Holding discoverMu keeps a concurrent discovery from starting
		// pollers after they have been stopped.
		b.discoverMu.Lock()
		b.stopPollers()
		b.discoverMu.Unlock()

		b.wg.Wait()

		if err := b.publisher.PublishAvailability(false); err != nil {
			b.log().Warn("failed to publish offline status", "error", err)
		}

		b.setState(StateStopped)
		b.log().Info("bridge stopped")
	})
}

// HandleConnect is the bus (re)connection hook. It republishes availability
// and schedules a full state republish for every device.
func (b *Bridge) HandleConnect() {
	switch b.State() {
	case StateUninitialized, StateShuttingDown, StateStopped:
		return
	}

	b.announce()

	addrs := b.registry.All()
	b.publisher.ForceAll(addrs)
	b.nudgeAll(device.StateHistorySourcePoll)
	b.log().Info("bus connected, republishing state", "devices", len(addrs))
}

func (b *Bridge) announce() {
	if err := b.publisher.PublishAvailability(true); err != nil {
		b.log().Warn("failed to publish online status", "error", err)
	}
}

// Rediscover re-runs discovery. A non-empty result replaces the registry and
// restarts polling; an empty one leaves everything as it was and returns
// device.ErrDiscoveryEmpty.
func (b *Bridge) Rediscover(ctx context.Context) (int, error) {
	switch b.State() {
	case StateReady, StateDegraded:
	default:
		return 0, ErrNotReady
	}

	n, err := b.discover(ctx)
	if err != nil {
		return 0, err
	}
	b.transition(StateDegraded, StateReady)
	b.log().Info("rediscovery complete", "devices", n)
	return n, nil
}

// discover runs one discovery cycle and, when it yields devices, swaps the
// registry and the poller set.
func (b *Bridge) discover(ctx context.Context) (int, error) {
	b.discoverMu.Lock()
	defer b.discoverMu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, b.discoveryTimeout)
	defer cancel()

	raws, err := b.library.Discover(dctx, b.discoveryTimeout, b.bindAddress)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", device.ErrDiscoveryEmpty, err)
	}

	descs, skipped := device.Descriptors(raws, b.pollInterval)
	for _, raw := range skipped {
		b.log().Debug("ignoring device of unsupported type",
			"address", raw.Address,
			"device_type", fmt.Sprintf("0x%04X", raw.DeviceType))
	}

	if b.ctx.Err() != nil {
		return 0, ErrNotReady
	}

	// Pollers are quiesced before the swap so no read on a replaced adapter
	// overlaps a command on its successor.
	b.stopPollers()
	n, err := b.registry.Replace(descs)
	if n == 0 {
		if b.registry.Len() > 0 {
			b.startPollers()
		}
		return 0, err
	}
	if err != nil {
		b.log().Warn("some discovered devices were skipped", "error", err)
	}

	addrs := b.registry.All()
	b.publisher.Retain(addrs)
	b.metrics.setDevices(n)
	b.startPollers()

	for _, a := range addrs {
		if adapter, ok := b.registry.Lookup(a); ok {
			d := adapter.Descriptor()
			b.log().Info("device registered",
				"address", d.Address,
				"name", d.Name,
				"endpoint", d.Endpoint(),
				"family", d.Family)
		}
	}
	return n, nil
}

// startPollers replaces the running poller set with one poller per
// registered device.
func (b *Bridge) startPollers() {
	b.stopPollers()

	b.pollersMu.Lock()
	defer b.pollersMu.Unlock()

	ctx, cancel := context.WithCancel(b.ctx)
	g, gctx := errgroup.WithContext(ctx)

	pollers := make(map[string]*poller)
	for addr, adapter := range b.registry.Snapshot() {
		p := newPoller(adapter, b.pollInterval)
		pollers[addr] = p
		g.Go(func() error { return b.runPoller(gctx, p) })
	}

	b.pollers = pollers
	b.pollerCancel = cancel
	b.pollerGroup = g
}

func (b *Bridge) stopPollers() {
	b.pollersMu.Lock()
	cancel, g := b.pollerCancel, b.pollerGroup
	b.pollerCancel, b.pollerGroup = nil, nil
	b.pollers = make(map[string]*poller)
	b.pollersMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if err := g.Wait(); err != nil {
		b.log().Error("poller exited with error", "error", err)
	}
}

func (b *Bridge) nudge(address, source string) {
	b.pollersMu.Lock()
	p, ok := b.pollers[address]
	b.pollersMu.Unlock()
	if ok {
		p.nudge(source)
	}
}

func (b *Bridge) nudgeAll(source string) {
	b.pollersMu.Lock()
	defer b.pollersMu.Unlock()
	for _, p := range b.pollers {
		p.nudge(source)
	}
}

// handleMessage is the bus handler for command topics. Every outcome is
// reported here, once; the handler never returns an error to the transport.
func (b *Bridge) handleMessage(topic string, payload []byte) error {
	route, err := b.router.Parse(topic)
	if errors.Is(err, ErrNotOurTopic) {
		return nil
	}
	if err != nil {
		b.metrics.command("unknown", resultInvalid)
		b.log().Warn("ignoring command", "topic", topic, "error", err)
		return nil
	}

	b.stateMu.Lock()
	state := b.state
	admitted := state == StateReady
	if admitted {
		b.inflight.Add(1)
	}
	b.stateMu.Unlock()

	var cmd Command
	switch {
	case admitted:
		defer b.inflight.Done()
		cmd, err = b.dispatcher.Dispatch(context.WithoutCancel(b.ctx), route, payload)
	case state == StateDegraded:
		cmd = Command{Address: route.Address, Capability: route.Capability, Value: unwrapScalar(payload)}
		err = fmt.Errorf("%w: %s (no devices discovered)", ErrUnknownAddress, route.Address)
	default:
		b.metrics.command(string(route.Capability), resultNotReady)
		b.log().Debug("dropping command, bridge not ready", "topic", topic, "state", state.String())
		return nil
	}

	b.report(cmd, err)
	return nil
}

// report logs, counts and optionally publishes the outcome of a command.
func (b *Bridge) report(cmd Command, err error) {
	b.metrics.command(string(cmd.Capability), commandResult(err))

	if err == nil {
		b.log().Info("command executed",
			"command_id", cmd.ID,
			"address", cmd.Address,
			"capability", string(cmd.Capability),
			"value", cmd.Value)
		b.nudge(cmd.Address, device.StateHistorySourceCommand)
		return
	}

	b.log().Warn("command rejected",
		"command_id", cmd.ID,
		"address", cmd.Address,
		"capability", string(cmd.Capability),
		"value", cmd.Value,
		"error", err)
	b.diagnose(Diagnostic{
		Address:    cmd.Address,
		Capability: string(cmd.Capability),
		Error:      err.Error(),
		CommandID:  cmd.ID,
	})
}

func (b *Bridge) diagnose(d Diagnostic) {
	if !b.diagnostics {
		return
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	if err := b.publisher.PublishDiagnostic(d); err != nil {
		b.log().Debug("failed to publish diagnostic", "address", d.Address, "error", err)
	}
}

func (b *Bridge) pruneLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		n, err := b.history.PruneHistory(b.ctx, b.retention)
		switch {
		case err != nil && b.ctx.Err() == nil:
			b.log().Warn("state history prune failed", "error", err)
		case n > 0:
			b.log().Info("state history pruned", "rows", n)
		}

		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// BusConnected reports whether the bus client is connected.
func (b *Bridge) BusConnected() bool {
	return b.bus.IsConnected()
}

// Devices returns every registered device with its last-known state,
// sorted by address.
func (b *Bridge) Devices() []DeviceStatus {
	addrs := b.registry.All()
	out := make([]DeviceStatus, 0, len(addrs))
	for _, a := range addrs {
		if ds, ok := b.Device(a); ok {
			out = append(out, ds)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Descriptor.Address < out[j].Descriptor.Address })
	return out
}

// Device returns one device by address, in any MAC notation.
func (b *Bridge) Device(address string) (DeviceStatus, bool) {
	adapter, ok := b.registry.Lookup(address)
	if !ok {
		return DeviceStatus{}, false
	}
	ds := DeviceStatus{Descriptor: adapter.Descriptor()}
	if st, ok := b.publisher.LastState(adapter.Address()); ok {
		ds.State = &st
		ds.Reachable = st.Reachable
	}
	return ds, true
}
