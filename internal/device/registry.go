package device

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// View is the read-only face of the registry handed to the dispatcher,
// the publisher and the API.
type View interface {
	// Lookup returns the adapter for an address, or false if the address is unknown.
	Lookup(address string) (*Adapter, bool)

	// All returns every registered address in sorted order.
	All() []string

	// Len returns the number of registered devices.
	Len() int
}

// AdapterFactory builds an adapter for a descriptor.
type AdapterFactory func(desc Descriptor) (*Adapter, error)

// LibraryFactory returns an AdapterFactory that constructs handles through lib.
// A zero timeout selects each family's default.
func LibraryFactory(lib Library, timeout time.Duration) AdapterFactory {
	return func(desc Descriptor) (*Adapter, error) {
		family, err := FamilyForType(desc.DeviceType)
		if err != nil {
			return nil, err
		}
		handle, err := lib.Construct(desc.DeviceType, desc.Host, desc.Port, desc.Address, desc.Name, desc.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("constructing %s: %w", desc.Address, err)
		}
		return NewAdapter(desc, family, handle, timeout), nil
	}
}

// Registry holds discovered devices keyed by canonical address.
//
// Only the bridge controller mutates the registry (Register, Replace); every
// other component reads it through View.
//
// All public methods are thread-safe.
type Registry struct {
	factory AdapterFactory
	entries map[string]*Adapter
	mu      sync.RWMutex
	logger  Logger
}

// NewRegistry creates an empty registry that builds adapters with factory.
func NewRegistry(factory AdapterFactory) *Registry {
	return &Registry{
		factory: factory,
		entries: make(map[string]*Adapter),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register builds an adapter for desc and stores it, replacing any prior
// entry for the same address.
func (r *Registry) Register(desc Descriptor) (*Adapter, error) {
	desc.Address = NormalizeAddress(desc.Address)
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	adapter, err := r.factory(desc)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.entries[desc.Address] = adapter
	r.mu.Unlock()

	return adapter, nil
}

// Replace swaps the whole registry for the given descriptors.
//
// A device rediscovered with an identical descriptor keeps its adapter, so
// operations already in flight stay serialised with new ones. Descriptors that
// fail validation or construction are skipped and reported in the returned
// error alongside the count. When no descriptor yields an adapter the registry
// is left untouched and ErrDiscoveryEmpty is returned.
func (r *Registry) Replace(descs []Descriptor) (int, error) {
	current := r.Snapshot()
	next := make(map[string]*Adapter, len(descs))
	var errs []error
	reused := 0

	for _, desc := range descs {
		desc.Address = NormalizeAddress(desc.Address)
		if err := desc.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if existing, ok := current[desc.Address]; ok && existing.Descriptor() == desc {
			next[desc.Address] = existing
			reused++
			continue
		}
		adapter, err := r.factory(desc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		next[desc.Address] = adapter
	}

	if len(next) == 0 {
		return 0, errors.Join(append([]error{ErrDiscoveryEmpty}, errs...)...)
	}

	r.mu.Lock()
	r.entries = next
	r.mu.Unlock()

	r.logger.Info("device registry replaced", "count", len(next), "reused", reused, "skipped", len(errs))
	return len(next), errors.Join(errs...)
}

// Lookup returns the adapter registered for address.
// The address is normalised first, so any MAC notation matches.
func (r *Registry) Lookup(address string) (*Adapter, bool) {
	key := NormalizeAddress(address)

	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.entries[key]
	return a, ok
}

// All returns every registered address in sorted order.
func (r *Registry) All() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.entries))
	for addr := range r.entries {
		out = append(out, addr)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns the current adapters keyed by address.
// The map is a copy; adapters are shared.
func (r *Registry) Snapshot() map[string]*Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Adapter, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}
