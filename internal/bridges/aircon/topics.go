package aircon

import (
	"fmt"
	"strings"

	"github.com/nerrad567/ac-mqtt-bridge/internal/device"
	"github.com/nerrad567/ac-mqtt-bridge/internal/infrastructure/mqtt"
)

// Topic layout constants.
const (
	setSuffix        = "set"
	availabilityLeaf = "LWT"
	diagnosticsLeaf  = "diagnostics"

	// commandTopicParts is prefix levels + capability + address + "set".
	commandTopicParts = 3

	// Availability payloads.
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Route is a parsed command topic.
type Route struct {
	Capability device.CapabilityKind
	Address    string
}

// Router maps between bus topics and (capability, address) pairs.
// It is immutable after construction.
type Router struct {
	prefix      string
	prefixParts []string
}

// NewRouter creates a router for prefix. Leading and trailing separators are
// dropped, so "ac", "ac/" and "/ac/" are equivalent.
func NewRouter(prefix string) *Router {
	prefix = strings.Trim(prefix, mqtt.Separator)
	return &Router{
		prefix:      prefix,
		prefixParts: mqtt.SplitTopic(prefix),
	}
}

// Prefix returns the normalised topic prefix.
func (r *Router) Prefix() string { return r.prefix }

// CommandFilter returns the subscription filter covering every command topic.
func (r *Router) CommandFilter() string {
	return mqtt.JoinTopic(r.prefix, mqtt.SingleWildcard, mqtt.SingleWildcard, setSuffix)
}

// AvailabilityTopic returns the bridge's LWT topic.
func (r *Router) AvailabilityTopic() string {
	return mqtt.JoinTopic(r.prefix, availabilityLeaf)
}

// StateTopic returns the topic a capability's value is published on.
func (r *Router) StateTopic(capability device.CapabilityKind, address string) string {
	return mqtt.JoinTopic(r.prefix, string(capability), address)
}

// DiagnosticsTopic returns the per-device diagnostics topic.
func (r *Router) DiagnosticsTopic(address string) string {
	return mqtt.JoinTopic(r.prefix, diagnosticsLeaf, address)
}

// Parse decodes a command topic.
//
// Topics outside the prefix or not ending in /set fail with ErrNotOurTopic.
// A well-formed topic naming an unknown capability fails with
// ErrUnknownCapability. The address is normalised but not checked against
// the registry; that is the dispatcher's job.
func (r *Router) Parse(topic string) (Route, error) {
	parts := mqtt.SplitTopic(topic)
	if len(parts) != len(r.prefixParts)+commandTopicParts {
		return Route{}, ErrNotOurTopic
	}
	for i, p := range r.prefixParts {
		if parts[i] != p {
			return Route{}, ErrNotOurTopic
		}
	}
	rest := parts[len(r.prefixParts):]
	if rest[2] != setSuffix || rest[0] == "" || rest[1] == "" {
		return Route{}, ErrNotOurTopic
	}

	capability, ok := device.ParseCapability(rest[0])
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownCapability, rest[0])
	}

	return Route{
		Capability: capability,
		Address:    device.NormalizeAddress(rest[1]),
	}, nil
}
