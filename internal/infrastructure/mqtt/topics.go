package mqtt

import (
	"fmt"
	"strings"
)

// Topic level separator and wildcards.
const (
	Separator      = "/"
	SingleWildcard = "+"
	MultiWildcard  = "#"
)

// JoinTopic joins levels with "/", trimming stray separators at the joins.
//
//	JoinTopic("ac/", "temp", "AA:BB:CC:DD:EE:FF") // "ac/temp/AA:BB:CC:DD:EE:FF"
func JoinTopic(levels ...string) string {
	parts := make([]string, 0, len(levels))
	for _, l := range levels {
		l = strings.Trim(l, Separator)
		if l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, Separator)
}

// SplitTopic splits a topic into its levels.
func SplitTopic(topic string) []string {
	return strings.Split(topic, Separator)
}

// ValidatePublishTopic rejects empty topics and topics carrying wildcards.
func ValidatePublishTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, SingleWildcard+MultiWildcard) {
		return fmt.Errorf("%w: wildcard in publish topic %q", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateFilter checks wildcard placement in a subscription filter:
// "+" must fill a whole level and "#" must be the whole last level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	levels := SplitTopic(filter)
	for i, l := range levels {
		if strings.Contains(l, MultiWildcard) && (l != MultiWildcard || i != len(levels)-1) {
			return fmt.Errorf("%w: misplaced %q in %q", ErrInvalidTopic, MultiWildcard, filter)
		}
		if strings.Contains(l, SingleWildcard) && l != SingleWildcard {
			return fmt.Errorf("%w: misplaced %q in %q", ErrInvalidTopic, SingleWildcard, filter)
		}
	}
	return nil
}

// MatchTopic reports whether topic matches the subscription filter.
func MatchTopic(filter, topic string) bool {
	f := SplitTopic(filter)
	t := SplitTopic(topic)

	for i, level := range f {
		if level == MultiWildcard {
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != SingleWildcard && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}
