package mqtt

import (
	"errors"
	"testing"
)

func TestJoinTopic(t *testing.T) {
	tests := []struct {
		levels []string
		want   string
	}{
		{[]string{"ac", "temp", "AA:BB:CC:DD:EE:FF"}, "ac/temp/AA:BB:CC:DD:EE:FF"},
		{[]string{"ac/", "/LWT"}, "ac/LWT"},
		{[]string{"home/ac", "power", "x", "set"}, "home/ac/power/x/set"},
		{[]string{"ac", ""}, "ac"},
	}

	for _, tt := range tests {
		if got := JoinTopic(tt.levels...); got != tt.want {
			t.Errorf("JoinTopic(%q) = %q, want %q", tt.levels, got, tt.want)
		}
	}
}

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"ac/+/+/set", "ac/temp/AA:BB:CC:DD:EE:FF/set", true},
		{"ac/+/+/set", "ac/temp/AA:BB:CC:DD:EE:FF", false},
		{"ac/+/+/set", "other/temp/AA/set", false},
		{"ac/+/+/set", "ac/temp/AA/set/extra", false},
		{"ac/#", "ac/LWT", true},
		{"ac/#", "ac", true},
		{"ac/LWT", "ac/LWT", true},
		{"#", "anything/at/all", true},
	}

	for _, tt := range tests {
		if got := MatchTopic(tt.filter, tt.topic); got != tt.want {
			t.Errorf("MatchTopic(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}

func TestValidateFilter(t *testing.T) {
	valid := []string{"ac/+/+/set", "ac/#", "#", "+", "ac/LWT"}
	for _, f := range valid {
		if err := ValidateFilter(f); err != nil {
			t.Errorf("ValidateFilter(%q) unexpected error: %v", f, err)
		}
	}

	invalid := []string{"", "ac/#/set", "ac/te+mp", "ac/x#"}
	for _, f := range invalid {
		if err := ValidateFilter(f); !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("ValidateFilter(%q) = %v, want ErrInvalidTopic", f, err)
		}
	}
}

func TestValidatePublishTopic(t *testing.T) {
	if err := ValidatePublishTopic("ac/power/AA:BB:CC:DD:EE:FF"); err != nil {
		t.Errorf("ValidatePublishTopic() unexpected error: %v", err)
	}
	for _, topic := range []string{"", "ac/+/x", "ac/#"} {
		if err := ValidatePublishTopic(topic); !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("ValidatePublishTopic(%q) = %v, want ErrInvalidTopic", topic, err)
		}
	}
}
