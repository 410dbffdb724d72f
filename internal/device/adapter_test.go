package device

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestAdapterSetTemperature(t *testing.T) {
	t.Run("in range reaches device", func(t *testing.T) {
		h := &fakeHandle{}
		a := newTestAdapter(h, time.Second)

		if err := a.SetTemperature(context.Background(), 16); err != nil {
			t.Fatalf("SetTemperature(16) error = %v", err)
		}
		if got := h.Calls(); !reflect.DeepEqual(got, []string{"temp:16.0"}) {
			t.Errorf("calls = %v", got)
		}
	})

	t.Run("off-step value is rounded to the step", func(t *testing.T) {
		h := &fakeHandle{}
		a := newTestAdapter(h, time.Second)

		if err := a.SetTemperature(context.Background(), 22.3); err != nil {
			t.Fatalf("SetTemperature(22.3) error = %v", err)
		}
		if got := h.Calls(); !reflect.DeepEqual(got, []string{"temp:22.5"}) {
			t.Errorf("calls = %v, want [temp:22.5]", got)
		}
	})

	t.Run("out of range never reaches device", func(t *testing.T) {
		h := &fakeHandle{}
		a := newTestAdapter(h, time.Second)

		err := a.SetTemperature(context.Background(), 15.9)
		if !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("SetTemperature(15.9) error = %v, want ErrOutOfRange", err)
		}
		if got := h.Calls(); len(got) != 0 {
			t.Errorf("device was called: %v", got)
		}
	})
}

func TestAdapterSetMode(t *testing.T) {
	tests := []struct {
		name  string
		mode  string
		vocab Vocabulary
		want  []string
	}{
		{"native", "HEATING", VocabularyNative, []string{"mode:HEATING"}},
		{"external powers on first", "cool", VocabularyExternal, []string{"on", "mode:COOLING"}},
		{"external off powers down", "off", VocabularyExternal, []string{"off"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &fakeHandle{}
			a := newTestAdapter(h, time.Second)

			if err := a.SetMode(context.Background(), tt.mode, tt.vocab); err != nil {
				t.Fatalf("SetMode(%q) error = %v", tt.mode, err)
			}
			if got := h.Calls(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("calls = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("unknown mode", func(t *testing.T) {
		h := &fakeHandle{}
		a := newTestAdapter(h, time.Second)

		if err := a.SetMode(context.Background(), "turbo", VocabularyExternal); !errors.Is(err, ErrUnknownMode) {
			t.Errorf("SetMode(turbo) error = %v, want ErrUnknownMode", err)
		}
		if len(h.Calls()) != 0 {
			t.Errorf("device was called: %v", h.Calls())
		}
	})
}

func TestAdapterSetFanSpeed(t *testing.T) {
	h := &fakeHandle{}
	a := newTestAdapter(h, time.Second)

	if err := a.SetFanSpeed(context.Background(), "medium", VocabularyExternal); err != nil {
		t.Fatalf("SetFanSpeed(medium) error = %v", err)
	}
	if err := a.SetFanSpeed(context.Background(), "LOW", VocabularyNative); err != nil {
		t.Fatalf("SetFanSpeed(LOW) error = %v", err)
	}
	if got := h.Calls(); !reflect.DeepEqual(got, []string{"fanspeed:MID", "fanspeed:LOW"}) {
		t.Errorf("calls = %v", got)
	}
}

func TestAdapterErrorClassification(t *testing.T) {
	t.Run("slow device is unreachable", func(t *testing.T) {
		h := &fakeHandle{delay: 200 * time.Millisecond}
		a := newTestAdapter(h, 20*time.Millisecond)

		start := time.Now()
		err := a.SetPower(context.Background(), true)
		if !errors.Is(err, ErrUnreachable) {
			t.Fatalf("SetPower() error = %v, want ErrUnreachable", err)
		}
		if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
			t.Errorf("SetPower() took %v, want bounded by timeout", elapsed)
		}
	})

	t.Run("library failure is command failed", func(t *testing.T) {
		h := &fakeHandle{err: errors.New("checksum mismatch")}
		a := newTestAdapter(h, time.Second)

		err := a.SetPower(context.Background(), false)
		if !errors.Is(err, ErrCommandFailed) {
			t.Fatalf("SetPower() error = %v, want ErrCommandFailed", err)
		}
	})

	t.Run("library timeout is unreachable", func(t *testing.T) {
		h := &fakeHandle{err: context.DeadlineExceeded}
		a := newTestAdapter(h, time.Second)

		if _, err := a.ReadStatus(context.Background()); !errors.Is(err, ErrUnreachable) {
			t.Fatalf("ReadStatus() error = %v, want ErrUnreachable", err)
		}
	})
}

func TestAdapterExclusivity(t *testing.T) {
	h := &fakeHandle{delay: 10 * time.Millisecond}
	a := newTestAdapter(h, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.SetPower(context.Background(), true) //nolint:errcheck // Only overlap is under test
		}()
	}
	wg.Wait()

	if got := h.maxInFlight.Load(); got != 1 {
		t.Errorf("max concurrent device calls = %d, want 1", got)
	}
	if got := len(h.Calls()); got != 8 {
		t.Errorf("calls = %d, want 8", got)
	}
}

func TestAdapterReadStatus(t *testing.T) {
	h := &fakeHandle{status: RawStatus{
		StatusPower:       "ON",
		StatusMode:        "cooling",
		StatusFanSpeed:    "MID",
		StatusTemperature: 22.5,
		StatusAmbient:     "24.0",
		"swing":           "ignored",
	}}
	a := newTestAdapter(h, time.Second)

	st, err := a.ReadStatus(context.Background())
	if err != nil {
		t.Fatalf("ReadStatus() error = %v", err)
	}
	if !st.Reachable || st.Timestamp.IsZero() {
		t.Errorf("Reachable/Timestamp not set: %+v", st)
	}
	if st.Power == nil || !*st.Power {
		t.Errorf("Power = %v, want true", st.Power)
	}
	if st.Mode == nil || *st.Mode != "COOLING" {
		t.Errorf("Mode = %v, want COOLING", st.Mode)
	}
	if st.FanSpeed == nil || *st.FanSpeed != "MID" {
		t.Errorf("FanSpeed = %v, want MID", st.FanSpeed)
	}
	if st.Temperature == nil || *st.Temperature != 22.5 {
		t.Errorf("Temperature = %v, want 22.5", st.Temperature)
	}
	if st.AmbientTemperature == nil || *st.AmbientTemperature != 24 {
		t.Errorf("AmbientTemperature = %v, want 24", st.AmbientTemperature)
	}
}

func TestAdapterReadStatusPartial(t *testing.T) {
	h := &fakeHandle{status: RawStatus{StatusPower: false, StatusTemperature: "bogus"}}
	a := newTestAdapter(h, time.Second)

	st, err := a.ReadStatus(context.Background())
	if err != nil {
		t.Fatalf("ReadStatus() error = %v", err)
	}
	if st.Power == nil || *st.Power {
		t.Errorf("Power = %v, want false", st.Power)
	}
	if st.Temperature != nil || st.Mode != nil || st.FanSpeed != nil {
		t.Errorf("unknown fields should stay nil: %+v", st)
	}
}
