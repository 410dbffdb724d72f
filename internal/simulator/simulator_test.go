package simulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/ac-mqtt-bridge/internal/device"
	"github.com/nerrad567/ac-mqtt-bridge/internal/infrastructure/config"
)

func testLibrary() *Library {
	return New([]config.SimulatedDevice{
		{Address: "aa:bb:cc:dd:ee:ff", Name: "Living room", Temperature: 21},
		{Address: "112233445566", Name: "Bedroom", Host: "10.0.0.9", Port: 8080, DeviceType: 0x1234},
		{Name: "no address"},
	})
}

func TestDiscoverReturnsDeclaredDevices(t *testing.T) {
	lib := testLibrary()

	raws, err := lib.Discover(context.Background(), time.Second, "")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(raws) != 2 {
		t.Fatalf("Discover() returned %d devices, want 2", len(raws))
	}

	first := raws[0]
	if first.Address != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Address = %q, want normalised form", first.Address)
	}
	if first.DeviceType != device.DeviceTypeBroadlinkAC {
		t.Errorf("DeviceType = 0x%04X, want Broadlink AC default", first.DeviceType)
	}
	if first.Host != "127.0.0.1" || first.Port != defaultPort {
		t.Errorf("endpoint = %s:%d, want defaults", first.Host, first.Port)
	}

	second := raws[1]
	if second.Address != "11:22:33:44:55:66" || second.Host != "10.0.0.9" || second.Port != 8080 {
		t.Errorf("second device = %+v", second)
	}
	if second.DeviceType != 0x1234 {
		t.Errorf("DeviceType = 0x%04X, want 0x1234", second.DeviceType)
	}
}

func TestDiscoverHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := testLibrary().Discover(ctx, time.Second, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("Discover() error = %v, want context.Canceled", err)
	}
}

func TestConstructUnknownAddress(t *testing.T) {
	_, err := testLibrary().Construct(device.DeviceTypeBroadlinkAC, "h", 80, "00:00:00:00:00:01", "x", time.Second)
	if !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("Construct() error = %v, want ErrUnknownDevice", err)
	}
}

func TestUnitOperationsChangeStatus(t *testing.T) {
	lib := testLibrary()
	ctx := context.Background()

	h, err := lib.Construct(device.DeviceTypeBroadlinkAC, "127.0.0.1", 80, "AA-BB-CC-DD-EE-FF", "Living room", time.Second)
	if err != nil {
		t.Fatalf("Construct() error = %v", err)
	}

	st, err := h.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st[device.StatusPower] != "OFF" || st[device.StatusTemperature] != 21.0 || st[device.StatusAmbient] != 21.0 {
		t.Errorf("initial status = %v", st)
	}

	steps := []func(context.Context) error{
		h.SwitchOn,
		func(ctx context.Context) error { return h.SetTemperature(ctx, 24.5) },
		func(ctx context.Context) error { return h.SetMode(ctx, "COOLING") },
		func(ctx context.Context) error { return h.SetFanSpeed(ctx, "HIGH") },
	}
	for i, step := range steps {
		if err := step(ctx); err != nil {
			t.Fatalf("step %d error = %v", i, err)
		}
	}

	st, _ = h.Status(ctx)
	want := device.RawStatus{
		device.StatusPower:       "ON",
		device.StatusMode:        "COOLING",
		device.StatusFanSpeed:    "HIGH",
		device.StatusTemperature: 24.5,
		device.StatusAmbient:     21.0,
	}
	for k, v := range want {
		if st[k] != v {
			t.Errorf("status[%s] = %v, want %v", k, st[k], v)
		}
	}
}

func TestUnitOffline(t *testing.T) {
	lib := testLibrary()
	u, ok := lib.Unit("aa:bb:cc:dd:ee:ff")
	if !ok {
		t.Fatal("Unit() not found")
	}

	u.SetOffline(true)
	if _, err := u.Status(context.Background()); !errors.Is(err, device.ErrUnreachable) {
		t.Errorf("Status() error = %v, want ErrUnreachable", err)
	}
	if err := u.SwitchOn(context.Background()); !errors.Is(err, device.ErrUnreachable) {
		t.Errorf("SwitchOn() error = %v, want ErrUnreachable", err)
	}

	u.SetOffline(false)
	u.SetAmbient(19.5)
	st, err := u.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st[device.StatusAmbient] != 19.5 {
		t.Errorf("ambient = %v, want 19.5", st[device.StatusAmbient])
	}
}

func TestSimulatorDrivesAdapter(t *testing.T) {
	lib := testLibrary()
	reg := device.NewRegistry(device.LibraryFactory(lib, time.Second))

	raws, _ := lib.Discover(context.Background(), time.Second, "")
	descs, skipped := device.Descriptors(raws, time.Second)
	if len(skipped) != 1 {
		t.Fatalf("skipped = %d, want the unknown-type device", len(skipped))
	}
	if n, err := reg.Replace(descs); n != 1 || err != nil {
		t.Fatalf("Replace() = %d, %v", n, err)
	}

	a, ok := reg.Lookup("AA:BB:CC:DD:EE:FF")
	if !ok {
		t.Fatal("Lookup() not found")
	}
	if err := a.SetMode(context.Background(), "cool", device.VocabularyExternal); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}
	st, err := a.ReadStatus(context.Background())
	if err != nil {
		t.Fatalf("ReadStatus() error = %v", err)
	}
	if st.Power == nil || !*st.Power || st.Mode == nil || *st.Mode != "COOLING" {
		t.Errorf("state after external cool = %+v", st)
	}
}
