package sorter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeSensor struct {
	readings []Reading
	beginErr error
	begun    bool
}

func (f *fakeSensor) Begin(ctx context.Context) error {
	if f.beginErr != nil {
		return f.beginErr
	}
	f.begun = true
	return nil
}

func (f *fakeSensor) Read(ctx context.Context) (Reading, error) {
	if len(f.readings) == 0 {
		return Reading{}, errors.New("sensor timeout")
	}
	r := f.readings[0]
	// Keep repeating the last scripted reading
	if len(f.readings) > 1 {
		f.readings = f.readings[1:]
	}
	return r, nil
}

type fakeLight struct {
	sets []bool
}

func (f *fakeLight) Set(ctx context.Context, on bool) error {
	f.sets = append(f.sets, on)
	return nil
}

// testConfig returns the default config with all settle times zeroed so
// tests run instantly.
func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Selector.SettleMs = 0
	cfg.Sorter.SettleMs = 0
	cfg.Selector.Jostle.SettleMs = 0
	cfg.Sorter.Jostle.SettleMs = 0
	cfg.LightSettleMs = 0
	return cfg
}

type testRig struct {
	ctrl   *Controller
	selAct *fakeActuator
	sorAct *fakeActuator
	sensor *fakeSensor
	light  *fakeLight
}

func newTestRig(cfg *Config, readings ...Reading) *testRig {
	rig := &testRig{
		selAct: &fakeActuator{},
		sorAct: &fakeActuator{},
		sensor: &fakeSensor{readings: readings},
		light:  &fakeLight{},
	}
	rig.ctrl = NewController(cfg, Deps{
		Selector: NewPositioner("selector", rig.selAct, cfg.Selector.FullRange, cfg.Selector.Settle()),
		Sorter:   NewPositioner("sorter", rig.sorAct, cfg.Sorter.FullRange, cfg.Sorter.Settle()),
		Sensor:   rig.sensor,
		Light:    rig.light,
	})
	return rig
}

func (r *testRig) logs() []string {
	var logs []string
	for {
		select {
		case msg := <-r.ctrl.Logs():
			logs = append(logs, msg)
		default:
			return logs
		}
	}
}

func TestCycle_Yellow(t *testing.T) {
	cfg := testConfig()
	rig := newTestRig(cfg, Reading{R: 89.2, G: 102.3, B: 47.6})

	if err := rig.ctrl.cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	// Yellow routes to slot 0, which sits at angle 0.
	if got := rig.sorAct.last(); got != 0 {
		t.Errorf("sorter delivered at angle %d, want 0", got)
	}

	// Selector visits hopper, sensor and drop stations in order.
	if rig.selAct.angles[0] != cfg.Stations.Hopper {
		t.Errorf("first selector move = %d, want hopper station %d",
			rig.selAct.angles[0], cfg.Stations.Hopper)
	}
	sawSensor, sawDrop := false, false
	for _, a := range rig.selAct.angles {
		if a == cfg.Stations.Sensor {
			sawSensor = true
		}
		if sawSensor && a == cfg.Stations.Drop {
			sawDrop = true
		}
	}
	if !sawSensor || !sawDrop {
		t.Errorf("selector moves %v missed the sensor or drop station", rig.selAct.angles)
	}

	// Illumination toggles around the read.
	if len(rig.light.sets) != 2 || !rig.light.sets[0] || rig.light.sets[1] {
		t.Errorf("light toggles = %v, want [true false]", rig.light.sets)
	}

	if got := rig.ctrl.Counts()["Yellow"]; got != 1 {
		t.Errorf("Yellow count = %d, want 1", got)
	}

	// The diagnostic log carries the raw reading and the matched label.
	logs := strings.Join(rig.logs(), "\n")
	if !strings.Contains(logs, "r=89.2 g=102.3 b=47.6") {
		t.Errorf("logs missing raw reading:\n%s", logs)
	}
	if !strings.Contains(logs, "Yellow") {
		t.Errorf("logs missing matched label:\n%s", logs)
	}
}

func TestCycle_BlueAtTopOfRange(t *testing.T) {
	cfg := testConfig()
	rig := newTestRig(cfg, Reading{R: 39.7, G: 90.1, B: 112.5})

	if err := rig.ctrl.cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	// Blue routes to the last slot at the full 180 degrees.
	if got := rig.sorAct.last(); got != 180 {
		t.Errorf("sorter delivered at angle %d, want 180", got)
	}

	// The delivery jostle must not swing past the range: its center
	// shifts down by the amplitude, so the lowest swing reaches
	// 180 - 2*amplitude.
	low := 180 - 2*cfg.Sorter.Jostle.Amplitude
	sawLow := false
	for i, a := range rig.sorAct.angles {
		if a > 180 {
			t.Errorf("sorter move %d commanded %d, beyond full range", i, a)
		}
		if a == low {
			sawLow = true
		}
	}
	if !sawLow {
		t.Errorf("sorter moves %v never reached the shifted swing %d", rig.sorAct.angles, low)
	}
}

func TestCycle_SharedSlot(t *testing.T) {
	cfg := testConfig()
	cfg.Palette = []ProfileConfig{
		{Name: "Purple", R: 78.0, G: 70.2, B: 86.4, Slot: 4},
		{Name: "Violet", R: 84.5, G: 74.9, B: 93.0, Slot: 4},
	}

	rig := newTestRig(cfg,
		Reading{R: 78.0, G: 70.2, B: 86.4},
		Reading{R: 84.5, G: 74.9, B: 93.0},
	)

	want := cfg.Layout().Angle(4)
	for i := 0; i < 2; i++ {
		if err := rig.ctrl.cycle(context.Background()); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		if got := rig.sorAct.last(); got != want {
			t.Errorf("cycle %d delivered at angle %d, want %d", i, got, want)
		}
	}

	counts := rig.ctrl.Counts()
	if counts["Purple"] != 1 || counts["Violet"] != 1 {
		t.Errorf("counts = %v, want one Purple and one Violet", counts)
	}
}

func TestCycle_SensorErrorAborts(t *testing.T) {
	cfg := testConfig()
	rig := newTestRig(cfg) // no scripted readings: every read fails

	err := rig.ctrl.cycle(context.Background())
	if err == nil {
		t.Fatal("cycle succeeded without a sensor reading")
	}

	// The light still goes off, and nothing is delivered.
	if len(rig.light.sets) != 2 || rig.light.sets[1] {
		t.Errorf("light toggles = %v, want [true false]", rig.light.sets)
	}
	if len(rig.sorAct.angles) != 0 {
		t.Errorf("sorter moved (%v) despite aborted cycle", rig.sorAct.angles)
	}
	if len(rig.ctrl.Counts()) != 0 {
		t.Errorf("counts = %v, want empty", rig.ctrl.Counts())
	}
}

func TestStart_SensorInitFatal(t *testing.T) {
	cfg := testConfig()
	rig := newTestRig(cfg)
	rig.sensor.beginErr = errors.New("no sensor on bus")

	err := rig.ctrl.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "sensor init") {
		t.Errorf("Start error = %v, want sensor init failure", err)
	}
	if len(rig.selAct.angles) != 0 {
		t.Error("mechanisms moved despite failed sensor init")
	}

	// The failure must be visible on both channels, not just the
	// return value: a dashboard only sees what the channels carry.
	logs := strings.Join(rig.logs(), "\n")
	if !strings.Contains(logs, "no sensor on bus") {
		t.Errorf("logs missing the fatal diagnostic:\n%s", logs)
	}
	select {
	case s := <-rig.ctrl.States():
		if s.Err == nil || !strings.Contains(s.Err.Error(), "sensor init") {
			t.Errorf("state Err = %v, want sensor init failure", s.Err)
		}
	default:
		t.Error("no state emitted for the fatal init failure")
	}
}

func TestStart_RunsUntilCancelled(t *testing.T) {
	cfg := testConfig()
	rig := newTestRig(cfg, Reading{R: 89.2, G: 102.3, B: 47.6})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := rig.ctrl.Start(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Start returned %v, want context.Canceled", err)
	}

	if !rig.sensor.begun {
		t.Error("sensor was never initialized")
	}
	// Both mechanisms home to 0 before the first cycle.
	if len(rig.selAct.angles) == 0 || rig.selAct.angles[0] != 0 {
		t.Error("selector did not home first")
	}
	if len(rig.sorAct.angles) == 0 || rig.sorAct.angles[0] != 0 {
		t.Error("sorter did not home first")
	}
	// With zero settle times at least one full cycle completes.
	if rig.ctrl.Counts()["Yellow"] == 0 {
		t.Error("no cycle completed before cancellation")
	}
}
