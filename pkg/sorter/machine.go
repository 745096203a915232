package sorter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Phase is one station of the sorting cycle.
type Phase string

// The cycle is loading -> presenting -> measuring -> routing ->
// delivering, then back to loading. It has no terminal phase; the machine
// sorts until the process is stopped.
const (
	PhaseLoading    Phase = "loading"
	PhasePresenting Phase = "presenting"
	PhaseMeasuring  Phase = "measuring"
	PhaseRouting    Phase = "routing"
	PhaseDelivering Phase = "delivering"
)

// ColorSensor is the color sensor collaborator. Begin runs once at
// startup; a failure there is fatal. Read blocks for the sensor's
// integration time and returns raw channel intensities.
type ColorSensor interface {
	Begin(ctx context.Context) error
	Read(ctx context.Context) (Reading, error)
}

// Light toggles the illumination LED next to the sensor.
type Light interface {
	Set(ctx context.Context, on bool) error
}

// State is a snapshot of the controller, published on every phase change
// and at the end of each cycle.
type State struct {
	Phase     Phase
	Cycle     int
	Reading   Reading
	Match     string
	Slot      Slot
	Distance  float64
	Counts    map[string]int
	Timestamp time.Time
	Err       error
}

// Deps bundles the hardware collaborators the controller drives.
type Deps struct {
	Selector *Positioner
	Sorter   *Positioner
	Sensor   ColorSensor
	Light    Light
}

// Controller runs the sorting cycle. Execution is strictly serial: one
// candy at a time, every actuation blocking until settled. Nothing here
// runs concurrently with the cycle itself; the mutex only guards the
// snapshot data read by the UI.
type Controller struct {
	selector *Positioner
	sorter   *Positioner
	sensor   ColorSensor
	light    Light

	palette     Palette
	layout      SlotLayout
	stations    StationConfig
	selJostle   JostleProfile
	sortJostle  JostleProfile
	lightSettle time.Duration

	mu      sync.RWMutex
	running bool
	cycleN  int
	counts  map[string]int
	stateCh chan State
	logCh   chan string
}

// NewController creates a controller from a validated config and its
// hardware collaborators.
func NewController(cfg *Config, deps Deps) *Controller {
	return &Controller{
		selector:    deps.Selector,
		sorter:      deps.Sorter,
		sensor:      deps.Sensor,
		light:       deps.Light,
		palette:     cfg.PaletteTable(),
		layout:      cfg.Layout(),
		stations:    cfg.Stations,
		selJostle:   cfg.Selector.Jostle.Profile(),
		sortJostle:  cfg.Sorter.Jostle.Profile(),
		lightSettle: time.Duration(cfg.LightSettleMs) * time.Millisecond,
		counts:      make(map[string]int),
		stateCh:     make(chan State, 1),
		logCh:       make(chan string, 10),
	}
}

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Counts returns a copy of the per-color tallies so far.
func (c *Controller) Counts() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[string]int, len(c.counts))
	for name, n := range c.counts {
		counts[name] = n
	}
	return counts
}

// Palette returns the color table the controller classifies against.
func (c *Controller) Palette() Palette {
	return c.palette
}

func (c *Controller) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start initializes the hardware and runs sorting cycles until ctx is
// cancelled. Cancellation is only observed between cycles: a cycle that
// has started always runs to completion, since a candy is physically in
// flight.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("already running")
	}
	c.running = true
	c.mu.Unlock()

	if err := c.sensor.Begin(ctx); err != nil {
		return c.fatal(fmt.Errorf("sensor init: %w", err))
	}
	c.log("Color sensor ready")

	if err := c.selector.Home(ctx); err != nil {
		return c.fatal(err)
	}
	if err := c.sorter.Home(ctx); err != nil {
		return c.fatal(err)
	}
	c.log("Mechanisms homed, sorting started")

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		default:
		}
		if err := c.cycle(ctx); err != nil {
			c.log("Cycle %d aborted: %v", c.cycleN, err)
			c.sendState(State{Cycle: c.cycleN, Err: err, Timestamp: time.Now()})
		}
	}
}

// cycle runs one candy through the machine: load, present, measure,
// classify, deliver. Any hardware error aborts the cycle; the next one
// starts fresh. No step is ever retried.
func (c *Controller) cycle(ctx context.Context) error {
	c.cycleN++

	c.setPhase(PhaseLoading)
	if err := c.selector.MoveTo(ctx, c.stations.Hopper); err != nil {
		return err
	}
	// Shake the wheel so exactly one candy drops into the pocket.
	if err := c.selector.Jostle(ctx, c.stations.Hopper, c.selJostle); err != nil {
		return err
	}

	c.setPhase(PhasePresenting)
	if err := c.selector.MoveTo(ctx, c.stations.Sensor); err != nil {
		return err
	}

	c.setPhase(PhaseMeasuring)
	reading, err := c.measure(ctx)
	if err != nil {
		return err
	}
	c.log("Reading r=%.1f g=%.1f b=%.1f", reading.R, reading.G, reading.B)

	c.setPhase(PhaseRouting)
	match, dist := c.palette.Classify(reading)
	c.log("Matched %s (slot %d, distance %.1f)", match.Name, match.Slot, dist)

	c.setPhase(PhaseDelivering)
	angle := c.layout.Angle(match.Slot)
	if err := c.sorter.MoveTo(ctx, angle); err != nil {
		return err
	}
	// Release the candy into the sorter path, then shake the arm so it
	// clears the outlet tube.
	if err := c.selector.MoveTo(ctx, c.stations.Drop); err != nil {
		return err
	}
	if err := c.sorter.Jostle(ctx, angle, c.sortJostle); err != nil {
		return err
	}

	c.mu.Lock()
	c.counts[match.Name]++
	c.mu.Unlock()

	c.sendState(State{
		Phase:     PhaseDelivering,
		Cycle:     c.cycleN,
		Reading:   reading,
		Match:     match.Name,
		Slot:      match.Slot,
		Distance:  dist,
		Counts:    c.Counts(),
		Timestamp: time.Now(),
	})
	return nil
}

// measure takes one sample under the illumination LED. The LED is
// switched off again even when the read fails.
func (c *Controller) measure(ctx context.Context) (Reading, error) {
	if err := c.light.Set(ctx, true); err != nil {
		return Reading{}, fmt.Errorf("light on: %w", err)
	}
	time.Sleep(c.lightSettle)
	reading, err := c.sensor.Read(ctx)
	if lerr := c.light.Set(ctx, false); lerr != nil && err == nil {
		err = fmt.Errorf("light off: %w", lerr)
	}
	if err != nil {
		return Reading{}, err
	}
	return reading, nil
}

func (c *Controller) setPhase(phase Phase) {
	c.sendState(State{
		Phase:     phase,
		Cycle:     c.cycleN,
		Counts:    c.Counts(),
		Timestamp: time.Now(),
	})
}

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		c.stateCh <- s
	}
}

// fatal publishes an unrecoverable startup error on both channels, so a
// dashboard listening on them shows the diagnostic, then stops the
// controller and returns the error for the caller.
func (c *Controller) fatal(err error) error {
	c.log("Fatal: %v", err)
	c.sendState(State{Err: err, Timestamp: time.Now()})
	c.stop()
	return err
}

func (c *Controller) stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

func (c *Controller) shutdown() {
	c.stop()
	c.log("Sorting stopped after %d cycles", c.cycleN)
}
