// Package sorter implements the candy sorting logic: nearest-color
// classification and the load/measure/deliver motion cycle.
package sorter

// Reading holds one raw color sample from the sensor, as normalized
// channel intensities. Readings are used as-is, with no ambient light
// compensation.
type Reading struct {
	R float64
	G float64
	B float64
}

// Slot identifies a physical collection chute, 0-based.
type Slot int

// Profile binds a reference color to its destination slot. Profiles are
// built once at startup and never mutated. Multiple profiles may share a
// slot (two shades routing to one chute).
type Profile struct {
	Name      string
	Reference Reading
	Slot      Slot
}

// Palette is the ordered table of known color profiles. Order matters:
// when a reading is equidistant to two profiles, the earlier one wins.
type Palette []Profile

// DefaultPalette returns the reference colors for a standard six-chute
// build, measured under the onboard illumination LED.
func DefaultPalette() Palette {
	return Palette{
		{Name: "Yellow", Reference: Reading{R: 89.2, G: 102.3, B: 47.6}, Slot: 0},
		{Name: "Orange", Reference: Reading{R: 106.1, G: 77.5, B: 60.3}, Slot: 1},
		{Name: "Red", Reference: Reading{R: 98.4, G: 67.2, B: 59.8}, Slot: 2},
		{Name: "Green", Reference: Reading{R: 54.6, G: 98.7, B: 63.9}, Slot: 3},
		{Name: "Brown", Reference: Reading{R: 66.5, G: 65.3, B: 53.1}, Slot: 4},
		{Name: "Blue", Reference: Reading{R: 39.7, G: 90.1, B: 112.5}, Slot: 5},
	}
}

// SlotLayout maps slots onto the sorter arm's angular range with even
// spacing. Count must be at least 2.
type SlotLayout struct {
	Count     int // number of chutes
	FullRange int // sorter arm range in degrees
}

// Angle returns the arm angle for a slot. Slot 0 sits at 0 degrees and
// the last slot at exactly FullRange; angles are strictly increasing in
// between.
func (l SlotLayout) Angle(s Slot) int {
	return int(s) * l.FullRange / (l.Count - 1)
}
