package sorter

import (
	"context"
	"time"
)

// JostleProfile tunes the shake a mechanism performs to dislodge stuck
// candy. The selector wheel uses a coarse profile (big amplitude, few
// cycles); the sorter arm a finer one.
type JostleProfile struct {
	Amplitude int           // swing in degrees to each side of center
	Cycles    int           // back-and-forth repetitions; 0 = plain move
	Settle    time.Duration // wait after each swing
}

// Jostle oscillates the mechanism around target, then lands exactly on
// target. The oscillation center shifts down by the amplitude when target
// is at the top of the range, so no swing commands an angle beyond
// FullRange. With Cycles = 0 this degenerates to a single direct move.
func (p *Positioner) Jostle(ctx context.Context, target int, prof JostleProfile) error {
	center := target
	if target >= p.fullRange {
		center = target - prof.Amplitude
	}
	for i := 0; i < prof.Cycles; i++ {
		if err := p.move(ctx, center+prof.Amplitude, prof.Settle); err != nil {
			return err
		}
		if err := p.move(ctx, center-prof.Amplitude, prof.Settle); err != nil {
			return err
		}
	}
	return p.move(ctx, target, prof.Settle)
}
