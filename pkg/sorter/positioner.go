package sorter

import (
	"context"
	"fmt"
	"time"
)

// Actuator is the hardware side of one mechanism: a fire-and-forget
// angular command. The caller is responsible for waiting out the
// mechanical settle time; the servo gives no completion signal.
type Actuator interface {
	Write(ctx context.Context, angle int) error
}

// Positioner owns the angle of one mechanism. It is the only mutator of
// that angle: every command goes through MoveTo, which blocks for the
// settle duration so the mechanism has physically arrived before the next
// command is issued. That blocking wait is the system's one
// synchronization primitive; there is no position feedback.
type Positioner struct {
	name      string
	act       Actuator
	fullRange int
	settle    time.Duration

	angle int
	moved bool // false until the first commanded move
}

// NewPositioner creates a positioner for a mechanism with the given
// angular range in degrees and default per-move settle time. The angle is
// undefined until the first move; call Home during startup.
func NewPositioner(name string, act Actuator, fullRange int, settle time.Duration) *Positioner {
	return &Positioner{
		name:      name,
		act:       act,
		fullRange: fullRange,
		settle:    settle,
	}
}

// Name returns the mechanism name, used in diagnostics.
func (p *Positioner) Name() string { return p.name }

// FullRange returns the mechanism's angular range in degrees.
func (p *Positioner) FullRange() int { return p.fullRange }

// Angle returns the last commanded angle. The second return is false
// before the first move, when the physical position is unknown.
func (p *Positioner) Angle() (int, bool) { return p.angle, p.moved }

// MoveTo commands the mechanism to angle and blocks for the default
// settle time. Angles outside [0, FullRange] are a caller bug.
func (p *Positioner) MoveTo(ctx context.Context, angle int) error {
	return p.move(ctx, angle, p.settle)
}

// Home drives the mechanism to angle 0, establishing a known position
// after power-on.
func (p *Positioner) Home(ctx context.Context) error {
	if err := p.MoveTo(ctx, 0); err != nil {
		return fmt.Errorf("home %s: %w", p.name, err)
	}
	return nil
}

func (p *Positioner) move(ctx context.Context, angle int, settle time.Duration) error {
	if err := p.act.Write(ctx, angle); err != nil {
		return fmt.Errorf("%s: write angle %d: %w", p.name, angle, err)
	}
	p.angle = angle
	p.moved = true
	// Scoped wait for servo travel. Not cancellable: a move that has
	// been commanded must settle before anything else happens.
	time.Sleep(settle)
	return nil
}
