// Package hw adapts the sorter's hardware collaborators: feetech bus
// servos for the two mechanisms and a serial-attached color sensor board.
package hw

import (
	"context"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

const (
	countsPerRev = 4096 // STS3215 resolution
	moveTimeMs   = 200
)

// OpenBus opens the serial servo bus.
func OpenBus(port string) (*feetech.Bus, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}
	return bus, nil
}

// Servo drives one bus servo as a sorter.Actuator, translating mechanism
// degrees to position counts. Degree 0 maps to the low end of the
// mechanical range, centered around the servo's midpoint.
type Servo struct {
	id        int
	servo     *feetech.Servo
	fullRange int
	zero      int // counts at degree 0
}

// NewServo wraps a bus servo for a mechanism with the given range in
// degrees.
func NewServo(bus *feetech.Bus, id int, model string, fullRange int) *Servo {
	span := fullRange * countsPerRev / 360
	m, _ := feetech.GetModel(model)
	return &Servo{
		id:        id,
		servo:     feetech.NewServo(bus, id, m),
		fullRange: fullRange,
		zero:      (countsPerRev - span) / 2,
	}
}

// Write commands the servo to the given angle in degrees. Angles are
// clamped to the mechanical range; the servo cannot travel past its
// stops. The command is fire-and-forget; the positioner waits out the
// travel time.
func (s *Servo) Write(ctx context.Context, angle int) error {
	if angle < 0 {
		angle = 0
	}
	if angle > s.fullRange {
		angle = s.fullRange
	}
	raw := s.zero + angle*countsPerRev/360
	s.servo.SetPositionWithTime(ctx, raw, moveTimeMs)
	return nil
}

// Enable enables torque on the servo.
func (s *Servo) Enable(ctx context.Context) error {
	return s.servo.Enable(ctx)
}

// Disable disables torque on the servo.
func (s *Servo) Disable(ctx context.Context) error {
	return s.servo.Disable(ctx)
}
