package hw

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/gwillem/candysort/pkg/sorter"
)

// SerialSensor talks to the color sensor board over a line-oriented
// serial protocol: "I" answers "OK" once the sensor chip is up, "C" runs
// one integration cycle and answers "<r> <g> <b>", and "L1"/"L0" switch
// the illumination LED. The board carries both the sensor and the LED, so
// SerialSensor implements sorter.ColorSensor and sorter.Light.
type SerialSensor struct {
	port serial.Port
	r    *bufio.Reader
}

// OpenSensor opens the sensor board's serial port (115200 8N1).
func OpenSensor(portName string) (*SerialSensor, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: 115200})
	if err != nil {
		return nil, fmt.Errorf("open sensor port: %w", err)
	}
	// The C command blocks for the sensor's integration time, so allow
	// well beyond it before giving up on a reply.
	if err := port.SetReadTimeout(2 * time.Second); err != nil {
		port.Close()
		return nil, fmt.Errorf("sensor port timeout: %w", err)
	}
	return &SerialSensor{port: port, r: bufio.NewReader(port)}, nil
}

// Begin verifies the sensor chip answered the board's power-on probe.
func (s *SerialSensor) Begin(ctx context.Context) error {
	line, err := s.command("I")
	if err != nil {
		return fmt.Errorf("sensor handshake: %w", err)
	}
	if line != "OK" {
		return fmt.Errorf("sensor handshake: unexpected response %q", line)
	}
	return nil
}

// Read triggers one integration cycle and returns the raw channel
// intensities. Blocks for the sensor's integration time.
func (s *SerialSensor) Read(ctx context.Context) (sorter.Reading, error) {
	line, err := s.command("C")
	if err != nil {
		return sorter.Reading{}, fmt.Errorf("sensor read: %w", err)
	}
	var r sorter.Reading
	if _, err := fmt.Sscanf(line, "%f %f %f", &r.R, &r.G, &r.B); err != nil {
		return sorter.Reading{}, fmt.Errorf("sensor read: parse %q: %w", line, err)
	}
	return r, nil
}

// Set switches the illumination LED.
func (s *SerialSensor) Set(ctx context.Context, on bool) error {
	cmd := "L0"
	if on {
		cmd = "L1"
	}
	if _, err := s.command(cmd); err != nil {
		return fmt.Errorf("light: %w", err)
	}
	return nil
}

// Close closes the serial port.
func (s *SerialSensor) Close() error {
	return s.port.Close()
}

func (s *SerialSensor) command(cmd string) (string, error) {
	if _, err := s.port.Write([]byte(cmd + "\n")); err != nil {
		return "", err
	}
	line, err := s.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
