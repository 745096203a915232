package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/candysort/pkg/hw"
	"github.com/gwillem/candysort/pkg/sorter"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SetupCommand struct{}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Candysort Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━"))
	fmt.Println()

	cfg := sorter.DefaultConfig()

	// Step 1: Find the servo bus
	fmt.Println(subHeaderStyle.Render("━━━ Servo bus ━━━"))
	fmt.Println()
	rig := findRig(cfg)
	if rig == nil {
		fmt.Println("No sorter rig found.")
		fmt.Println("Make sure the servo bus is connected and powered on.")
		os.Exit(1)
	}
	cfg.ServoPort = rig.port
	wiggleSelector(rig, cfg)

	// Step 2: Pick and probe the sensor board
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Color sensor ━━━"))
	fmt.Println()
	sensorPort := chooseSensorPort(rig.port)
	if err := probeSensor(sensorPort); err != nil {
		fmt.Fprintf(os.Stderr, "Sensor probe failed on %s: %v\n", sensorPort, err)
		os.Exit(1)
	}
	cfg.SensorPort = sensorPort
	fmt.Println(successStyle.Render("Sensor answered on " + sensorPort))

	// Save config
	if err := cfg.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", sorter.DefaultConfigFile)
	fmt.Println()
	fmt.Println("Start sorting with: " + headerStyle.Render("candysort run"))

	return nil
}

type rigInfo struct {
	port   string
	servos []feetech.FoundServo
	bus    *feetech.Bus
}

// findRig scans serial ports for a bus answering with the selector and
// sorter servo IDs.
func findRig(cfg *sorter.Config) *rigInfo {
	fmt.Println("Scanning for the sorter rig...")
	fmt.Println()

	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)

		bus, err := hw.OpenBus(port)
		if err != nil {
			cancel()
			continue
		}

		servos, err := bus.Scan(ctx, cfg.Selector.ServoID, cfg.Sorter.ServoID)
		cancel()
		if err != nil {
			bus.Close()
			continue
		}

		if isSorterRig(servos, cfg) {
			fmt.Printf("  Found sorter rig on %s\n", port)
			return &rigInfo{port: port, servos: servos, bus: bus}
		}
		bus.Close()
	}

	return nil
}

func isSorterRig(servos []feetech.FoundServo, cfg *sorter.Config) bool {
	ids := make(map[int]bool)
	for _, s := range servos {
		ids[s.ID] = true
	}
	return ids[cfg.Selector.ServoID] && ids[cfg.Sorter.ServoID]
}

// wiggleSelector swings the selector wheel once so the user can confirm
// the right machine is attached.
func wiggleSelector(rig *rigInfo, cfg *sorter.Config) {
	defer rig.bus.Close()

	ctx := context.Background()

	var servo *feetech.Servo
	for _, s := range rig.servos {
		if s.ID == cfg.Selector.ServoID {
			servo = feetech.NewServo(rig.bus, s.ID, s.Model)
			break
		}
	}
	if servo == nil {
		return
	}

	originalPos, err := servo.Position(ctx)
	if err != nil {
		fmt.Printf("  Error reading position: %v\n", err)
		return
	}
	if err := servo.Enable(ctx); err != nil {
		fmt.Printf("  Error enabling servo: %v\n", err)
		return
	}

	fmt.Printf("\n  Wiggling the selector wheel on %s...\n", rig.port)

	wiggleAmount := 30
	moveTimeMs := 500
	servo.SetPositionWithTime(ctx, originalPos+wiggleAmount, moveTimeMs)
	time.Sleep(time.Duration(moveTimeMs+100) * time.Millisecond)
	servo.SetPositionWithTime(ctx, originalPos-wiggleAmount, moveTimeMs)
	time.Sleep(time.Duration(moveTimeMs+100) * time.Millisecond)
	servo.SetPositionWithTime(ctx, originalPos, moveTimeMs)
	time.Sleep(time.Duration(moveTimeMs+100) * time.Millisecond)

	servo.Disable(ctx)

	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Did the selector wheel just wiggle?").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil || !ok {
		fmt.Println("Aborting setup.")
		os.Exit(1)
	}
}

// chooseSensorPort asks the user which remaining serial port carries the
// sensor board.
func chooseSensorPort(servoPort string) string {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		os.Exit(1)
	}

	var options []huh.Option[string]
	for _, port := range ports {
		if port == servoPort || strings.Contains(port, "Bluetooth") {
			continue
		}
		options = append(options, huh.NewOption(port, port))
	}
	if len(options) == 0 {
		fmt.Println("No serial port left for the sensor board.")
		fmt.Println("Connect the sensor board and run setup again.")
		os.Exit(1)
	}

	var port string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which port is the color sensor board on?").
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	return port
}

func probeSensor(port string) error {
	sensor, err := hw.OpenSensor(port)
	if err != nil {
		return err
	}
	defer sensor.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return sensor.Begin(ctx)
}
