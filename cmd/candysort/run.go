package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/NimbleMarkets/ntcharts/barchart"

	"github.com/gwillem/candysort/pkg/hw"
	"github.com/gwillem/candysort/pkg/sorter"
)

type RunCommand struct {
	TUI bool `long:"tui" description:"Show the live sorting dashboard"`
}

const (
	headerHeight = 2 // title + blank line
	statusHeight = 2 // status row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Candy colors - terminal color per palette entry
var candyColors = map[string]string{
	"Yellow": "226",
	"Orange": "208",
	"Red":    "196",
	"Green":  "46",
	"Brown":  "130",
	"Blue":   "39",
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func candyStyle(name string) lipgloss.Style {
	color, ok := candyColors[name]
	if !ok {
		color = "245"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

func (c *RunCommand) Execute(args []string) error {
	cfg, err := sorter.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "No configuration found. Run 'candysort setup' first.")
		os.Exit(1)
	}
	if cfg.ServoPort == "" || cfg.SensorPort == "" {
		fmt.Fprintln(os.Stderr, "Ports not configured. Run 'candysort setup' first.")
		os.Exit(1)
	}
	fmt.Printf("Loaded configuration from %s\n", sorter.DefaultConfigFile)

	bus, err := hw.OpenBus(cfg.ServoPort)
	if err != nil {
		log.Fatalf("Failed to open servo bus: %v", err)
	}
	defer bus.Close()

	selServo, sortServo, err := buildServos(bus, cfg)
	if err != nil {
		log.Fatalf("Failed to find servos: %v", err)
	}

	sensor, err := hw.OpenSensor(cfg.SensorPort)
	if err != nil {
		log.Fatalf("Failed to open sensor: %v", err)
	}
	defer sensor.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := selServo.Enable(ctx); err != nil {
		log.Fatalf("Failed to enable selector servo: %v", err)
	}
	if err := sortServo.Enable(ctx); err != nil {
		log.Fatalf("Failed to enable sorter servo: %v", err)
	}
	defer selServo.Disable(context.Background())
	defer sortServo.Disable(context.Background())

	ctrl := sorter.NewController(cfg, sorter.Deps{
		Selector: sorter.NewPositioner("selector", selServo, cfg.Selector.FullRange, cfg.Selector.Settle()),
		Sorter:   sorter.NewPositioner("sorter", sortServo, cfg.Sorter.FullRange, cfg.Sorter.Settle()),
		Sensor:   sensor,
		Light:    sensor,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- ctrl.Start(ctx)
	}()

	if c.TUI {
		p := tea.NewProgram(initialRunModel(ctrl), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			log.Fatalf("Error running program: %v", err)
		}
		cancel()
		// Wait for the controller before the deferred torque disable
		// touches the bus: an in-flight cycle runs to completion, and a
		// fatal startup error surfaces here.
		if err := <-errCh; err != nil && err != context.Canceled {
			return err
		}
		return nil
	}

	return runPlain(ctrl, cancel, errCh)
}

// runPlain streams controller logs to stdout until interrupted.
func runPlain(ctrl *sorter.Controller, cancel context.CancelFunc, errCh <-chan error) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case msg := <-ctrl.Logs():
			fmt.Println(msg)
		case <-ctrl.States():
			// Plain mode only prints the log stream
		case <-sig:
			cancel()
		case err := <-errCh:
			if err != nil && err != context.Canceled {
				return err
			}
			return nil
		}
	}
}

// buildServos scans the bus for the configured servo IDs and wraps them
// for their mechanisms.
func buildServos(bus *feetech.Bus, cfg *sorter.Config) (sel, srt *hw.Servo, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	lo, hi := cfg.Selector.ServoID, cfg.Sorter.ServoID
	if hi < lo {
		lo, hi = hi, lo
	}
	found, err := bus.Scan(ctx, lo, hi)
	if err != nil {
		return nil, nil, fmt.Errorf("scan bus: %w", err)
	}

	models := make(map[int]string)
	for _, s := range found {
		name := ""
		if s.Model != nil {
			name = s.Model.Name
		}
		models[s.ID] = name
	}
	for _, id := range []int{cfg.Selector.ServoID, cfg.Sorter.ServoID} {
		if _, ok := models[id]; !ok {
			return nil, nil, fmt.Errorf("servo %d did not answer", id)
		}
	}

	sel = hw.NewServo(bus, cfg.Selector.ServoID, models[cfg.Selector.ServoID], cfg.Selector.FullRange)
	srt = hw.NewServo(bus, cfg.Sorter.ServoID, models[cfg.Sorter.ServoID], cfg.Sorter.FullRange)
	return sel, srt, nil
}

type runModel struct {
	ctrl     *sorter.Controller
	chart    *barchart.Model
	width    int      // terminal width
	height   int      // terminal height
	logs     []string // last N log messages
	quitting bool
	state    sorter.State // last snapshot from the controller
}

func (m *runModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the controller
type stateMsg sorter.State
type logMsg string

func waitForState(ctrl *sorter.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *sorter.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *runModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - statusHeight - footerHeight - borderSize
	if height < 8 {
		height = 8
	}
	return width, height
}

func (m *runModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
	m.redrawChart(m.state.Counts)
}

// redrawChart rebuilds the per-color tally bars in palette order.
func (m *runModel) redrawChart(counts map[string]int) {
	m.chart.Clear()
	for _, p := range m.ctrl.Palette() {
		m.chart.Push(barchart.BarData{
			Label: p.Name,
			Values: []barchart.BarValue{
				{Name: p.Name, Value: float64(counts[p.Name]), Style: candyStyle(p.Name)},
			},
		})
	}
	m.chart.Draw()
}

func initialRunModel(ctrl *sorter.Controller) *runModel {
	chart := barchart.New(80, 20)
	m := &runModel{
		ctrl:  ctrl,
		chart: &chart,
	}
	m.redrawChart(ctrl.Counts())
	return m
}

func (m *runModel) Init() tea.Cmd {
	// Start listening for state and log updates
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m *runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case stateMsg:
		state := sorter.State(msg)
		if state.Counts != nil {
			m.redrawChart(state.Counts)
		}
		if state.Match != "" || m.state.Match == "" || state.Err != nil {
			m.state = state
		} else {
			// Keep the last match visible while phases tick by
			match := m.state
			m.state = state
			m.state.Reading = match.Reading
			m.state.Match = match.Match
			m.state.Slot = match.Slot
			m.state.Distance = match.Distance
		}
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)
	}

	return m, nil
}

func (m *runModel) View() string {
	if m.quitting {
		return "Sorting stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("Candysort"))
	sb.WriteString(fmt.Sprintf(" - cycle %d, %s", m.state.Cycle, m.state.Phase))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Status row: last reading and match
	sb.WriteString(m.renderStatus())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("252"))

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m *runModel) renderStatus() string {
	if m.state.Err != nil {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
		return errStyle.Render(fmt.Sprintf("Error: %v", m.state.Err))
	}
	if m.state.Match == "" {
		return statusStyle.Render("Waiting for the first candy...")
	}
	r := m.state.Reading
	match := candyStyle(m.state.Match).Bold(true).Render(m.state.Match)
	return fmt.Sprintf("Last: r=%.1f g=%.1f b=%.1f  %s  slot %d  (distance %.1f)",
		r.R, r.G, r.B, match, m.state.Slot, m.state.Distance)
}
