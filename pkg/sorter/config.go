package sorter

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const DefaultConfigFile = "candysort.json"

// Config holds the sorter configuration
type Config struct {
	ServoPort  string `json:"servo_port"`
	SensorPort string `json:"sensor_port"`

	Selector MechanismConfig `json:"selector"`
	Sorter   MechanismConfig `json:"sorter"`

	// Selector wheel stations, in degrees.
	Stations StationConfig `json:"stations"`

	// Number of collection chutes under the sorter arm.
	Slots int `json:"slots"`

	// Wait after toggling the illumination LED before reading.
	LightSettleMs int `json:"light_settle_ms"`

	Palette []ProfileConfig `json:"palette"`
}

// MechanismConfig holds configuration for a single servo mechanism
type MechanismConfig struct {
	ServoID   int          `json:"servo_id"`
	FullRange int          `json:"full_range"`
	SettleMs  int          `json:"settle_ms"`
	Jostle    JostleConfig `json:"jostle"`
}

// JostleConfig holds the jostle tuning for a mechanism
type JostleConfig struct {
	Amplitude int `json:"amplitude"`
	Cycles    int `json:"cycles"`
	SettleMs  int `json:"settle_ms"`
}

// StationConfig holds the selector wheel's three logical positions
type StationConfig struct {
	Hopper int `json:"hopper"`
	Sensor int `json:"sensor"`
	Drop   int `json:"drop"`
}

// ProfileConfig is the JSON form of one palette entry
type ProfileConfig struct {
	Name string  `json:"name"`
	R    float64 `json:"r"`
	G    float64 `json:"g"`
	B    float64 `json:"b"`
	Slot int     `json:"slot"`
}

// Settle returns the mechanism's per-move settle time.
func (m MechanismConfig) Settle() time.Duration {
	return time.Duration(m.SettleMs) * time.Millisecond
}

// Profile returns the jostle profile for the mechanism.
func (j JostleConfig) Profile() JostleProfile {
	return JostleProfile{
		Amplitude: j.Amplitude,
		Cycles:    j.Cycles,
		Settle:    time.Duration(j.SettleMs) * time.Millisecond,
	}
}

// PaletteTable builds the in-memory color table from the config entries.
func (c *Config) PaletteTable() Palette {
	pal := make(Palette, 0, len(c.Palette))
	for _, p := range c.Palette {
		pal = append(pal, Profile{
			Name:      p.Name,
			Reference: Reading{R: p.R, G: p.G, B: p.B},
			Slot:      Slot(p.Slot),
		})
	}
	return pal
}

// Layout returns the sorter arm's slot layout.
func (c *Config) Layout() SlotLayout {
	return SlotLayout{Count: c.Slots, FullRange: c.Sorter.FullRange}
}

// Validate checks the invariants the rest of the package relies on:
// non-empty palette, at least two slots, slots and stations within range.
func (c *Config) Validate() error {
	if c.Slots < 2 {
		return fmt.Errorf("need at least 2 slots, got %d", c.Slots)
	}
	// Fewer degrees than slot gaps would collapse neighboring slots
	// onto the same angle.
	if c.Sorter.FullRange < c.Slots-1 {
		return fmt.Errorf("sorter range %d too small for %d slots", c.Sorter.FullRange, c.Slots)
	}
	if len(c.Palette) == 0 {
		return fmt.Errorf("palette is empty")
	}
	for _, p := range c.Palette {
		if p.Slot < 0 || p.Slot >= c.Slots {
			return fmt.Errorf("profile %q: slot %d out of range 0..%d", p.Name, p.Slot, c.Slots-1)
		}
	}
	for _, s := range []struct {
		name  string
		angle int
	}{
		{"hopper", c.Stations.Hopper},
		{"sensor", c.Stations.Sensor},
		{"drop", c.Stations.Drop},
	} {
		if s.angle < 0 || s.angle > c.Selector.FullRange {
			return fmt.Errorf("station %s: angle %d out of range 0..%d", s.name, s.angle, c.Selector.FullRange)
		}
	}
	return nil
}

// DefaultConfig returns the configuration for a standard six-chute build.
// Ports are left empty; setup fills them in.
func DefaultConfig() *Config {
	cfg := &Config{
		Selector: MechanismConfig{
			ServoID:   1,
			FullRange: 180,
			SettleMs:  350,
			Jostle:    JostleConfig{Amplitude: 25, Cycles: 2, SettleMs: 60},
		},
		Sorter: MechanismConfig{
			ServoID:   2,
			FullRange: 180,
			SettleMs:  300,
			Jostle:    JostleConfig{Amplitude: 8, Cycles: 3, SettleMs: 40},
		},
		Stations:      StationConfig{Hopper: 0, Sensor: 90, Drop: 180},
		Slots:         6,
		LightSettleMs: 50,
	}
	for _, p := range DefaultPalette() {
		cfg.Palette = append(cfg.Palette, ProfileConfig{
			Name: p.Name,
			R:    p.Reference.R,
			G:    p.Reference.G,
			B:    p.Reference.B,
			Slot: int(p.Slot),
		})
	}
	return cfg
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
