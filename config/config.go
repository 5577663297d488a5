// Package config loads the watch configuration: which sensors to monitor,
// on which bus, and how their change notifications are filtered.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/sensorwatch/monitor"
)

const (
	KindTC74             = "tc74"
	KindSHTC3Temperature = "shtc3-temperature"
	KindSHTC3Humidity    = "shtc3-humidity"
	KindBH1750           = "bh1750"
	KindAGS02MA          = "ags02ma"
	KindMCP23017         = "mcp23017"
	KindBMA220           = "bma220"
)

var kinds = []string{KindTC74, KindSHTC3Temperature, KindSHTC3Humidity, KindBH1750, KindAGS02MA, KindMCP23017, KindBMA220}

const (
	AdapterGeneric = "generic"
	AdapterNanoPi  = "nanopi"
	AdapterMock    = "mock"
)

var ErrInvalid = errors.New("invalid configuration")

type Bus struct {
	Adapter string `yaml:"adapter"`
	// Device is the periph bus name used by the generic adapter.
	Device string `yaml:"device"`
	// Number is the bus number used by the nanopi adapter.
	Number  int   `yaml:"number"`
	SpeedHz int64 `yaml:"speed_hz,omitempty"`
}

type Sensor struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Address byte   `yaml:"address,omitempty"`
	// Interval overrides the global interval when set.
	Interval       time.Duration `yaml:"interval,omitempty"`
	Threshold      float64       `yaml:"threshold,omitempty"`
	FaultThreshold int           `yaml:"fault_threshold,omitempty"`
	// Bank is the IOCON.BANK register layout an mcp23017 is switched to.
	Bank int `yaml:"bank,omitempty"`
}

type Config struct {
	Bus      Bus           `yaml:"bus"`
	Interval time.Duration `yaml:"interval"`
	FaultLog string        `yaml:"fault_log"`
	Sensors  []Sensor      `yaml:"sensors"`
}

func Default() Config {
	return Config{
		Bus: Bus{
			Adapter: AdapterGeneric,
			Device:  "/dev/i2c-1",
			Number:  0,
		},
		Interval: time.Second,
		FaultLog: "faults.cbor",
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes data on top of Default, applies environment overrides and
// validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("could not parse config: %w", err)
	}
	if err := ApplyEnv(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SENSORWATCH_* variables. A malformed
// interval is rejected with ErrInvalid and leaves cfg.Interval untouched.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("SENSORWATCH_FAULT_LOG"); v != "" {
		cfg.FaultLog = v
	}
	if v := getenv("SENSORWATCH_ADAPTER"); v != "" {
		cfg.Bus.Adapter = v
	}
	if v := getenv("SENSORWATCH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: SENSORWATCH_INTERVAL: %w", ErrInvalid, err)
		}
		cfg.Interval = d
	}
	return nil
}

func (c *Config) applyDefaults() {
	for i := range c.Sensors {
		s := &c.Sensors[i]
		if s.Interval == 0 {
			s.Interval = c.Interval
		}
		if s.FaultThreshold == 0 {
			s.FaultThreshold = monitor.DefaultFaultThreshold
		}
		if s.Name == "" {
			s.Name = fmt.Sprintf("%s-%d", s.Kind, i)
		}
	}
}

// Validate rejects values the monitor would refuse. Nothing is clamped.
func (c Config) Validate() error {
	var errs []error
	switch c.Bus.Adapter {
	case AdapterGeneric, AdapterNanoPi, AdapterMock:
	default:
		errs = append(errs, fmt.Errorf("unknown bus adapter %q", c.Bus.Adapter))
	}
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %s", c.Interval))
	}
	if len(c.Sensors) == 0 {
		errs = append(errs, errors.New("no sensors configured"))
	}
	seen := make(map[string]bool, len(c.Sensors))
	for _, s := range c.Sensors {
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("duplicate sensor name %q", s.Name))
		}
		seen[s.Name] = true
		if !validKind(s.Kind) {
			errs = append(errs, fmt.Errorf("sensor %s: unknown kind %q (expected one of %s)", s.Name, s.Kind, strings.Join(kinds, ", ")))
		}
		if s.Interval <= 0 {
			errs = append(errs, fmt.Errorf("sensor %s: interval must be positive, got %s", s.Name, s.Interval))
		}
		if s.Threshold < 0 {
			errs = append(errs, fmt.Errorf("sensor %s: threshold must not be negative, got %v", s.Name, s.Threshold))
		}
		if s.Bank != 0 && (s.Kind != KindMCP23017 || s.Bank != 1) {
			errs = append(errs, fmt.Errorf("sensor %s: bank must be 0 or 1 and is only valid for %s, got %d", s.Name, KindMCP23017, s.Bank))
		}
		if s.FaultThreshold < 1 {
			errs = append(errs, fmt.Errorf("sensor %s: fault threshold must be at least 1, got %d", s.Name, s.FaultThreshold))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func validKind(kind string) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
