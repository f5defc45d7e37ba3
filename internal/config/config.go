// Package config holds the station configuration: how to reach the
// instrument, where the channel map and reports live, and the fixture
// parameters of each test.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	yaml "gopkg.in/yaml.v2"

	"github.com/OpenTraceLab/vacfeed/pkg/instrument"
	"github.com/OpenTraceLab/vacfeed/pkg/procedure"
)

// Defaults of the station.
const (
	DefaultAddress    = "dmm-b084-test1"
	DefaultChannelMap = "channel_mapping.csv"
	DefaultReportsDir = "reports"
)

// Config represents a station file.
type Config struct {
	Instrument     Instrument `yaml:"instrument"`
	ChannelMap     string     `yaml:"channel_map"`
	ReportsDir     string     `yaml:"reports_dir"`
	Beep           bool       `yaml:"beep"`
	BeepPerFailure bool       `yaml:"beep_per_failure"`
	FilterCount    int        `yaml:"filter_count"`
	Continuity     Continuity `yaml:"continuity"`
	Hipot          Hipot      `yaml:"hipot"`
	Pinout         Pinout     `yaml:"pinout"`
}

// Instrument selects the transport to the mainframe.
type Instrument struct {
	Transport string        `yaml:"transport"`
	Address   string        `yaml:"address"`
	Port      string        `yaml:"port"`
	Timeout   time.Duration `yaml:"timeout"`
	VendorID  uint16        `yaml:"usb_vid"`
	ProductID uint16        `yaml:"usb_pid"`
}

// Continuity defines the continuity and load fixture.
type Continuity struct {
	R37               float64 `yaml:"r37_ohms"`
	R44               float64 `yaml:"r44_ohms"`
	MinSupply         float64 `yaml:"min_supply_volts"`
	MaxWire           float64 `yaml:"max_wire_ohms"`
	BaselineTolerance float64 `yaml:"baseline_tolerance"`
	LoadedExpected    float64 `yaml:"loaded_expected_volts"`
	LoadedTolerance   float64 `yaml:"loaded_tolerance"`
	Range             float64 `yaml:"dmm_range"`
}

// Hipot defines the isolation fixture.
type Hipot struct {
	Nominal         float64 `yaml:"nominal_volts"`
	MinSupply       float64 `yaml:"min_supply_volts"`
	Rtest           float64 `yaml:"test_resistor_ohms"`
	MinIsolation    float64 `yaml:"min_isolation_ohms"`
	GroundTolerance float64 `yaml:"ground_tolerance"`
	SaturationBand  float64 `yaml:"saturation_band_volts"`
	Range           float64 `yaml:"dmm_range"`
}

// Pinout defines the pinout check.
type Pinout struct {
	Tolerance float64 `yaml:"tolerance"`
	Range     float64 `yaml:"dmm_range"`
}

// Default returns the configuration used when no station file is given.
func Default() *Config {
	s := procedure.DefaultSettings()
	c := s.Continuity
	h := s.Hipot
	return &Config{
		Instrument: Instrument{
			Transport: string(instrument.InterfaceKindTCP),
			Address:   DefaultAddress,
			Port:      instrument.DefaultPort,
			Timeout:   instrument.DefaultTimeout,
		},
		ChannelMap:  DefaultChannelMap,
		ReportsDir:  DefaultReportsDir,
		Beep:        s.Beeper,
		FilterCount: s.FilterCount,
		Continuity: Continuity{
			R37:               c.R37,
			R44:               c.R44,
			MinSupply:         c.MinSupply,
			MaxWire:           c.MaxWire,
			BaselineTolerance: c.BaselineTolerance,
			LoadedExpected:    c.LoadedExpected,
			LoadedTolerance:   c.LoadedTolerance,
			Range:             c.Range,
		},
		Hipot: Hipot{
			Nominal:         h.Nominal,
			MinSupply:       h.MinSupply,
			Rtest:           h.Rtest,
			MinIsolation:    h.MinIsolation,
			GroundTolerance: h.GroundTolerance,
			SaturationBand:  h.SaturationBand,
			Range:           h.Range,
		},
		Pinout: Pinout{
			Tolerance: s.Pinout.Tolerance,
			Range:     s.Pinout.Range,
		},
	}
}

// Parse decodes a station file over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads and parses the station file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Validate reports every inconsistency of the configuration at once.
func (c *Config) Validate() error {
	var err error

	switch instrument.InterfaceKind(c.Instrument.Transport) {
	case instrument.InterfaceKindTCP:
		if c.Instrument.Address == "" {
			err = multierror.Append(err, fmt.Errorf("instrument.address is required for the tcp transport"))
		}
	case instrument.InterfaceKindUSBTMC, instrument.InterfaceKindSim:
	default:
		err = multierror.Append(err, fmt.Errorf("unknown instrument.transport %q (supported: tcp, usbtmc, sim)", c.Instrument.Transport))
	}
	if c.Instrument.Timeout <= 0 {
		err = multierror.Append(err, fmt.Errorf("instrument.timeout must be positive"))
	}
	if c.ChannelMap == "" {
		err = multierror.Append(err, fmt.Errorf("channel_map is required"))
	}
	if c.FilterCount < 1 || c.FilterCount > 100 {
		err = multierror.Append(err, fmt.Errorf("filter_count must be within 1..100, got %d", c.FilterCount))
	}

	for _, f := range []struct {
		name  string
		value float64
	}{
		{"continuity.r37_ohms", c.Continuity.R37},
		{"continuity.r44_ohms", c.Continuity.R44},
		{"continuity.min_supply_volts", c.Continuity.MinSupply},
		{"continuity.max_wire_ohms", c.Continuity.MaxWire},
		{"continuity.baseline_tolerance", c.Continuity.BaselineTolerance},
		{"continuity.loaded_expected_volts", c.Continuity.LoadedExpected},
		{"continuity.loaded_tolerance", c.Continuity.LoadedTolerance},
		{"continuity.dmm_range", c.Continuity.Range},
		{"hipot.nominal_volts", c.Hipot.Nominal},
		{"hipot.min_supply_volts", c.Hipot.MinSupply},
		{"hipot.test_resistor_ohms", c.Hipot.Rtest},
		{"hipot.min_isolation_ohms", c.Hipot.MinIsolation},
		{"hipot.ground_tolerance", c.Hipot.GroundTolerance},
		{"hipot.saturation_band_volts", c.Hipot.SaturationBand},
		{"hipot.dmm_range", c.Hipot.Range},
		{"pinout.tolerance", c.Pinout.Tolerance},
		{"pinout.dmm_range", c.Pinout.Range},
	} {
		if !(f.value > 0) {
			err = multierror.Append(err, fmt.Errorf("%s must be positive, got %g", f.name, f.value))
		}
	}
	if c.Hipot.MinSupply > c.Hipot.Nominal {
		err = multierror.Append(err, fmt.Errorf("hipot.min_supply_volts %g exceeds hipot.nominal_volts %g", c.Hipot.MinSupply, c.Hipot.Nominal))
	}

	return err
}

// Settings maps the configuration onto procedure settings.
func (c *Config) Settings() procedure.Settings {
	return procedure.Settings{
		Beeper:         c.Beep,
		BeepPerFailure: c.BeepPerFailure,
		FilterCount:    c.FilterCount,
		Continuity: procedure.ContinuitySettings{
			R37:               c.Continuity.R37,
			R44:               c.Continuity.R44,
			MinSupply:         c.Continuity.MinSupply,
			MaxWire:           c.Continuity.MaxWire,
			BaselineTolerance: c.Continuity.BaselineTolerance,
			LoadedExpected:    c.Continuity.LoadedExpected,
			LoadedTolerance:   c.Continuity.LoadedTolerance,
			Range:             c.Continuity.Range,
		},
		Hipot: procedure.HipotSettings{
			Nominal:         c.Hipot.Nominal,
			MinSupply:       c.Hipot.MinSupply,
			Rtest:           c.Hipot.Rtest,
			MinIsolation:    c.Hipot.MinIsolation,
			GroundTolerance: c.Hipot.GroundTolerance,
			SaturationBand:  c.Hipot.SaturationBand,
			Range:           c.Hipot.Range,
		},
		Pinout: procedure.PinoutSettings{
			Tolerance: c.Pinout.Tolerance,
			Range:     c.Pinout.Range,
		},
	}
}

// InstrumentOptions maps the configuration onto transport options. The
// configured port is applied when the address does not carry one.
func (c *Config) InstrumentOptions() instrument.Options {
	addr := c.Instrument.Address
	if addr != "" && c.Instrument.Port != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			addr = net.JoinHostPort(strings.Trim(addr, "[]"), c.Instrument.Port)
		}
	}
	return instrument.Options{
		Transport: c.Instrument.Transport,
		Address:   addr,
		Timeout:   c.Instrument.Timeout,
		VendorID:  c.Instrument.VendorID,
		ProductID: c.Instrument.ProductID,
	}
}
