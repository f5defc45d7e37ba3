package procedure

import "github.com/OpenTraceLab/vacfeed/pkg/resistance"

// ContinuitySettings parameterize the continuity and load test.
type ContinuitySettings struct {
	R37               float64
	R44               float64
	MinSupply         float64
	MaxWire           float64
	BaselineTolerance float64
	LoadedExpected    float64
	LoadedTolerance   float64
	Range             float64
}

// HipotSettings parameterize the hi-pot isolation test.
type HipotSettings struct {
	Nominal         float64
	MinSupply       float64
	Rtest           float64
	MinIsolation    float64
	GroundTolerance float64
	SaturationBand  float64
	Range           float64
}

// PinoutSettings parameterize the pinout test.
type PinoutSettings struct {
	Tolerance float64
	Range     float64
}

// Settings collect everything a procedure needs besides the instrument.
type Settings struct {
	// Beeper enables the mainframe beeper for feedback tones.
	Beeper bool
	// BeepPerFailure plays the error tone for every bad verdict.
	BeepPerFailure bool
	FilterCount    int

	Continuity ContinuitySettings
	Hipot      HipotSettings
	Pinout     PinoutSettings
}

// DefaultSettings returns the fixture's nominal values.
func DefaultSettings() Settings {
	return Settings{
		Beeper:      true,
		FilterCount: 5,
		Continuity: ContinuitySettings{
			R37:               resistance.DefaultR37,
			R44:               resistance.DefaultR44,
			MinSupply:         resistance.DefaultMinContinuityV,
			MaxWire:           resistance.DefaultMaxWire,
			BaselineTolerance: 0.05,
			LoadedExpected:    1.66,
			LoadedTolerance:   0.40,
			Range:             7,
		},
		Hipot: HipotSettings{
			Nominal:         250,
			MinSupply:       resistance.DefaultMinHipotV,
			Rtest:           resistance.DefaultRtest,
			MinIsolation:    resistance.DefaultMinIsolation,
			GroundTolerance: 0.05,
			SaturationBand:  resistance.DefaultSaturationBandV,
			Range:           260,
		},
		Pinout: PinoutSettings{
			Tolerance: 0.1,
			Range:     7,
		},
	}
}
