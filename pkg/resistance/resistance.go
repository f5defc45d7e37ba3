package resistance

import (
	"fmt"
	"math"
)

// Fixture defaults.
const (
	DefaultR37             = 5.3
	DefaultR44             = 10.3
	DefaultMaxWire         = 2.0
	DefaultMinContinuityV  = 4.5
	DefaultRtest           = 1e6
	DefaultMinIsolation    = 1e6
	DefaultMinHipotV       = 220.0
	DefaultSaturationBandV = 0.05
)

// SupplyOK reports whether a measured supply reached its minimum. A
// non-finite reading never does.
func SupplyOK(measured, minimum float64) bool {
	return measured >= minimum && !math.IsInf(measured, 0)
}

// ContinuityParams are the fixture's continuity reference resistors and
// acceptance threshold.
type ContinuityParams struct {
	R37     float64
	R44     float64
	MaxWire float64
}

// DefaultContinuity returns the nominal fixture values.
func DefaultContinuity() ContinuityParams {
	return ContinuityParams{R37: DefaultR37, R44: DefaultR44, MaxWire: DefaultMaxWire}
}

// ContinuityEstimate is the outcome of one loaded continuity reading.
type ContinuityEstimate struct {
	Current37  float64
	Current44  float64
	Current    float64
	Resistance float64
	Valid      bool
}

// EstimateContinuity derives the wire resistance from the 37-pin side
// reading v1 and the 44-pin side reading v2 with the supply at vsupply.
// The estimate is valid only when 0 < r < MaxWire.
func EstimateContinuity(v1, v2, vsupply float64, p ContinuityParams) ContinuityEstimate {
	c1 := v1 / p.R37
	c2 := (vsupply - v2) / p.R44
	c := (c1 + c2) / 2
	r := math.Abs(v2-v1) / c

	return ContinuityEstimate{
		Current37:  c1,
		Current44:  c2,
		Current:    c,
		Resistance: r,
		Valid:      finite(r) && r > 0 && r < p.MaxWire,
	}
}

// Calibration holds the hi-pot supply and DMM impedance measured with no
// wire connected.
type Calibration struct {
	Supply float64
	Vdmm   float64
	Rtest  float64
	Rdmm   float64
}

// Calibrate derives the DMM input impedance from the open-circuit supply
// voltage and the voltage seen through rtest.
func Calibrate(supply, vdmm, rtest float64) (Calibration, error) {
	rdmm := -(rtest * vdmm) / (vdmm - supply)
	if !finite(rdmm) || rdmm <= 0 {
		return Calibration{}, fmt.Errorf("resistance: implausible DMM impedance %g from supply %g V and %g V through %g ohm", rdmm, supply, vdmm, rtest)
	}
	return Calibration{Supply: supply, Vdmm: vdmm, Rtest: rtest, Rdmm: rdmm}, nil
}

// DriftLimit is the highest reading still attributed to supply drift.
func (c Calibration) DriftLimit() float64 {
	return c.Vdmm + (c.Supply-c.Vdmm)/2
}

// Isolation is a per-wire hi-pot estimate.
type Isolation struct {
	Voltage    float64
	Raw        float64
	Resistance float64
	Leakage    float64
	// Saturated is set when the reading was indistinguishable from the
	// calibration voltage; Resistance is +Inf.
	Saturated bool
}

// Isolation estimates the insulation resistance for a reading v2. Readings
// from band below the calibrated DMM voltage up to halfway between it and
// the supply are reported as saturated: no leak can raise the reading, so
// that excess is supply drift since calibration. Readings further up yield
// a negative estimate.
func (c Calibration) Isolation(v2, band float64) Isolation {
	if v2 >= c.Vdmm-band && v2 < c.DriftLimit() {
		return Isolation{
			Voltage:    v2,
			Raw:        c.Rdmm,
			Resistance: math.Inf(1),
			Saturated:  true,
		}
	}
	raw := -(c.Rtest * v2) / (v2 - c.Supply)
	r := -(raw * c.Rdmm) / (raw - c.Rdmm)
	return Isolation{
		Voltage:    v2,
		Raw:        raw,
		Resistance: r,
		Leakage:    v2 / r,
	}
}

// Acceptable reports whether the insulation resistance reaches min. A
// negative or NaN estimate never does.
func (i Isolation) Acceptable(min float64) bool {
	return !math.IsNaN(i.Resistance) && i.Resistance >= min
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
