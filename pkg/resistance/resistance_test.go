package resistance

import (
	"math"
	"testing"
)

func TestEstimateContinuityGoodWire(t *testing.T) {
	est := EstimateContinuity(1.66, 1.756, 4.98, DefaultContinuity())
	if !est.Valid {
		t.Fatalf("expected valid estimate, got %+v", est)
	}
	if est.Resistance < 0.25 || est.Resistance > 0.35 {
		t.Fatalf("resistance = %v, want about 0.3", est.Resistance)
	}
}

func TestEstimateContinuityBranchOrder(t *testing.T) {
	p := DefaultContinuity()
	for _, v := range [][3]float64{
		{1.66, 1.756, 4.98},
		{1.2, 2.9, 5.01},
		{0.4, 4.6, 4.9},
	} {
		est := EstimateContinuity(v[0], v[1], v[2], p)
		swapped := (est.Current44 + est.Current37) / 2
		if est.Current != swapped {
			t.Fatalf("branch average depends on order: %v vs %v", est.Current, swapped)
		}
		if r := math.Abs(v[1]-v[0]) / swapped; r != est.Resistance {
			t.Fatalf("resistance %v, recomputed %v", est.Resistance, r)
		}
	}
}

func TestEstimateContinuityInvalid(t *testing.T) {
	p := DefaultContinuity()
	tests := []struct {
		name       string
		v1, v2, vs float64
	}{
		{name: "zero drop", v1: 1.66, v2: 1.66, vs: 4.98},
		{name: "open wire", v1: 0, v2: 4.98, vs: 4.98},
		{name: "no current", v1: 0, v2: 5, vs: 5},
		{name: "high resistance", v1: 1.2, v2: 2.9, vs: 5.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := EstimateContinuity(tt.v1, tt.v2, tt.vs, p)
			if est.Valid {
				t.Fatalf("expected invalid estimate, got %+v", est)
			}
		})
	}
}

func TestSupplyOK(t *testing.T) {
	tests := []struct {
		measured, minimum float64
		want              bool
	}{
		{4.98, DefaultMinContinuityV, true},
		{3.0, DefaultMinContinuityV, false},
		{4.5, DefaultMinContinuityV, true},
		{249.2, DefaultMinHipotV, true},
		{12, DefaultMinHipotV, false},
		{math.NaN(), DefaultMinHipotV, false},
		{math.Inf(1), DefaultMinHipotV, false},
	}
	for _, tt := range tests {
		if got := SupplyOK(tt.measured, tt.minimum); got != tt.want {
			t.Errorf("SupplyOK(%v, %v) = %v, want %v", tt.measured, tt.minimum, got, tt.want)
		}
	}
}

func scenarioCalibration(t *testing.T) Calibration {
	t.Helper()
	// 250 V through 1 MOhm into a 9.5 MOhm meter.
	cal, err := Calibrate(250, 250*9.5/10.5, DefaultRtest)
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if math.Abs(cal.Rdmm-9.5e6) > 1 {
		t.Fatalf("Rdmm = %v, want 9.5e6", cal.Rdmm)
	}
	return cal
}

func TestCalibrateRejectsImplausible(t *testing.T) {
	for _, v := range [][2]float64{{250, 250}, {250, 260}, {250, 0}} {
		if _, err := Calibrate(v[0], v[1], DefaultRtest); err == nil {
			t.Errorf("Calibrate(%v, %v) expected error", v[0], v[1])
		}
	}
}

func TestIsolationBadWire(t *testing.T) {
	cal := scenarioCalibration(t)

	for _, v2 := range []float64{100, 249} {
		iso := cal.Isolation(v2, DefaultSaturationBandV)
		if iso.Acceptable(DefaultMinIsolation) {
			t.Fatalf("v2=%v: resistance %v accepted", v2, iso.Resistance)
		}
	}
}

func TestIsolationGoodWire(t *testing.T) {
	cal := scenarioCalibration(t)

	iso := cal.Isolation(226.0, DefaultSaturationBandV)
	if !iso.Acceptable(DefaultMinIsolation) {
		t.Fatalf("resistance %v rejected", iso.Resistance)
	}
	if iso.Resistance < 1e9 {
		t.Fatalf("resistance = %v, want above 1 GOhm", iso.Resistance)
	}
	if want := 226.0 / iso.Resistance; iso.Leakage != want {
		t.Fatalf("leakage = %v, want %v", iso.Leakage, want)
	}

	sat := cal.Isolation(cal.Vdmm, DefaultSaturationBandV)
	if !sat.Saturated || !math.IsInf(sat.Resistance, 1) || !sat.Acceptable(DefaultMinIsolation) {
		t.Fatalf("reading at calibration voltage = %+v", sat)
	}
	if sat.Leakage != 0 {
		t.Fatalf("saturated leakage = %v", sat.Leakage)
	}
}

func TestIsolationKnownLeak(t *testing.T) {
	cal := scenarioCalibration(t)
	leak := 5e5
	parallel := leak * cal.Rdmm / (leak + cal.Rdmm)
	v2 := cal.Supply * parallel / (cal.Rtest + parallel)

	iso := cal.Isolation(v2, DefaultSaturationBandV)
	if math.Abs(iso.Resistance-leak)/leak > 1e-9 {
		t.Fatalf("resistance = %v, want %v", iso.Resistance, leak)
	}
	if iso.Acceptable(DefaultMinIsolation) {
		t.Fatal("500 kOhm leak accepted")
	}
}

func TestIsolationRisesTowardCalibratedVoltage(t *testing.T) {
	cal := scenarioCalibration(t)

	prev := 0.0
	for v2 := 1.0; v2 < cal.Vdmm-DefaultSaturationBandV; v2 += 0.5 {
		r := cal.Isolation(v2, DefaultSaturationBandV).Resistance
		if !(r > prev) {
			t.Fatalf("r(%v) = %v not above r at the previous sample %v", v2, r, prev)
		}
		prev = r
	}

	for v2 := cal.DriftLimit(); v2 < cal.Supply; v2 += 0.5 {
		if r := cal.Isolation(v2, DefaultSaturationBandV).Resistance; r >= 0 {
			t.Fatalf("r(%v) = %v, want negative past the drift limit", v2, r)
		}
	}
}

func TestIsolationToleratesSupplyDrift(t *testing.T) {
	cal := scenarioCalibration(t)

	for _, v2 := range []float64{
		cal.Vdmm + 2*DefaultSaturationBandV,
		cal.Vdmm + 0.1,
		cal.Vdmm + 1,
		cal.DriftLimit() - 0.01,
	} {
		iso := cal.Isolation(v2, DefaultSaturationBandV)
		if !iso.Saturated || !iso.Acceptable(DefaultMinIsolation) {
			t.Fatalf("v2=%v (Vdmm %v): %+v, want saturated and acceptable", v2, cal.Vdmm, iso)
		}
	}

	if iso := cal.Isolation(cal.Vdmm-2*DefaultSaturationBandV, DefaultSaturationBandV); iso.Saturated {
		t.Fatalf("reading below the band reported saturated: %+v", iso)
	}
}
