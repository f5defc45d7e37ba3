package procedure

import (
	"fmt"
	"math"

	"github.com/OpenTraceLab/vacfeed/pkg/chanmap"
	"github.com/OpenTraceLab/vacfeed/pkg/measure"
	"github.com/OpenTraceLab/vacfeed/pkg/relay"
	"github.com/OpenTraceLab/vacfeed/pkg/resistance"
)

// Hi-pot routing on the fixture.
const (
	hipotGround37 = 90 // 37-pin bus straight to ground
	hipotLow37    = 93
	hipotTest44   = 91 // high voltage through the series test resistor
	hipotDirect44 = 92 // high voltage straight onto the 44-pin bus
	hipotLow44    = 93
)

type hipot struct {
	cal   resistance.Calibration
	wires []int
}

type hipotSample struct {
	Ground    measure.Result
	Isolation resistance.Isolation
}

func (h *hipot) prepare(r *run) error {
	s := r.env.Settings.Hipot

	if err := Configure(r.env.Link, r.env.Settings, s.Range); err != nil {
		return err
	}
	if err := r.router.Close(relay.Module37, hipotGround37, hipotLow37); err != nil {
		return err
	}
	if err := r.router.Close(relay.Module44, hipotLow44); err != nil {
		return err
	}

	if err := r.router.Close(relay.Module44, hipotDirect44); err != nil {
		return err
	}
	supply, err := r.meter.Read(relay.Module44)
	if err != nil {
		return err
	}
	if err := r.router.Open(relay.Module44, hipotDirect44); err != nil {
		return err
	}
	r.res.Supply = supply
	if err := r.sink.Line(fmt.Sprintf("Supply check: %.1f V (nominal %.0f V)", supply, s.Nominal)); err != nil {
		return err
	}
	if !resistance.SupplyOK(supply, s.MinSupply) {
		return r.abort(&PreconditionError{Supply: fmt.Sprintf("%.0f V hi-pot", s.Nominal), Measured: supply, Minimum: s.MinSupply})
	}

	if err := r.router.Close(relay.Module44, hipotTest44); err != nil {
		return err
	}
	vdmm, err := r.meter.Read(relay.Module44)
	if err != nil {
		return err
	}
	cal, err := resistance.Calibrate(supply, vdmm, s.Rtest)
	if err != nil {
		return err
	}
	h.cal = cal
	r.res.Calibration = &cal
	h.wires = r.env.Map.Wires37()

	return r.sink.Line(fmt.Sprintf("Calibration: %.1f V through %.3g ohm, DMM input %.4g ohm", vdmm, cal.Rtest, cal.Rdmm))
}

func (h *hipot) units(m *chanmap.Map) []unit {
	return rowUnits(m)
}

// setup grounds every 37-pin wire of the map and then lifts the pair under
// test, so the pair is stressed against the whole harness at once.
func (h *hipot) setup(r *run, u unit) error {
	if err := r.router.Close(relay.Module37, h.wires...); err != nil {
		return err
	}
	if err := r.router.Open(relay.Module37, u.Row.Pin37A, u.Row.Pin37B); err != nil {
		return err
	}
	return r.router.Close(relay.Module44, u.Row.Pin44)
}

func (h *hipot) measure(r *run, u unit) (hipotSample, error) {
	s := r.env.Settings.Hipot

	g, err := r.meter.ReadExpect(relay.Module37, 0, s.GroundTolerance)
	if err != nil {
		return hipotSample{}, err
	}
	v2, err := r.meter.Read(relay.Module44)
	if err != nil {
		return hipotSample{}, err
	}
	return hipotSample{Ground: g, Isolation: h.cal.Isolation(v2, s.SaturationBand)}, nil
}

func (h *hipot) classify(r *run, u unit, s hipotSample) (WireVerdict, error) {
	iso := s.Isolation
	good := s.Ground.Valid && iso.Acceptable(r.env.Settings.Hipot.MinIsolation)

	v := WireVerdict{
		Row:        u.Index,
		Pin44:      u.Row.Pin44,
		Pin37:      u.Row.Pin37A,
		Pin37B:     u.Row.Pin37B,
		Resistance: iso.Resistance,
		Leakage:    iso.Leakage,
		Voltage:    iso.Voltage,
		Good:       good,
	}
	return v, r.report(fmt.Sprintf("%02dH,%02dH -/- %02dH %s %.1f|%.1f v      (%.1f|%.1f)v  %s",
		u.Row.Pin37A, u.Row.Pin37B, u.Row.Pin44, verdictText(good),
		s.Ground.Value, iso.Voltage, s.Ground.Expected, h.cal.Vdmm, isolationText(iso)))
}

func (h *hipot) teardown(r *run, u unit) error {
	return r.router.Open(relay.Module44, u.Row.Pin44)
}

func isolationText(iso resistance.Isolation) string {
	switch {
	case iso.Saturated:
		return "above measurable range"
	case iso.Resistance < 0 || math.IsNaN(iso.Resistance):
		return "invalid reading"
	}
	return fmt.Sprintf("%.3g ohm, %.3g A", iso.Resistance, iso.Leakage)
}
