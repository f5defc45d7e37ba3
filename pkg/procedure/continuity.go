package procedure

import (
	"fmt"

	"github.com/OpenTraceLab/vacfeed/pkg/chanmap"
	"github.com/OpenTraceLab/vacfeed/pkg/measure"
	"github.com/OpenTraceLab/vacfeed/pkg/relay"
	"github.com/OpenTraceLab/vacfeed/pkg/resistance"
)

// Continuity routing on the fixture.
const (
	contRef37    = 89 // 37-pin bus to ground through R37
	contLow37    = 93
	contSupply44 = 89 // 5 V through R44 onto the 44-pin bus
	contLow44    = 93
)

type continuity struct {
	supply float64
	params resistance.ContinuityParams
}

type continuitySample struct {
	Baseline [2]measure.Result
	Loaded   [2]measure.Result
	Estimate resistance.ContinuityEstimate
}

func (c *continuity) prepare(r *run) error {
	s := r.env.Settings.Continuity
	c.params = resistance.ContinuityParams{R37: s.R37, R44: s.R44, MaxWire: s.MaxWire}

	if err := Configure(r.env.Link, r.env.Settings, s.Range); err != nil {
		return err
	}
	if err := r.router.Close(relay.Module37, contRef37, contLow37); err != nil {
		return err
	}
	if err := r.router.Close(relay.Module44, contSupply44, contLow44); err != nil {
		return err
	}

	v0, err := r.meter.Read(relay.Module37)
	if err != nil {
		return err
	}
	v5, err := r.meter.Read(relay.Module44)
	if err != nil {
		return err
	}
	c.supply = v5
	r.res.Supply = v5
	if err := r.sink.Line(fmt.Sprintf("Supply check: 37-pin bus %.2f V, 44-pin bus %.2f V", v0, v5)); err != nil {
		return err
	}

	if !resistance.SupplyOK(v5, s.MinSupply) {
		return r.abort(&PreconditionError{Supply: "5 V continuity", Measured: v5, Minimum: s.MinSupply})
	}
	return nil
}

func (c *continuity) units(m *chanmap.Map) []unit {
	return wireUnits(m)
}

func (c *continuity) setup(r *run, u unit) error {
	if u.First {
		return r.router.Close(relay.Module44, u.Row.Pin44)
	}
	return nil
}

func (c *continuity) measure(r *run, u unit) (continuitySample, error) {
	s := r.env.Settings.Continuity
	var out continuitySample

	b1, err := r.meter.ReadExpect(relay.Module37, 0, s.BaselineTolerance)
	if err != nil {
		return out, err
	}
	b2, err := r.meter.ReadExpect(relay.Module44, c.supply, s.BaselineTolerance)
	if err != nil {
		return out, err
	}
	out.Baseline = [2]measure.Result{b1, b2}
	if err := r.report(fmt.Sprintf("    -- %02dH %s %.2f|%.2f v      (%.2f|%.2f)v",
		u.Row.Pin44, verdictText(b1.Valid && b2.Valid), b1.Value, b2.Value, b1.Expected, b2.Expected)); err != nil {
		return out, err
	}

	if err := r.router.Close(relay.Module37, u.Wire); err != nil {
		return out, err
	}
	l1, err := r.meter.ReadExpect(relay.Module37, s.LoadedExpected, s.LoadedTolerance)
	if err != nil {
		return out, err
	}
	l2, err := r.meter.ReadExpect(relay.Module44, s.LoadedExpected, s.LoadedTolerance)
	if err != nil {
		return out, err
	}
	out.Loaded = [2]measure.Result{l1, l2}
	out.Estimate = resistance.EstimateContinuity(l1.Value, l2.Value, b2.Value, c.params)
	return out, nil
}

func (c *continuity) classify(r *run, u unit, s continuitySample) (WireVerdict, error) {
	b, l := s.Baseline, s.Loaded
	good := b[0].Valid && b[1].Valid && l[0].Valid && l[1].Valid && s.Estimate.Valid

	v := WireVerdict{
		Row:        u.Index,
		Pin44:      u.Row.Pin44,
		Pin37:      u.Wire,
		Resistance: s.Estimate.Resistance,
		Voltage:    l[0].Value,
		Good:       good,
	}
	return v, r.report(fmt.Sprintf("%02dH -- %02dH %s %.2f|%.2f v      (%.2f|%.2f)v  %.3f ohm",
		u.Wire, u.Row.Pin44, verdictText(l[0].Valid && l[1].Valid && s.Estimate.Valid),
		l[0].Value, l[1].Value, l[0].Expected, l[1].Expected, s.Estimate.Resistance))
}

func (c *continuity) teardown(r *run, u unit) error {
	if err := r.router.Open(relay.Module37, u.Wire); err != nil {
		return err
	}
	if u.Last {
		return r.router.Open(relay.Module44, u.Row.Pin44)
	}
	return nil
}

func verdictText(ok bool) string {
	if ok {
		return "OK"
	}
	return "Error"
}
