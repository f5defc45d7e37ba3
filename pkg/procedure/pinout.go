package procedure

import (
	"fmt"

	"github.com/OpenTraceLab/vacfeed/pkg/chanmap"
	"github.com/OpenTraceLab/vacfeed/pkg/measure"
	"github.com/OpenTraceLab/vacfeed/pkg/relay"
)

type pinout struct{}

func (pinout) prepare(r *run) error {
	return Configure(r.env.Link, r.env.Settings, r.env.Settings.Pinout.Range)
}

func (pinout) units(m *chanmap.Map) []unit {
	return wireUnits(m)
}

func (pinout) setup(r *run, u unit) error {
	return r.router.Close(relay.Module37, u.Wire)
}

func (pinout) measure(r *run, u unit) (measure.Result, error) {
	expected, _ := u.Row.ExpectedVoltage()
	return r.meter.ReadExpect(relay.Module37, expected, r.env.Settings.Pinout.Tolerance)
}

func (pinout) classify(r *run, u unit, res measure.Result) (WireVerdict, error) {
	v := WireVerdict{
		Row:     u.Index,
		Pin44:   u.Row.Pin44,
		Pin37:   u.Wire,
		Voltage: res.Value,
		Good:    res.Valid,
	}
	return v, r.report(fmt.Sprintf("%02dH -- %02dH %s %.2f v      (%.2f)v",
		u.Wire, u.Row.Pin44, verdictText(res.Valid), res.Value, res.Expected))
}

func (pinout) teardown(r *run, u unit) error {
	return r.router.Open(relay.Module37, u.Wire)
}
