// Package measure takes single DMM readings through a module's sense path.
package measure

import (
	"math"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/OpenTraceLab/vacfeed/pkg/instrument"
	"github.com/OpenTraceLab/vacfeed/pkg/relay"
)

// DefaultTolerance is the acceptance window for reference readings.
const DefaultTolerance = 0.05

// Result is a reading checked against an expected value.
type Result struct {
	Valid     bool
	Value     float64
	Expected  float64
	Tolerance float64
}

// Within reports whether value lies strictly inside tol of expected. A
// delta equal to tol is outside.
func Within(expected, value, tol float64) bool {
	return math.Abs(expected-value) < tol
}

// Meter reads voltages on the module buses.
type Meter struct {
	link   instrument.Link
	router *relay.Router
	logger log.Logger

	// OnFault is called for every entry drained from the instrument's error
	// queue after a reading.
	OnFault func(module int, f instrument.Fault)
	// OnReading is called for every successful reading.
	OnReading func(module int, value float64)
}

// NewMeter returns a Meter that switches sense relays through router.
func NewMeter(l instrument.Link, router *relay.Router, logger log.Logger) *Meter {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Meter{link: l, router: router, logger: logger}
}

// Read closes the module's sense channel, takes one reading, drains the
// instrument error queue and reopens the sense channel. The sense channel
// is reopened on every path once it was closed.
func (m *Meter) Read(module int) (v float64, err error) {
	if err := m.router.Close(module, relay.SenseChannel); err != nil {
		return 0, err
	}
	defer func() {
		if oerr := m.router.Open(module, relay.SenseChannel); oerr != nil && err == nil {
			err = oerr
		}
	}()

	v, err = instrument.QueryFloat(m.link, instrument.Measure)

	faults, derr := m.link.DrainErrors()
	for _, f := range faults {
		level.Warn(m.logger).Log("msg", "instrument fault after reading", "module", module, "code", f.Code, "message", f.Message)
		if m.OnFault != nil {
			m.OnFault(module, f)
		}
	}

	if err != nil {
		return 0, err
	}
	if derr != nil {
		return 0, derr
	}
	level.Debug(m.logger).Log("msg", "reading", "module", module, "volts", v)
	if m.OnReading != nil {
		m.OnReading(module, v)
	}
	return v, nil
}

// ReadExpect is Read followed by a tolerance check against expected.
func (m *Meter) ReadExpect(module int, expected, tol float64) (Result, error) {
	v, err := m.Read(module)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Valid:     Within(expected, v, tol),
		Value:     v,
		Expected:  expected,
		Tolerance: tol,
	}, nil
}
