package procedure

import (
	"errors"
	"fmt"
	"time"

	"github.com/OpenTraceLab/vacfeed/pkg/instrument"
	"github.com/OpenTraceLab/vacfeed/pkg/resistance"
)

// Kind identifies a test procedure.
type Kind int

const (
	Continuity Kind = iota
	Hipot
	Pinout
)

// Kinds lists every procedure in run order.
var Kinds = []Kind{Continuity, Hipot, Pinout}

func (k Kind) String() string {
	switch k {
	case Continuity:
		return "continuity"
	case Hipot:
		return "hipot"
	case Pinout:
		return "pinout"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Title is the report heading of the kind.
func (k Kind) Title() string {
	switch k {
	case Continuity:
		return "Continuity and Load"
	case Hipot:
		return "Hi-Pot"
	case Pinout:
		return "Pinout"
	}
	return k.String()
}

// Short is the front-panel name of the kind.
func (k Kind) Short() string {
	switch k {
	case Continuity:
		return "Cont. Load"
	case Hipot:
		return "HiPot"
	case Pinout:
		return "Pinout"
	}
	return k.String()
}

// Unit names what one verdict covers.
func (k Kind) Unit() string {
	if k == Hipot {
		return "pairs of wires"
	}
	return "wires"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown test %q", s)
}

// State is a step of the procedure template.
type State int

const (
	Preparing State = iota
	RouteSetup
	Measure
	Classify
	RouteTeardown
	Summarize
)

func (s State) String() string {
	switch s {
	case Preparing:
		return "preparing"
	case RouteSetup:
		return "route-setup"
	case Measure:
		return "measure"
	case Classify:
		return "classify"
	case RouteTeardown:
		return "route-teardown"
	case Summarize:
		return "summarize"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// WireVerdict is the classification of one wire, or of one wire pair for
// hi-pot.
type WireVerdict struct {
	// Row is the index of the channel-map row.
	Row   int
	Pin44 int
	Pin37 int
	// Pin37B is the second wire of a hi-pot pair; zero otherwise.
	Pin37B int
	// Resistance is the wire resistance for continuity and the insulation
	// resistance for hi-pot, in ohms. +Inf for a saturated hi-pot reading.
	Resistance float64
	// Leakage is the hi-pot leakage current in amperes.
	Leakage float64
	// Voltage is the reading the verdict was derived from.
	Voltage float64
	Good    bool
}

// Label names the wire the way reports list it.
func (v WireVerdict) Label() string {
	if v.Pin37B != 0 {
		return fmt.Sprintf("CH%02dH,CH%02dH -/- CH%02dH", v.Pin37, v.Pin37B, v.Pin44)
	}
	return fmt.Sprintf("CH%02dH -- CH%02dH", v.Pin37, v.Pin44)
}

// RunResult is the outcome of one procedure run.
type RunResult struct {
	Kind     Kind
	Started  time.Time
	Finished time.Time
	// Total is the number of verdicts a complete sweep produces.
	Total int
	Good  []WireVerdict
	Bad   []WireVerdict
	// Passed is set when the sweep completed with no bad verdict.
	Passed bool
	// Aborted is set when a supply check stopped the sweep.
	Aborted *PreconditionError
	// Error holds the text of the error that stopped the sweep, if any.
	Error  string
	Faults []instrument.Fault
	// Supply is the supply voltage measured while preparing.
	Supply float64
	// Calibration is set for hi-pot runs once calibrated.
	Calibration *resistance.Calibration
}

// PreconditionError reports a supply that did not reach its minimum.
type PreconditionError struct {
	Supply   string
	Measured float64
	Minimum  float64
}

// Error implements the Golang error interface.
func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s supply at %.2f V, below the %.2f V minimum", e.Supply, e.Measured, e.Minimum)
}

var (
	// ErrMissingExpectedVoltage is returned when a pinout run is requested
	// over rows without a reference voltage.
	ErrMissingExpectedVoltage = errors.New("procedure: channel map rows lack an expected voltage")
	// ErrEmptyMap is returned when the channel map has no rows.
	ErrEmptyMap = errors.New("procedure: channel map is empty")
)

// Sink receives the human-readable transcript and the final result.
type Sink interface {
	Begin(kind Kind, started time.Time) error
	Line(text string) error
	End(res *RunResult) error
}

// Feedback is the operator feedback channel. *instrument.Panel implements
// it.
type Feedback interface {
	Show(title, detail string) error
	Alert(title, detail string) error
	ErrorTone() error
	SuccessTone() error
}

// Observer is notified of readings, faults and verdicts as they happen.
type Observer interface {
	ObserveReading(module int, volts float64)
	ObserveFault(f instrument.Fault)
	ObserveVerdict(kind Kind, v WireVerdict)
	ObserveRun(res *RunResult)
}

type discardSink struct{}

func (discardSink) Begin(Kind, time.Time) error { return nil }
func (discardSink) Line(string) error           { return nil }
func (discardSink) End(*RunResult) error        { return nil }

type silentFeedback struct{}

func (silentFeedback) Show(string, string) error  { return nil }
func (silentFeedback) Alert(string, string) error { return nil }
func (silentFeedback) ErrorTone() error           { return nil }
func (silentFeedback) SuccessTone() error         { return nil }
