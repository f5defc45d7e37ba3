package procedure

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/OpenTraceLab/vacfeed/pkg/chanmap"
	"github.com/OpenTraceLab/vacfeed/pkg/instrument"
	"github.com/OpenTraceLab/vacfeed/pkg/measure"
	"github.com/OpenTraceLab/vacfeed/pkg/relay"
)

// Env is what a procedure runs against.
type Env struct {
	Link     instrument.Link
	Map      *chanmap.Map
	Settings Settings
	// Sink receives the transcript. Nil discards it.
	Sink Sink
	// Feedback drives the front panel. Nil disables feedback.
	Feedback Feedback
	// Observer is optional.
	Observer Observer
	Logger   log.Logger
	// OnState is called on every state transition.
	OnState func(kind Kind, s State)
	// Now defaults to time.Now.
	Now func() time.Time
}

// unit is one verdict's worth of work: a wire, or a whole row for hi-pot.
type unit struct {
	Index int
	Row   chanmap.Row
	// Wire is the 37-pin wire under test, zero for whole-row units.
	Wire        int
	First, Last bool
}

func wireUnits(m *chanmap.Map) []unit {
	units := make([]unit, 0, 2*m.Len())
	for i, row := range m.Rows() {
		for w, wire := range row.Wires() {
			units = append(units, unit{Index: i, Row: row, Wire: wire, First: w == 0, Last: w == 1})
		}
	}
	return units
}

func rowUnits(m *chanmap.Map) []unit {
	units := make([]unit, 0, m.Len())
	for i, row := range m.Rows() {
		units = append(units, unit{Index: i, Row: row, First: true, Last: true})
	}
	return units
}

// hooks are the per-kind steps of the template. S carries what measure
// found to classify.
type hooks[S any] interface {
	prepare(r *run) error
	units(m *chanmap.Map) []unit
	setup(r *run, u unit) error
	measure(r *run, u unit) (S, error)
	classify(r *run, u unit, s S) (WireVerdict, error)
	teardown(r *run, u unit) error
}

// run is the state of one procedure execution.
type run struct {
	env    Env
	kind   Kind
	logger log.Logger
	sink   Sink
	fb     Feedback
	router *relay.Router
	meter  *measure.Meter
	res    *RunResult
	state  State
	header string
}

// Run executes the procedure of the given kind. Precondition failures are
// reported in the result with a nil error. Any other failure stops the
// sweep and is returned together with the partial result; the channels the
// sweep closed are opened again either way.
func Run(ctx context.Context, env Env, kind Kind) (*RunResult, error) {
	if env.Map.Len() == 0 {
		return nil, ErrEmptyMap
	}
	if kind == Pinout {
		if missing := env.Map.MissingExpected(); len(missing) > 0 {
			return nil, fmt.Errorf("%w: %d of %d rows", ErrMissingExpectedVoltage, len(missing), env.Map.Len())
		}
	}

	r := newRun(env, kind)
	switch kind {
	case Continuity:
		return execute[continuitySample](ctx, r, &continuity{})
	case Hipot:
		return execute[hipotSample](ctx, r, &hipot{})
	case Pinout:
		return execute[measure.Result](ctx, r, pinout{})
	}
	return nil, fmt.Errorf("procedure: unknown kind %v", kind)
}

func newRun(env Env, kind Kind) *run {
	if env.Logger == nil {
		env.Logger = log.NewNopLogger()
	}
	if env.Now == nil {
		env.Now = time.Now
	}
	r := &run{
		env:    env,
		kind:   kind,
		logger: log.With(env.Logger, "test", kind.String()),
		sink:   env.Sink,
		fb:     env.Feedback,
		router: relay.NewRouter(env.Link, env.Logger),
	}
	if r.sink == nil {
		r.sink = discardSink{}
	}
	if r.fb == nil {
		r.fb = silentFeedback{}
	}

	r.meter = measure.NewMeter(env.Link, r.router, env.Logger)
	r.meter.OnFault = func(_ int, f instrument.Fault) {
		r.res.Faults = append(r.res.Faults, f)
		if env.Observer != nil {
			env.Observer.ObserveFault(f)
		}
	}
	r.meter.OnReading = func(module int, v float64) {
		if env.Observer != nil {
			env.Observer.ObserveReading(module, v)
		}
	}
	return r
}

func execute[S any](ctx context.Context, r *run, h hooks[S]) (*RunResult, error) {
	units := h.units(r.env.Map)
	r.res = &RunResult{
		Kind:    r.kind,
		Started: r.env.Now(),
		Total:   len(units),
	}
	level.Info(r.logger).Log("msg", "starting test", "rows", r.env.Map.Len(), "verdicts", len(units))

	if err := r.sink.Begin(r.kind, r.res.Started); err != nil {
		return nil, err
	}

	err := sweep(ctx, r, h, units)
	stoppedIn := r.state
	r.enter(Summarize)
	r.res.Finished = r.env.Now()
	if err != nil {
		r.fail(err, stoppedIn)
		return r.res, err
	}
	if err := r.summarize(); err != nil {
		return r.res, err
	}
	return r.res, nil
}

func sweep[S any](ctx context.Context, r *run, h hooks[S], units []unit) (err error) {
	defer func() {
		if terr := r.router.OpenAll(); terr != nil {
			level.Error(r.logger).Log("msg", "failed to release relays", "err", terr)
			if err == nil {
				err = terr
			}
		}
	}()

	r.enter(Preparing)
	r.show(r.kind.Short()+" Test", "Preparing for test")
	if err := h.prepare(r); err != nil {
		return err
	}
	if r.res.Aborted != nil {
		return nil
	}

	rows := r.env.Map.Len()
	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return err
		}
		if u.First {
			r.header = fmt.Sprintf("%s (%d/%d)", r.kind.Short(), u.Index+1, rows)
			if err := r.sink.Line("\n" + r.header); err != nil {
				return err
			}
		}

		r.enter(RouteSetup)
		if err := h.setup(r, u); err != nil {
			return err
		}
		r.enter(Measure)
		s, err := h.measure(r, u)
		if err != nil {
			return err
		}
		r.enter(Classify)
		v, err := h.classify(r, u, s)
		if err != nil {
			return err
		}
		if err := r.record(v); err != nil {
			return err
		}
		r.enter(RouteTeardown)
		if err := h.teardown(r, u); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) enter(s State) {
	r.state = s
	level.Debug(r.logger).Log("msg", "state", "state", s)
	if r.env.OnState != nil {
		r.env.OnState(r.kind, s)
	}
}

// report writes a transcript line and mirrors it on the front panel under
// the current row header.
func (r *run) report(line string) error {
	if err := r.sink.Line(line); err != nil {
		return err
	}
	r.show(r.header, line)
	return nil
}

func (r *run) show(title, detail string) {
	if err := r.fb.Show(title, detail); err != nil {
		level.Warn(r.logger).Log("msg", "front panel update failed", "err", err)
	}
}

func (r *run) record(v WireVerdict) error {
	if v.Good {
		r.res.Good = append(r.res.Good, v)
	} else {
		r.res.Bad = append(r.res.Bad, v)
	}
	level.Debug(r.logger).Log("msg", "verdict", "wire", v.Label(), "good", v.Good, "resistance", v.Resistance)
	if r.env.Observer != nil {
		r.env.Observer.ObserveVerdict(r.kind, v)
	}
	if !v.Good && r.env.Settings.BeepPerFailure {
		return r.fb.ErrorTone()
	}
	return nil
}

// abort stops the sweep on a failed supply check.
func (r *run) abort(p *PreconditionError) error {
	r.res.Aborted = p
	level.Warn(r.logger).Log("msg", "test aborted", "reason", p)
	return r.sink.Line("\n---> " + p.Error())
}

func (r *run) summarize() error {
	res := r.res
	res.Passed = res.Aborted == nil && len(res.Bad) == 0 && len(res.Good) == res.Total
	level.Info(r.logger).Log("msg", "test finished", "passed", res.Passed, "good", len(res.Good), "bad", len(res.Bad))

	if err := r.sink.End(res); err != nil {
		return err
	}
	if r.env.Observer != nil {
		r.env.Observer.ObserveRun(res)
	}

	title := r.kind.Short()
	switch {
	case res.Aborted != nil:
		if err := r.fb.Alert(title+" ABORTED", res.Aborted.Error()); err != nil {
			return err
		}
		return r.fb.ErrorTone()
	case res.Passed:
		if err := r.fb.Show(title+" PASSED!", fmt.Sprintf("%d of %d %s are good", len(res.Good), res.Total, r.kind.Unit())); err != nil {
			return err
		}
		return r.fb.SuccessTone()
	default:
		if err := r.fb.Alert(title+" FAILED!", fmt.Sprintf("%d of %d %s are bad", len(res.Bad), res.Total, r.kind.Unit())); err != nil {
			return err
		}
		if err := r.fb.ErrorTone(); err != nil {
			return err
		}
		return r.fb.ErrorTone()
	}
}

// fail records err in the result. The transcript and the panel are
// updated on a best-effort basis since the link may be gone.
func (r *run) fail(err error, in State) {
	r.res.Passed = false
	r.res.Error = err.Error()
	level.Error(r.logger).Log("msg", "test stopped", "state", in, "err", err)

	if serr := r.sink.End(r.res); serr != nil {
		level.Error(r.logger).Log("msg", "failed to close transcript", "err", serr)
	}
	if r.env.Observer != nil {
		r.env.Observer.ObserveRun(r.res)
	}
	if ferr := r.fb.Alert("Error!", err.Error()); ferr != nil {
		level.Debug(r.logger).Log("msg", "error alert failed", "err", ferr)
		return
	}
	if terr := r.fb.ErrorTone(); terr != nil {
		level.Debug(r.logger).Log("msg", "error tone failed", "err", terr)
	}
}
