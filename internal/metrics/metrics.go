// Package metrics counts readings, instrument faults and verdicts of a
// station session. The registry can be written in the text exposition
// format for a node-exporter textfile collector.
package metrics

import (
	"math"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/OpenTraceLab/vacfeed/pkg/instrument"
	"github.com/OpenTraceLab/vacfeed/pkg/procedure"
)

// Recorder implements procedure.Observer. A nil *Recorder records nothing.
type Recorder struct {
	measurements *prometheus.CounterVec
	faults       prometheus.Counter
	wires        *prometheus.CounterVec
	runs         *prometheus.CounterVec
	resistance   *prometheus.HistogramVec
}

var _ procedure.Observer = (*Recorder)(nil)

// NewRecorder creates the collectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		measurements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vacfeed_measurements_total",
			Help: "DMM readings taken, by switch module.",
		}, []string{"module"}),
		faults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vacfeed_instrument_faults_total",
			Help: "Entries drained from the instrument error queue.",
		}),
		wires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vacfeed_wires_total",
			Help: "Wire verdicts, by test and verdict.",
		}, []string{"test", "verdict"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vacfeed_runs_total",
			Help: "Completed test runs, by test and result.",
		}, []string{"test", "result"}),
		resistance: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vacfeed_wire_resistance_ohms",
			Help:    "Finite wire resistances: continuity resistance or hi-pot insulation resistance.",
			Buckets: prometheus.ExponentialBuckets(0.01, 10, 14),
		}, []string{"test"}),
	}
	reg.MustRegister(r.measurements, r.faults, r.wires, r.runs, r.resistance)
	return r
}

// ObserveReading implements procedure.Observer.
func (r *Recorder) ObserveReading(module int, _ float64) {
	if r == nil {
		return
	}
	r.measurements.WithLabelValues(strconv.Itoa(module)).Inc()
}

// ObserveFault implements procedure.Observer.
func (r *Recorder) ObserveFault(instrument.Fault) {
	if r == nil {
		return
	}
	r.faults.Inc()
}

// ObserveVerdict implements procedure.Observer.
func (r *Recorder) ObserveVerdict(kind procedure.Kind, v procedure.WireVerdict) {
	if r == nil {
		return
	}
	verdict := "bad"
	if v.Good {
		verdict = "good"
	}
	r.wires.WithLabelValues(kind.String(), verdict).Inc()

	if kind != procedure.Pinout && v.Resistance >= 0 && !math.IsInf(v.Resistance, 0) && !math.IsNaN(v.Resistance) {
		r.resistance.WithLabelValues(kind.String()).Observe(v.Resistance)
	}
}

// ObserveRun implements procedure.Observer.
func (r *Recorder) ObserveRun(res *procedure.RunResult) {
	if r == nil || res == nil {
		return
	}
	r.runs.WithLabelValues(res.Kind.String(), Result(res)).Inc()
}

// Result classifies a run as "passed", "failed", "aborted" or "error".
func Result(res *procedure.RunResult) string {
	switch {
	case res.Error != "":
		return "error"
	case res.Aborted != nil:
		return "aborted"
	case res.Passed:
		return "passed"
	}
	return "failed"
}

// WriteTextfile writes everything gathered from g to path.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
