// Package report writes test transcripts and structured results.
//
// # Overview
//
// A Writer is the procedure sink used by the CLI. Every transcript line is
// echoed to the console and appended to one text file per run, named
// after the test kind, the start time and the operator's tag:
//
//	reports/continuity_load_2024_05_14_10h30m00s_SN042.txt
//
// When the run ends a footer with the verdict and the list of failed wires
// is added, and the result is exported as JSON next to the transcript.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/OpenTraceLab/vacfeed/pkg/procedure"
)

const (
	timeLayout   = "2006_01_02_15h04m05s"
	headerLayout = "2006/01/02 15:04:05"
	separator    = "-----------------------------------------------------------------------------------"
)

// Prefix returns the file name prefix of a test kind.
func Prefix(kind procedure.Kind) string {
	switch kind {
	case procedure.Continuity:
		return "continuity_load"
	case procedure.Hipot:
		return "hi_pot"
	}
	return kind.String()
}

// SanitizeTag keeps letters, digits, '-' and '_' and replaces anything
// else with '_'.
func SanitizeTag(tag string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, tag)
}

// FileName returns the transcript file name for a run, without directory.
func FileName(kind procedure.Kind, started time.Time, tag string) string {
	name := Prefix(kind) + "_" + started.Format(timeLayout)
	if tag = SanitizeTag(tag); tag != "" {
		name += "_" + tag
	}
	return name + ".txt"
}

// Writer implements procedure.Sink.
type Writer struct {
	dir     string
	tag     string
	console io.Writer
	logger  log.Logger

	file  *os.File
	path  string
	paths []string
}

// NewWriter returns a Writer creating transcripts under dir. console may be
// nil.
func NewWriter(dir, tag string, console io.Writer, logger log.Logger) *Writer {
	if console == nil {
		console = io.Discard
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Writer{dir: dir, tag: tag, console: console, logger: logger}
}

// Paths lists every file written so far.
func (w *Writer) Paths() []string {
	return append([]string(nil), w.paths...)
}

// Begin implements procedure.Sink.
func (w *Writer) Begin(kind procedure.Kind, started time.Time) error {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	w.path = filepath.Join(w.dir, FileName(kind, started, w.tag))
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	w.file = f
	w.paths = append(w.paths, w.path)
	level.Info(w.logger).Log("msg", "writing transcript", "path", w.path)

	return w.write(fmt.Sprintf("LSST Camera Vacuum feedthrough %s Test\n%s\n%s\n\n",
		kind.Title(), w.tag, started.Format(headerLayout)))
}

// Line implements procedure.Sink.
func (w *Writer) Line(text string) error {
	return w.write(text + "\n")
}

// End implements procedure.Sink. It writes the footer, closes the
// transcript and exports the result as JSON next to it.
func (w *Writer) End(res *procedure.RunResult) error {
	if w.file == nil {
		return fmt.Errorf("report: End without Begin")
	}
	err := w.write(Footer(res))
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	w.file = nil
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	data, err := ExportJSON(res, w.tag)
	if err != nil {
		return err
	}
	jsonPath := strings.TrimSuffix(w.path, ".txt") + ".json"
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	w.paths = append(w.paths, jsonPath)
	return nil
}

func (w *Writer) write(s string) error {
	if w.file == nil {
		return fmt.Errorf("report: no transcript open")
	}
	if _, err := io.WriteString(w.file, s); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	_, err := io.WriteString(w.console, s)
	return err
}

// Footer renders the verdict block closing a transcript.
func Footer(res *procedure.RunResult) string {
	var b strings.Builder
	title := res.Kind.Title()
	unit := res.Kind.Unit()

	fmt.Fprintf(&b, "\n%s\n", separator)
	switch {
	case res.Error != "":
		fmt.Fprintf(&b, "\n---> %s Test ERROR: %s\n\n", title, res.Error)
	case res.Aborted != nil:
		fmt.Fprintf(&b, "\n---> %s Test ABORTED: %s\n\n", title, res.Aborted)
	case res.Passed:
		fmt.Fprintf(&b, "\n---> %s Test PASSED!\n\n", title)
	default:
		fmt.Fprintf(&b, "\n---> %s Test FAILED!\n\n", title)
	}
	fmt.Fprintf(&b, "%d of %d %s passed the %s Test\n", len(res.Good), res.Total, unit, title)

	if len(res.Bad) == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "These %s failed:\n\n", unit)
	if res.Kind == procedure.Hipot {
		b.WriteString("pin37A\tpin37B\t\tpin44\t\tisolation\n")
		b.WriteString("------\t------\t\t-----\t\t---------\n")
		for _, v := range res.Bad {
			fmt.Fprintf(&b, "CH%02dH\tCH%02dH\t\tCH%02dH\t\t%s\n", v.Pin37, v.Pin37B, v.Pin44, ohms(v.Resistance))
		}
		return b.String()
	}

	value := "ohms"
	if res.Kind == procedure.Pinout {
		value = "volts"
	}
	fmt.Fprintf(&b, "pin37\t\tpin44\t\t%s\n", value)
	b.WriteString("-----\t\t-----\t\t-----\n")
	for _, v := range res.Bad {
		derived := ohms(v.Resistance)
		if res.Kind == procedure.Pinout {
			derived = fmt.Sprintf("%.2f", v.Voltage)
		}
		fmt.Fprintf(&b, "CH%02dH\t\tCH%02dH\t\t%s\n", v.Pin37, v.Pin44, derived)
	}
	return b.String()
}

func ohms(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "saturated"
	case math.IsNaN(v) || math.IsInf(v, -1):
		return "n/a"
	}
	return fmt.Sprintf("%.4g", v)
}

type jsonVerdict struct {
	Row        int      `json:"row"`
	Pin44      int      `json:"pin44"`
	Pin37      int      `json:"pin37"`
	Pin37B     int      `json:"pin37b,omitempty"`
	Resistance *float64 `json:"resistance_ohms,omitempty"`
	Saturated  bool     `json:"saturated,omitempty"`
	Leakage    *float64 `json:"leakage_amps,omitempty"`
	Volts      float64  `json:"volts"`
	Good       bool     `json:"good"`
}

type jsonPrecondition struct {
	Supply   string  `json:"supply"`
	Measured float64 `json:"measured_volts"`
	Minimum  float64 `json:"minimum_volts"`
}

type jsonFault struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Severity int    `json:"severity"`
	Node     int    `json:"node"`
}

// ExportJSON renders a run result as indented JSON. Non-finite resistances
// are omitted; a saturated hi-pot reading is flagged instead.
func ExportJSON(res *procedure.RunResult, tag string) ([]byte, error) {
	if res == nil {
		return nil, fmt.Errorf("report: no result")
	}

	output := struct {
		Version  string            `json:"version"`
		Test     string            `json:"test"`
		Tag      string            `json:"tag,omitempty"`
		Started  time.Time         `json:"started"`
		Finished time.Time         `json:"finished"`
		Total    int               `json:"total"`
		Passed   bool              `json:"passed"`
		Error    string            `json:"error,omitempty"`
		Aborted  *jsonPrecondition `json:"aborted,omitempty"`
		Supply   float64           `json:"supply_volts,omitempty"`
		Rdmm     *float64          `json:"dmm_input_ohms,omitempty"`
		Good     []jsonVerdict     `json:"good"`
		Bad      []jsonVerdict     `json:"bad"`
		Faults   []jsonFault       `json:"instrument_faults,omitempty"`
	}{
		Version:  "1.0",
		Test:     res.Kind.String(),
		Tag:      tag,
		Started:  res.Started,
		Finished: res.Finished,
		Total:    res.Total,
		Passed:   res.Passed,
		Error:    res.Error,
		Supply:   res.Supply,
		Good:     verdicts(res.Kind, res.Good),
		Bad:      verdicts(res.Kind, res.Bad),
	}
	if p := res.Aborted; p != nil {
		output.Aborted = &jsonPrecondition{Supply: p.Supply, Measured: p.Measured, Minimum: p.Minimum}
	}
	if res.Calibration != nil {
		output.Rdmm = finite(res.Calibration.Rdmm)
	}
	for _, f := range res.Faults {
		output.Faults = append(output.Faults, jsonFault{Code: f.Code, Message: f.Message, Severity: f.Severity, Node: f.Node})
	}

	return json.MarshalIndent(output, "", "  ")
}

func verdicts(kind procedure.Kind, in []procedure.WireVerdict) []jsonVerdict {
	out := make([]jsonVerdict, 0, len(in))
	for _, v := range in {
		jv := jsonVerdict{
			Row:    v.Row,
			Pin44:  v.Pin44,
			Pin37:  v.Pin37,
			Pin37B: v.Pin37B,
			Volts:  v.Voltage,
			Good:   v.Good,
		}
		if kind != procedure.Pinout {
			jv.Resistance = finite(v.Resistance)
			jv.Saturated = math.IsInf(v.Resistance, 1)
		}
		if kind == procedure.Hipot {
			jv.Leakage = finite(v.Leakage)
		}
		out = append(out, jv)
	}
	return out
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
