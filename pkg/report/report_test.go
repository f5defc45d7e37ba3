package report

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OpenTraceLab/vacfeed/pkg/bench"
	"github.com/OpenTraceLab/vacfeed/pkg/chanmap"
	"github.com/OpenTraceLab/vacfeed/pkg/instrument"
	"github.com/OpenTraceLab/vacfeed/pkg/procedure"
	"github.com/OpenTraceLab/vacfeed/pkg/resistance"
)

var started = time.Date(2024, 5, 14, 10, 30, 0, 0, time.UTC)

func TestFileName(t *testing.T) {
	tests := []struct {
		kind procedure.Kind
		tag  string
		want string
	}{
		{procedure.Continuity, "SN042", "continuity_load_2024_05_14_10h30m00s_SN042.txt"},
		{procedure.Hipot, "flange A/2", "hi_pot_2024_05_14_10h30m00s_flange_A_2.txt"},
		{procedure.Pinout, "", "pinout_2024_05_14_10h30m00s.txt"},
	}
	for _, tt := range tests {
		if got := FileName(tt.kind, started, tt.tag); got != tt.want {
			t.Errorf("FileName(%v, %q) = %q, want %q", tt.kind, tt.tag, got, tt.want)
		}
	}
}

func TestWriterTranscript(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	var console bytes.Buffer
	w := NewWriter(dir, "SN042", &console, nil)

	if err := w.Begin(procedure.Continuity, started); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := w.Line("\nCont. Load (1/1)"); err != nil {
		t.Fatalf("Line: %v", err)
	}
	res := &procedure.RunResult{
		Kind:     procedure.Continuity,
		Started:  started,
		Finished: started.Add(time.Minute),
		Total:    2,
		Good:     []procedure.WireVerdict{{Row: 0, Pin44: 12, Pin37: 7, Resistance: 0.31, Good: true}},
		Bad:      []procedure.WireVerdict{{Row: 0, Pin44: 12, Pin37: 3, Resistance: math.NaN()}},
	}
	if err := w.End(res); err != nil {
		t.Fatalf("End: %v", err)
	}

	paths := w.Paths()
	if len(paths) != 2 {
		t.Fatalf("Paths = %v, want transcript and json", paths)
	}
	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if text != console.String() {
		t.Errorf("console echo differs from transcript")
	}
	for _, want := range []string{
		"LSST Camera Vacuum feedthrough Continuity and Load Test\nSN042\n2024/05/14 10:30:00\n\n",
		"Cont. Load (1/1)\n",
		"---> Continuity and Load Test FAILED!",
		"1 of 2 wires passed the Continuity and Load Test",
		"pin37\t\tpin44",
		"CH03H\t\tCH12H\t\tn/a",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("transcript missing %q:\n%s", want, text)
		}
	}
	if !strings.HasSuffix(paths[1], "continuity_load_2024_05_14_10h30m00s_SN042.json") {
		t.Errorf("json path = %s", paths[1])
	}
}

func TestWriterEndWithoutBegin(t *testing.T) {
	w := NewWriter(t.TempDir(), "", nil, nil)
	if err := w.End(&procedure.RunResult{}); err == nil {
		t.Fatalf("expected error")
	}
	if err := w.Line("x"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFooter(t *testing.T) {
	tests := []struct {
		name string
		res  *procedure.RunResult
		want []string
	}{
		{
			name: "passed",
			res:  &procedure.RunResult{Kind: procedure.Pinout, Total: 2, Passed: true, Good: make([]procedure.WireVerdict, 2)},
			want: []string{"---> Pinout Test PASSED!", "2 of 2 wires passed"},
		},
		{
			name: "aborted",
			res: &procedure.RunResult{Kind: procedure.Hipot, Total: 3, Aborted: &procedure.PreconditionError{
				Supply: "250V", Measured: 12, Minimum: 220,
			}},
			want: []string{"---> Hi-Pot Test ABORTED: 250V supply", "0 of 3 pairs of wires passed the Hi-Pot Test"},
		},
		{
			name: "error",
			res:  &procedure.RunResult{Kind: procedure.Continuity, Error: "link down"},
			want: []string{"Test ERROR: link down"},
		},
		{
			name: "hipot table",
			res: &procedure.RunResult{Kind: procedure.Hipot, Total: 1, Bad: []procedure.WireVerdict{
				{Pin44: 12, Pin37: 7, Pin37B: 3, Resistance: 2e5},
			}},
			want: []string{"pin37A\tpin37B\t\tpin44", "CH07H\tCH03H\t\tCH12H\t\t2e+05"},
		},
		{
			name: "pinout volts",
			res: &procedure.RunResult{Kind: procedure.Pinout, Total: 1, Bad: []procedure.WireVerdict{
				{Pin44: 12, Pin37: 7, Voltage: 1.5},
			}},
			want: []string{"volts", "CH07H\t\tCH12H\t\t1.50"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Footer(tt.res)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("footer missing %q:\n%s", w, got)
				}
			}
		})
	}
}

func TestExportJSONNonFinite(t *testing.T) {
	res := &procedure.RunResult{
		Kind:        procedure.Hipot,
		Total:       2,
		Calibration: &resistance.Calibration{Rdmm: 9.5e6},
		Good:        []procedure.WireVerdict{{Pin44: 12, Pin37: 7, Pin37B: 3, Resistance: math.Inf(1), Good: true}},
		Bad:         []procedure.WireVerdict{{Pin44: 13, Pin37: 8, Pin37B: 4, Resistance: -3e5, Leakage: math.NaN()}},
		Faults:      []instrument.Fault{{Code: -221, Message: "Settings conflict"}},
	}
	data, err := ExportJSON(res, "SN042")
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}

	var out struct {
		Test   string
		Tag    string
		Rdmm   float64 `json:"dmm_input_ohms"`
		Good   []map[string]interface{}
		Bad    []map[string]interface{}
		Faults []map[string]interface{} `json:"instrument_faults"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, data)
	}
	if out.Test != "hipot" || out.Tag != "SN042" || out.Rdmm != 9.5e6 {
		t.Errorf("header = %+v", out)
	}
	if _, ok := out.Good[0]["resistance_ohms"]; ok {
		t.Errorf("saturated resistance exported: %v", out.Good[0])
	}
	if out.Good[0]["saturated"] != true {
		t.Errorf("saturated flag missing: %v", out.Good[0])
	}
	if out.Bad[0]["resistance_ohms"] != -3e5 {
		t.Errorf("bad resistance = %v", out.Bad[0]["resistance_ohms"])
	}
	if _, ok := out.Bad[0]["leakage_amps"]; ok {
		t.Errorf("NaN leakage exported: %v", out.Bad[0])
	}
	if len(out.Faults) != 1 {
		t.Errorf("faults = %v", out.Faults)
	}

	if _, err := ExportJSON(nil, ""); err == nil {
		t.Errorf("expected error for nil result")
	}
}

func TestWriterWithProcedure(t *testing.T) {
	v := 3.3
	m := chanmap.New([]chanmap.Row{{Pin44: 12, Pin37A: 7, Pin37B: 3, Expected: &v}})
	sim := instrument.NewSim()
	bench.New(m).Attach(sim)
	s := instrument.NewSession(sim, nil)

	dir := t.TempDir()
	w := NewWriter(dir, "bench", nil, nil)
	res, err := procedure.Run(context.Background(), procedure.Env{
		Link:     s,
		Map:      m,
		Settings: procedure.DefaultSettings(),
		Sink:     w,
		Now:      func() time.Time { return started },
	}, procedure.Pinout)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Passed {
		t.Fatalf("pinout failed: %+v", res)
	}
	data, err := os.ReadFile(filepath.Join(dir, "pinout_2024_05_14_10h30m00s_bench.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "---> Pinout Test PASSED!") {
		t.Errorf("transcript:\n%s", data)
	}
}
