package chanmap

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	multierror "github.com/hashicorp/go-multierror"
)

func TestParseLabel(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "CH12", want: 12},
		{in: "Ch07", want: 7},
		{in: "H03", want: 3},
		{in: "ch08", want: 8},
		{in: "c9", want: 9},
		{in: "12H", want: 12},
		{in: "CH12H", want: 12},
		{in: " CH 41 ", want: 41},
		{in: "96", want: 96},
		{in: "", wantErr: true},
		{in: "CH", wantErr: true},
		{in: "CHX1", wantErr: true},
		{in: "CH1.5", wantErr: true},
		{in: "CH00", wantErr: true},
		{in: "CH-3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLabel(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseLabel(%q) = %d, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLabel(%q) returned error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("ParseLabel(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoadStripsLabelsAndSkipsBlankRows(t *testing.T) {
	src := strings.Join([]string{
		`"CH12",x,"Ch07","H03"`,
		`"",,,`,
		`,separator,,`,
		`CH13,y,CH08,CH04`,
	}, "\n")

	m, err := Load(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("Len = %d, want 2", m.Len())
	}

	first := m.Row(0)
	if first.Pin44 != 12 || first.Pin37A != 7 || first.Pin37B != 3 {
		t.Fatalf("row 0 = %+v, want [12 7 3]", first)
	}
	if _, ok := first.ExpectedVoltage(); ok {
		t.Fatalf("row 0 should not carry an expected voltage")
	}

	second := m.Row(1)
	if second.Pin44 != 13 || second.Pin37A != 8 || second.Pin37B != 4 {
		t.Fatalf("row 1 = %+v, want [13 8 4]", second)
	}
}

func TestLoadKeepsDuplicateRows(t *testing.T) {
	src := "CH01,a,CH02,CH03\nCH01,a,CH02,CH03\n"

	m, err := Load(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("duplicate pin44 rows must be preserved, got %d rows", m.Len())
	}
}

func TestLoadExpectedVoltage(t *testing.T) {
	src := "CH01,a,CH02,CH03,b,3.3\nCH04,a,CH05,CH06,b,1.25V\nCH07,a,CH08,CH09\n"

	m, err := Load(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if v, ok := m.Row(0).ExpectedVoltage(); !ok || v != 3.3 {
		t.Fatalf("row 0 expected = %v,%v want 3.3,true", v, ok)
	}
	if v, ok := m.Row(1).ExpectedVoltage(); !ok || v != 1.25 {
		t.Fatalf("row 1 expected = %v,%v want 1.25,true", v, ok)
	}
	if missing := m.MissingExpected(); len(missing) != 1 || missing[0] != 2 {
		t.Fatalf("MissingExpected = %v, want [2]", missing)
	}
}

func TestLoadReportsEveryMalformedRow(t *testing.T) {
	src := strings.Join([]string{
		"CH01,a,CH02,CH03",
		"CH0X,a,CH02,CH03",
		"CH05,a,CH06",
		"CH07,a,CH08,bogus",
	}, "\n")

	m, err := Load(strings.NewReader(src))
	if err == nil {
		t.Fatalf("expected error, got map with %d rows", m.Len())
	}
	if m != nil {
		t.Fatalf("no map should be returned on malformed input")
	}

	var merr *multierror.Error
	if !errors.As(err, &merr) {
		t.Fatalf("expected *multierror.Error, got %T", err)
	}
	if len(merr.Errors) != 3 {
		t.Fatalf("got %d errors, want 3: %v", len(merr.Errors), err)
	}

	var rowErr *MalformedRowError
	if !errors.As(merr.Errors[0], &rowErr) {
		t.Fatalf("expected *MalformedRowError, got %T", merr.Errors[0])
	}
	if rowErr.Line != 2 || rowErr.Column != ColPin44 {
		t.Fatalf("first error at line %d column %d, want line 2 column 0", rowErr.Line, rowErr.Column)
	}

	if !errors.As(merr.Errors[1], &rowErr) || !errors.Is(rowErr, ErrShortRow) {
		t.Fatalf("second error should be a short row, got %v", merr.Errors[1])
	}
}

func TestLoadRejectsPinOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		src  string
		col  int
	}{
		{"backplane join as wire", "CH12H,J1,CH914H,CH03H\n", ColPin37A},
		{"sense relay as wire", "CH12H,J1,CH07H,CH911H\n", ColPin37B},
		{"pin44 past module", "CH97H,J1,CH07H,CH03H\n", ColPin44},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Load(strings.NewReader(tt.src))
			if err == nil {
				t.Fatalf("expected error, got map with %d rows", m.Len())
			}
			var rowErr *MalformedRowError
			if !errors.As(err, &rowErr) {
				t.Fatalf("expected *MalformedRowError, got %T: %v", err, err)
			}
			if rowErr.Column != tt.col || !errors.Is(rowErr, ErrPinRange) {
				t.Fatalf("error = %v (column %d), want pin range error in column %d", rowErr, rowErr.Column, tt.col)
			}
		})
	}

	if _, err := Load(strings.NewReader("CH96H,J1,CH96H,CH01H\n")); err != nil {
		t.Fatalf("pin 96 must be accepted: %v", err)
	}
}

func TestWires37(t *testing.T) {
	m := New([]Row{
		{Pin44: 1, Pin37A: 10, Pin37B: 11},
		{Pin44: 2, Pin37A: 12, Pin37B: 13},
	})

	got := m.Wires37()
	want := []int{10, 11, 12, 13}
	if len(got) != len(want) {
		t.Fatalf("Wires37 = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Wires37 = %v, want %v", got, want)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channel_mapping.csv")
	if err := os.WriteFile(path, []byte("CH21,a,CH31,CH32\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile returned error: %v", err)
	}
	if m.Len() != 1 || m.Row(0).Pin44 != 21 {
		t.Fatalf("unexpected map contents: %+v", m.Rows())
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
