// Package chanmap loads the channel map that ties each pin of the 44-pin
// feedthrough connector to its two continuity wires on the 37-pin side.
//
// The map is read once from a delimited text file and is immutable
// afterwards. Row order is significant: test procedures iterate and number
// their steps ("n of total") in file order. Duplicate rows are kept as-is
// and simply produce duplicate test iterations.
//
// Recognized columns (0-indexed):
//
//	0  pin on the 44-pin connector
//	2  first wire on the 37-pin connector
//	3  second wire on the 37-pin connector
//	5  expected reference voltage (pinout mode only, optional)
//
// A row whose first column is empty is a separator and is skipped. Pins
// must lie within 1..96.
package chanmap

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	multierror "github.com/hashicorp/go-multierror"
)

// Column indices of the mapping sheet.
const (
	ColPin44    = 0
	ColPin37A   = 2
	ColPin37B   = 3
	ColExpected = 5
)

// MaxPin is the highest channel a mapping row may name on either connector.
const MaxPin = 96

// Row is a single 44-pin connector position and its two 37-pin wires.
type Row struct {
	Pin44  int
	Pin37A int
	Pin37B int

	// Expected is the pinout reference voltage. Nil when column 5 is
	// absent or empty.
	Expected *float64
}

// ExpectedVoltage returns the pinout reference voltage and whether the row
// carries one.
func (r Row) ExpectedVoltage() (float64, bool) {
	if r.Expected == nil {
		return 0, false
	}
	return *r.Expected, true
}

// Wires returns the two 37-pin wires of the row in A, B order.
func (r Row) Wires() [2]int {
	return [2]int{r.Pin37A, r.Pin37B}
}

func (r Row) String() string {
	if v, ok := r.ExpectedVoltage(); ok {
		return fmt.Sprintf("CH%02dH -> CH%02dH,CH%02dH (%.2fV)", r.Pin44, r.Pin37A, r.Pin37B, v)
	}
	return fmt.Sprintf("CH%02dH -> CH%02dH,CH%02dH", r.Pin44, r.Pin37A, r.Pin37B)
}

// Map is the ordered, read-only channel map.
type Map struct {
	rows []Row
}

// New builds a Map from already parsed rows. The slice is copied.
func New(rows []Row) *Map {
	m := &Map{rows: make([]Row, len(rows))}
	copy(m.rows, rows)
	return m
}

// Len returns the number of rows.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rows)
}

// Rows returns a copy of the rows in file order.
func (m *Map) Rows() []Row {
	out := make([]Row, len(m.rows))
	copy(out, m.rows)
	return out
}

// Row returns row i.
func (m *Map) Row(i int) Row {
	return m.rows[i]
}

// Wires37 returns every 37-pin wire of the map, A then B for each row, in
// row order.
func (m *Map) Wires37() []int {
	out := make([]int, 0, 2*len(m.rows))
	for _, r := range m.rows {
		out = append(out, r.Pin37A, r.Pin37B)
	}
	return out
}

// MissingExpected returns the indices of rows without an expected voltage.
func (m *Map) MissingExpected() []int {
	var idx []int
	for i, r := range m.rows {
		if r.Expected == nil {
			idx = append(idx, i)
		}
	}
	return idx
}

// MalformedRowError reports a mapping row whose cell could not be parsed.
type MalformedRowError struct {
	Line   int
	Column int
	Text   string
	Err    error
}

// Error implements the Golang error interface.
func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("chanmap: line %d column %d: cannot parse %q: %v", e.Line, e.Column, e.Text, e.Err)
}

func (e *MalformedRowError) Unwrap() error {
	return e.Err
}

// ErrShortRow is wrapped by MalformedRowError when a row has fewer columns
// than the two 37-pin wires require.
var ErrShortRow = errors.New("row has too few columns")

// ErrPinRange is wrapped by MalformedRowError when a pin lies outside
// 1..MaxPin.
var ErrPinRange = fmt.Errorf("pin outside 1..%d", MaxPin)

// Load parses a channel map. Every malformed row is reported, not only the
// first one; the returned error then wraps one *MalformedRowError per bad
// cell and no map is returned.
func Load(r io.Reader) (*Map, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		rows []Row
		errs error
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chanmap: %w", err)
		}
		if len(rec) == 0 || strings.TrimSpace(rec[ColPin44]) == "" {
			continue
		}
		line, _ := cr.FieldPos(0)

		row, err := parseRow(line, rec)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		rows = append(rows, row)
	}
	if errs != nil {
		return nil, errs
	}
	return &Map{rows: rows}, nil
}

// LoadFile opens path and parses it with Load.
func LoadFile(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("chanmap: %w", err)
	}
	defer f.Close()

	m, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func parseRow(line int, rec []string) (Row, error) {
	if len(rec) <= ColPin37B {
		return Row{}, &MalformedRowError{
			Line:   line,
			Column: len(rec),
			Text:   strings.Join(rec, ","),
			Err:    ErrShortRow,
		}
	}

	var (
		row  Row
		errs error
	)
	for _, f := range []struct {
		col int
		dst *int
	}{
		{ColPin44, &row.Pin44},
		{ColPin37A, &row.Pin37A},
		{ColPin37B, &row.Pin37B},
	} {
		n, err := ParseLabel(rec[f.col])
		if err != nil {
			errs = multierror.Append(errs, &MalformedRowError{Line: line, Column: f.col, Text: rec[f.col], Err: err})
			continue
		}
		if n > MaxPin {
			errs = multierror.Append(errs, &MalformedRowError{Line: line, Column: f.col, Text: rec[f.col], Err: ErrPinRange})
			continue
		}
		*f.dst = n
	}

	if len(rec) > ColExpected && strings.TrimSpace(rec[ColExpected]) != "" {
		v, err := ParseVoltage(rec[ColExpected])
		if err != nil {
			errs = multierror.Append(errs, &MalformedRowError{Line: line, Column: ColExpected, Text: rec[ColExpected], Err: err})
		} else {
			row.Expected = &v
		}
	}

	return row, errs
}
