package instrument

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DefaultSimQueueCapacity matches the depth of the 3706A error queue.
const DefaultSimQueueCapacity = 100

var (
	errSimDown       = errors.New("sim: link down")
	errSimClosed     = errors.New("sim: transport closed")
	errSimNoResponse = errors.New("sim: read timeout, no output pending")
)

// MeasureHook answers dmm.measure() from the set of closed global channel
// addresses. Returning an error makes the simulated reading fail the way
// the instrument does: "nil" is printed and a fault is queued.
type MeasureHook func(closed map[int]bool) (float64, error)

// BeepEvent records one beeper.beep call.
type BeepEvent struct {
	Seconds   float64
	Frequency float64
}

// Sim is an in-memory mainframe implementing Transport. It interprets the
// TSP subset this module emits and is useful for unit tests and dry runs.
type Sim struct {
	OnMeasure     MeasureHook
	QueueCapacity int
	// Down makes every transport operation fail.
	Down bool

	closed       map[int]bool
	settings     map[string]string
	queue        []Fault
	pending      []string
	commands     []string
	beeps        []BeepEvent
	display      [DisplayRows]string
	cursorRow    int
	measurements int
	released     bool
	closeCalls   int
}

// NewSim returns a simulator in its power-on state.
func NewSim() *Sim {
	s := &Sim{}
	s.reset()
	return s
}

var (
	simChannelRe = regexp.MustCompile(`^channel\.(close|open)\("([^"]*)"\)$`)
	simAssignRe  = regexp.MustCompile(`^([a-z][a-z0-9_.]*)\s*=\s*(.+)$`)
	simBeepRe    = regexp.MustCompile(`^beeper\.beep\(([^,]+),\s*([^)]+)\)$`)
	simCursorRe  = regexp.MustCompile(`^display\.setcursor\((\d+),\s*(\d+)\)$`)
	simTextRe    = regexp.MustCompile(`^display\.settext\("(.*)"\)$`)
)

// Write implements Transport.
func (s *Sim) Write(line string) error {
	if s.Down {
		return errSimDown
	}
	if s.released {
		return errSimClosed
	}
	line = strings.TrimSpace(line)
	s.commands = append(s.commands, line)
	s.exec(line)
	return nil
}

// ReadLine implements Transport.
func (s *Sim) ReadLine() (string, error) {
	if s.Down {
		return "", errSimDown
	}
	if s.released {
		return "", errSimClosed
	}
	if len(s.pending) == 0 {
		return "", errSimNoResponse
	}
	line := s.pending[0]
	s.pending = s.pending[1:]
	return line, nil
}

// Close implements Transport.
func (s *Sim) Close() error {
	s.closeCalls++
	s.released = true
	return nil
}

func (s *Sim) exec(line string) {
	switch line {
	case Reset:
		s.reset()
		return
	case ErrorQueueClear:
		s.queue = nil
		return
	case ErrorQueueCount:
		s.print(float64(len(s.queue)))
		return
	case ErrorQueueNext:
		s.printNextFault()
		return
	case Measure:
		s.measure()
		return
	case DisplayClear:
		s.display = [DisplayRows]string{}
		s.cursorRow = 1
		return
	}

	if m := simChannelRe.FindStringSubmatch(line); m != nil {
		addrs, err := parseSimChannels(m[2])
		if err != nil {
			s.PushFault(Fault{Code: -203, Message: "Invalid channel list"})
			return
		}
		for _, a := range addrs {
			if m[1] == "close" {
				s.closed[a] = true
			} else {
				delete(s.closed, a)
			}
		}
		return
	}
	if m := simBeepRe.FindStringSubmatch(line); m != nil {
		d, err1 := strconv.ParseFloat(strings.TrimSpace(m[1]), 64)
		f, err2 := strconv.ParseFloat(strings.TrimSpace(m[2]), 64)
		if err1 != nil || err2 != nil {
			s.PushFault(Fault{Code: FaultSyntax, Message: "TSP Syntax error"})
			return
		}
		if s.settings["beeper.enable"] != "beeper.OFF" {
			s.beeps = append(s.beeps, BeepEvent{Seconds: d, Frequency: f})
		}
		return
	}
	if m := simCursorRe.FindStringSubmatch(line); m != nil {
		row, _ := strconv.Atoi(m[1])
		if row >= 1 && row <= DisplayRows {
			s.cursorRow = row
		}
		return
	}
	if m := simTextRe.FindStringSubmatch(line); m != nil {
		s.display[s.cursorRow-1] += unescapeDisplay(m[1])
		return
	}
	if m := simAssignRe.FindStringSubmatch(line); m != nil {
		s.settings[m[1]] = strings.TrimSpace(m[2])
		return
	}
	if strings.HasPrefix(line, "print(") {
		s.pending = append(s.pending, "nil")
	}
	s.PushFault(Fault{Code: FaultSyntax, Message: "TSP Syntax error at line 1: unexpected symbol near `" + line + "'"})
}

func (s *Sim) reset() {
	s.closed = make(map[int]bool)
	s.settings = map[string]string{"beeper.enable": "beeper.ON"}
	s.display = [DisplayRows]string{}
	s.cursorRow = 1
	s.pending = nil
}

func (s *Sim) measure() {
	s.measurements++
	if s.OnMeasure == nil {
		s.print(0)
		return
	}
	v, err := s.OnMeasure(s.closedCopy())
	if err != nil {
		s.pending = append(s.pending, "nil")
		s.PushFault(Fault{Code: -221, Message: err.Error(), Severity: 2, Node: 1})
		return
	}
	s.print(v)
}

func (s *Sim) print(v float64) {
	s.pending = append(s.pending, fmt.Sprintf("%.5e", v))
}

func (s *Sim) printNextFault() {
	if len(s.queue) == 0 {
		s.pending = append(s.pending, fmt.Sprintf("%.5e\tQueue Is Empty\t%.5e\t%.5e", 0.0, 0.0, 0.0))
		return
	}
	f := s.queue[0]
	s.queue = s.queue[1:]
	s.pending = append(s.pending, fmt.Sprintf("%.5e\t%s\t%.5e\t%.5e",
		float64(f.Code), f.Message, float64(f.Severity), float64(f.Node)))
}

// PushFault queues f. A full queue keeps its oldest entries and marks the
// newest slot as an overflow.
func (s *Sim) PushFault(f Fault) {
	capacity := s.QueueCapacity
	if capacity <= 0 {
		capacity = DefaultSimQueueCapacity
	}
	if len(s.queue) >= capacity {
		s.queue[capacity-1] = Fault{Code: FaultQueueOverflow, Message: "Queue overflow", Node: 1}
		return
	}
	s.queue = append(s.queue, f)
}

func (s *Sim) closedCopy() map[int]bool {
	out := make(map[int]bool, len(s.closed))
	for a := range s.closed {
		out[a] = true
	}
	return out
}

// Closed returns the closed global channel addresses in ascending order.
func (s *Sim) Closed() []int {
	out := make([]int, 0, len(s.closed))
	for a := range s.closed {
		out = append(out, a)
	}
	sort.Ints(out)
	return out
}

// IsClosed reports whether the relay at addr is closed.
func (s *Sim) IsClosed(addr int) bool {
	return s.closed[addr]
}

// Commands returns every line written so far.
func (s *Sim) Commands() []string {
	return append([]string(nil), s.commands...)
}

// Beeps returns the recorded beeper events.
func (s *Sim) Beeps() []BeepEvent {
	return append([]BeepEvent(nil), s.beeps...)
}

// Display returns the current front-panel text, one string per row.
func (s *Sim) Display() [DisplayRows]string {
	return s.display
}

// Setting returns the right-hand side of the last assignment to key.
func (s *Sim) Setting(key string) string {
	return s.settings[key]
}

// Measurements reports how many dmm.measure() calls were executed.
func (s *Sim) Measurements() int {
	return s.measurements
}

// QueueLen reports the number of faults waiting in the error queue.
func (s *Sim) QueueLen() int {
	return len(s.queue)
}

// CloseCalls reports how many times Close was called on the transport.
func (s *Sim) CloseCalls() int {
	return s.closeCalls
}

func parseSimChannels(list string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(list, ",") {
		a, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func unescapeDisplay(s string) string {
	s = strings.TrimPrefix(s, string(Normal))
	s = strings.TrimPrefix(s, string(Blink))
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c == '\\' || c == '$') && i+1 < len(s) {
			i++
			c = s[i]
		}
		b.WriteByte(c)
	}
	return b.String()
}
