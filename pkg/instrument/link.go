package instrument

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// MaxDrain bounds a single DrainErrors call. The 3706A queue holds far
// fewer entries; a count that never reaches zero means the instrument is
// misbehaving.
const MaxDrain = 256

// Transport moves newline-terminated command lines to the mainframe and
// reads single-line responses back.
type Transport interface {
	Write(line string) error
	ReadLine() (string, error)
	Close() error
}

// Link is the command channel the measurement code depends on.
type Link interface {
	// Send issues a command and does not wait for output.
	Send(cmd string) error
	// Query issues a command that prints exactly one line and returns it.
	Query(cmd string) (string, error)
	// DrainErrors empties the instrument's error queue, oldest first.
	DrainErrors() ([]Fault, error)
	// Close releases the session. Only the first call reaches the transport.
	Close() error
}

// Session is a Link over a Transport. It is not safe for concurrent use;
// one run owns one session.
type Session struct {
	transport Transport
	logger    log.Logger

	closeOnce sync.Once
	closed    bool
	closeErr  error
}

// NewSession wraps an open transport.
func NewSession(t Transport, logger log.Logger) *Session {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Session{transport: t, logger: logger}
}

// Send implements Link.
func (s *Session) Send(cmd string) error {
	if s.closed {
		return &LinkError{Op: "send", Err: ErrClosed}
	}
	level.Debug(s.logger).Log("msg", "send", "cmd", cmd)
	if err := s.transport.Write(cmd); err != nil {
		return &LinkError{Op: "send", Err: err}
	}
	return nil
}

// Query implements Link.
func (s *Session) Query(cmd string) (string, error) {
	if s.closed {
		return "", &LinkError{Op: "query", Err: ErrClosed}
	}
	level.Debug(s.logger).Log("msg", "query", "cmd", cmd)
	if err := s.transport.Write(cmd); err != nil {
		return "", &LinkError{Op: "query", Err: err}
	}
	line, err := s.transport.ReadLine()
	if err != nil {
		return "", &LinkError{Op: "query", Err: err}
	}
	line = strings.TrimRight(line, "\r\n")
	level.Debug(s.logger).Log("msg", "response", "cmd", cmd, "response", line)
	return line, nil
}

// DrainErrors implements Link. Each entry is logged at warn level.
func (s *Session) DrainErrors() ([]Fault, error) {
	var faults []Fault
	for i := 0; i < MaxDrain; i++ {
		n, err := QueryInt(s, ErrorQueueCount)
		if err != nil {
			return faults, err
		}
		if n <= 0 {
			return faults, nil
		}

		resp, err := s.Query(ErrorQueueNext)
		if err != nil {
			return faults, err
		}
		f, err := ParseFault(resp)
		if err != nil {
			return faults, &ProtocolError{Command: ErrorQueueNext, Response: resp, Err: err}
		}
		level.Warn(s.logger).Log("msg", "instrument fault", "code", f.Code, "message", f.Message, "severity", f.Severity, "node", f.Node)
		faults = append(faults, f)
	}
	return faults, fmt.Errorf("instrument: error queue still not empty after %d entries", MaxDrain)
}

// Close implements Link.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed = true
		level.Debug(s.logger).Log("msg", "closing session")
		if err := s.transport.Close(); err != nil {
			s.closeErr = &LinkError{Op: "close", Err: err}
		}
	})
	return s.closeErr
}

// QueryFloat issues cmd and parses the response as a float. TSP prints
// numbers as %e by default, which strconv handles.
func QueryFloat(l Link, cmd string) (float64, error) {
	resp, err := l.Query(cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(resp), 64)
	if err != nil {
		return 0, &ProtocolError{Command: cmd, Response: resp, Err: err}
	}
	return v, nil
}

// QueryInt issues cmd and parses the response as an integer. Integral
// values printed in exponent notation are accepted.
func QueryInt(l Link, cmd string) (int, error) {
	resp, err := l.Query(cmd)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(resp)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &ProtocolError{Command: cmd, Response: resp, Err: err}
	}
	if v != math.Trunc(v) || math.IsInf(v, 0) {
		return 0, &ProtocolError{Command: cmd, Response: resp, Err: fmt.Errorf("not an integer")}
	}
	return int(v), nil
}
