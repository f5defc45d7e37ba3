package instrument

import (
	"errors"
	"fmt"
)

// ErrClosed is wrapped by LinkError once the session has been released.
var ErrClosed = errors.New("instrument: session closed")

// LinkError is returned when the transport to the mainframe fails: the
// connection is down, a write failed or a response timed out.
type LinkError struct {
	Op  string
	Err error
}

// Error implements the Golang error interface.
func (e *LinkError) Error() string {
	return fmt.Sprintf("instrument: %s: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// ProtocolError is returned when a response arrived but could not be read
// as the scalar the caller asked for.
type ProtocolError struct {
	Command  string
	Response string
	Err      error
}

// Error implements the Golang error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("instrument: unexpected response %q to %q: %v", e.Response, e.Command, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Fault is an entry drained from the instrument's own error queue.
type Fault struct {
	Code     int
	Message  string
	Severity int
	Node     int
}

// Error implements the Golang error interface.
func (f Fault) Error() string {
	return fmt.Sprintf("instrument fault %d: %s", f.Code, f.Message)
}

// Well-known error-queue codes.
const (
	FaultQueueOverflow = -350
	FaultSyntax        = -285
)
