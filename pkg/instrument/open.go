package instrument

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Options selects and parameterizes a transport.
type Options struct {
	// Transport is one of "tcp", "usbtmc" or "sim".
	Transport string
	// Address is the host[:port] for tcp.
	Address   string
	Timeout   time.Duration
	VendorID  uint16
	ProductID uint16
	// Sim is used as the transport when Transport is "sim". A fresh
	// simulator is created when nil.
	Sim    *Sim
	Logger log.Logger
}

// Open connects to the mainframe and returns a session owning the
// transport.
func Open(ctx context.Context, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	var (
		t   Transport
		err error
	)
	switch InterfaceKind(opts.Transport) {
	case InterfaceKindTCP:
		if opts.Address == "" {
			return nil, fmt.Errorf("tcp transport needs an address")
		}
		t, err = DialTCP(ctx, opts.Address, opts.Timeout)
	case InterfaceKindUSBTMC:
		vid, pid := opts.VendorID, opts.ProductID
		if vid == 0 {
			vid = VendorIDKeithley
		}
		if pid == 0 {
			pid = ProductID3706A
		}
		t, err = OpenUSBTMC(vid, pid, opts.Timeout)
	case InterfaceKindSim:
		sim := opts.Sim
		if sim == nil {
			sim = NewSim()
		}
		t = sim
	default:
		return nil, fmt.Errorf("unknown transport %q (supported: tcp, usbtmc, sim)", opts.Transport)
	}
	if err != nil {
		return nil, &LinkError{Op: "open", Err: err}
	}

	level.Info(logger).Log("msg", "instrument session opened", "transport", opts.Transport, "address", opts.Address)
	return NewSession(t, logger), nil
}
