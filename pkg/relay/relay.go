// Package relay routes module-local channels through the mainframe's relay
// matrix.
//
// # Overview
//
// The mainframe addresses every relay globally as module*1000 + channel.
// A Router turns (module, channels...) into one batched channel.close or
// channel.open command and remembers which relays it closed, so a sweep can
// always put the matrix back with OpenAll no matter how it ended.
package relay

import (
	"fmt"
	"sort"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/OpenTraceLab/vacfeed/pkg/instrument"
)

// Modules of the feedthrough fixture.
const (
	Module37 = 1
	Module44 = 2

	// SenseChannel connects a module's common bus to the DMM input.
	SenseChannel = 911

	// MaxChannel is the last local channel of a fully expanded module.
	MaxChannel = 96
)

// Address returns the global channel address of a module-local channel.
func Address(module, channel int) int {
	return module*1000 + channel
}

// Split is the inverse of Address.
func Split(addr int) (module, channel int) {
	return addr / 1000, addr % 1000
}

// Router issues relay commands and tracks the relays it closed.
type Router struct {
	link   instrument.Sender
	logger log.Logger
	closed map[int]bool
}

// NewRouter returns a Router sending through l.
func NewRouter(l instrument.Sender, logger log.Logger) *Router {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Router{link: l, logger: logger, closed: make(map[int]bool)}
}

// Close closes channels of module in a single command.
func (r *Router) Close(module int, channels ...int) error {
	addrs, err := addresses(module, channels)
	if err != nil {
		return err
	}
	cmd, err := instrument.ChannelClose(addrs...)
	if err != nil {
		return err
	}
	if err := r.link.Send(cmd); err != nil {
		return err
	}
	for _, a := range addrs {
		r.closed[a] = true
	}
	return nil
}

// Open opens channels of module in a single command.
func (r *Router) Open(module int, channels ...int) error {
	addrs, err := addresses(module, channels)
	if err != nil {
		return err
	}
	cmd, err := instrument.ChannelOpen(addrs...)
	if err != nil {
		return err
	}
	if err := r.link.Send(cmd); err != nil {
		return err
	}
	for _, a := range addrs {
		delete(r.closed, a)
	}
	return nil
}

// Closed returns the global addresses this router has closed and not yet
// opened, in ascending order.
func (r *Router) Closed() []int {
	out := make([]int, 0, len(r.closed))
	for a := range r.closed {
		out = append(out, a)
	}
	sort.Ints(out)
	return out
}

// OpenAll opens every relay the router still holds closed in one command.
// It is a no-op when nothing is closed.
func (r *Router) OpenAll() error {
	addrs := r.Closed()
	if len(addrs) == 0 {
		return nil
	}
	cmd, err := instrument.ChannelOpen(addrs...)
	if err != nil {
		return err
	}
	level.Debug(r.logger).Log("msg", "releasing relays", "count", len(addrs))
	if err := r.link.Send(cmd); err != nil {
		return err
	}
	r.closed = make(map[int]bool)
	return nil
}

// addresses converts channels to global addresses, dropping repeats so a
// redundant list still produces a valid command. Only the wiring channels
// 1..MaxChannel and the sense channel may be switched; the backplane joins
// above them belong to the session configuration.
func addresses(module int, channels []int) ([]int, error) {
	if module != Module37 && module != Module44 {
		return nil, fmt.Errorf("relay: unknown module %d", module)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("relay: no channels given for module %d", module)
	}
	seen := make(map[int]bool, len(channels))
	out := make([]int, 0, len(channels))
	for _, ch := range channels {
		if ch < 1 || (ch > MaxChannel && ch != SenseChannel) {
			return nil, fmt.Errorf("relay: channel %d out of range on module %d", ch, module)
		}
		a := Address(module, ch)
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out, nil
}
