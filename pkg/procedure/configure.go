package procedure

import (
	"github.com/OpenTraceLab/vacfeed/pkg/instrument"
	"github.com/OpenTraceLab/vacfeed/pkg/relay"
)

// Backplane relays joining the two halves of each module so it behaves as
// a single 96-channel device.
var (
	backplane37 = []int{relay.Address(relay.Module37, 913), relay.Address(relay.Module37, 923)}
	backplane44 = []int{relay.Address(relay.Module44, 914), relay.Address(relay.Module44, 924)}
)

// Configure resets the mainframe and applies the session setup every
// procedure starts from. Switching is break-before-make, the backplanes
// are joined and the DMM is a filtered two-wire DC voltmeter on the given
// range.
func Configure(l instrument.Sender, s Settings, dmmRange float64) error {
	rule, err := instrument.SetConnectRule(instrument.BreakBeforeMake)
	if err != nil {
		return err
	}
	join37, err := instrument.ChannelClose(backplane37...)
	if err != nil {
		return err
	}
	join44, err := instrument.ChannelClose(backplane44...)
	if err != nil {
		return err
	}
	filter, err := instrument.DMMFilter(s.FilterCount)
	if err != nil {
		return err
	}
	fn, err := instrument.DMMFunction(instrument.DCVolts)
	if err != nil {
		return err
	}
	rng, err := instrument.DMMRange(dmmRange)
	if err != nil {
		return err
	}

	// DMM attributes are kept per function, so the function goes first.
	cmds := []string{instrument.Reset, rule, join37, join44, fn, rng, instrument.DMMConnect(), instrument.DMMAutoDelay()}
	cmds = append(cmds, filter...)
	cmds = append(cmds, instrument.ErrorQueueClear, instrument.BeeperEnable(s.Beeper))
	for _, cmd := range cmds {
		if err := l.Send(cmd); err != nil {
			return err
		}
	}
	return nil
}
