package instrument

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Fixed TSP commands.
const (
	Reset           = "reset()"
	ErrorQueueClear = "errorqueue.clear()"
	ErrorQueueCount = "print(errorqueue.count)"
	ErrorQueueNext  = "print(errorqueue.next())"
	Measure         = "print(dmm.measure())"
	DisplayClear    = "display.clear()"
)

// Limits of the 3706A mainframe and its front panel.
const (
	MaxSlot            = 6
	MaxLocalChannel    = 999
	DisplayRows        = 2
	DisplayTopWidth    = 20
	DisplayBottomWidth = 32
)

// ConnectRule controls relay switching order.
type ConnectRule string

const (
	BreakBeforeMake ConnectRule = "channel.BREAK_BEFORE_MAKE"
	MakeBeforeBreak ConnectRule = "channel.MAKE_BEFORE_BREAK"
	Off             ConnectRule = "channel.OFF"
)

// SetConnectRule sets channel.connectrule.
func SetConnectRule(r ConnectRule) (string, error) {
	switch r {
	case BreakBeforeMake, MakeBeforeBreak, Off:
		return "channel.connectrule = " + string(r), nil
	}
	return "", fmt.Errorf("unknown connect rule %q", string(r))
}

// ChannelClose closes the given global channel addresses in one command.
func ChannelClose(addrs ...int) (string, error) {
	list, err := channelList(addrs)
	if err != nil {
		return "", err
	}
	return `channel.close("` + list + `")`, nil
}

// ChannelOpen opens the given global channel addresses in one command.
func ChannelOpen(addrs ...int) (string, error) {
	list, err := channelList(addrs)
	if err != nil {
		return "", err
	}
	return `channel.open("` + list + `")`, nil
}

func channelList(addrs []int) (string, error) {
	if len(addrs) == 0 {
		return "", fmt.Errorf("empty channel list")
	}
	seen := make(map[int]bool, len(addrs))
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		slot, ch := a/1000, a%1000
		if slot < 1 || slot > MaxSlot || ch < 1 || ch > MaxLocalChannel {
			return "", fmt.Errorf("channel address %d out of range", a)
		}
		if seen[a] {
			return "", fmt.Errorf("channel address %d listed twice", a)
		}
		seen[a] = true
		parts = append(parts, strconv.Itoa(a))
	}
	return strings.Join(parts, ","), nil
}

// DMMFunc is a measurement function accepted by dmm.func.
type DMMFunc string

const (
	DCVolts     DMMFunc = "dcvolts"
	TwoWireOhms DMMFunc = "twowireohms"
)

// DMMFunction sets dmm.func.
func DMMFunction(f DMMFunc) (string, error) {
	switch f {
	case DCVolts, TwoWireOhms:
		return fmt.Sprintf("dmm.func = %q", string(f)), nil
	}
	return "", fmt.Errorf("unknown dmm function %q", string(f))
}

// DMMRange sets dmm.range.
func DMMRange(v float64) (string, error) {
	if !(v > 0) {
		return "", fmt.Errorf("dmm range must be positive, got %v", v)
	}
	return "dmm.range = " + formatNumber(v), nil
}

// DMMConnect selects the two-wire DMM connection.
func DMMConnect() string {
	return "dmm.connect = dmm.CONNECT_TWO_WIRE"
}

// DMMAutoDelay enables a single automatic settling delay per reading.
func DMMAutoDelay() string {
	return "dmm.autodelay = dmm.AUTODELAY_ONCE"
}

// DMMFilter configures a repeating average over count readings and
// enables it.
func DMMFilter(count int) ([]string, error) {
	if count < 1 || count > 100 {
		return nil, fmt.Errorf("filter count %d out of range 1..100", count)
	}
	return []string{
		"dmm.filter.type = dmm.FILTER_REPEAT_AVG",
		"dmm.filter.count = " + strconv.Itoa(count),
		"dmm.filter.enable = dmm.ON",
	}, nil
}

// DisplayAttr is a front-panel text attribute.
type DisplayAttr string

const (
	Normal DisplayAttr = "$N"
	Blink  DisplayAttr = "$B"
)

// DisplayCursor positions the front-panel cursor.
func DisplayCursor(row, col int) (string, error) {
	if row < 1 || row > DisplayRows {
		return "", fmt.Errorf("display row %d out of range", row)
	}
	width := DisplayTopWidth
	if row == 2 {
		width = DisplayBottomWidth
	}
	if col < 1 || col > width {
		return "", fmt.Errorf("display column %d out of range", col)
	}
	return fmt.Sprintf("display.setcursor(%d, %d)", row, col), nil
}

// DisplayText writes text at the cursor. Operator text is escaped so it
// can neither terminate the string nor inject attribute codes.
func DisplayText(text string, attr DisplayAttr) string {
	return `display.settext("` + string(attr) + escapeDisplay(text) + `")`
}

func escapeDisplay(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == '"':
			b.WriteString(`\"`)
		case r == '$':
			b.WriteString("$$")
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// BeeperEnable sets beeper.enable.
func BeeperEnable(on bool) string {
	if on {
		return "beeper.enable = beeper.ON"
	}
	return "beeper.enable = beeper.OFF"
}

// Beep sounds the beeper for d at hz.
func Beep(d time.Duration, hz float64) (string, error) {
	if d <= 0 || d > 100*time.Second {
		return "", fmt.Errorf("beep duration %s out of range", d)
	}
	if hz < 20 || hz > 20000 {
		return "", fmt.Errorf("beep frequency %v out of range", hz)
	}
	return "beeper.beep(" + formatNumber(d.Seconds()) + ", " + formatNumber(hz) + ")", nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
