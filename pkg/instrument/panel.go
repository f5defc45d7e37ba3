package instrument

import (
	"strings"
	"time"
)

// Sender is the part of a Link the front panel needs.
type Sender interface {
	Send(cmd string) error
}

// Tone is one note of a beeper sequence.
type Tone struct {
	Duration  time.Duration
	Frequency float64
}

// Tone sequences used for operator feedback.
var (
	ErrorTones = []Tone{
		{200 * time.Millisecond, 3000},
		{200 * time.Millisecond, 2600},
		{200 * time.Millisecond, 2200},
	}
	SuccessTones = []Tone{
		{600 * time.Millisecond, 2600},
		{600 * time.Millisecond, 2800},
		{600 * time.Millisecond, 3000},
	}
)

// Panel drives the mainframe's two-line display and beeper.
type Panel struct {
	link Sender
}

// NewPanel returns a Panel sending through l.
func NewPanel(l Sender) *Panel {
	return &Panel{link: l}
}

// Show clears the display and writes title on the top line and detail on
// the bottom line. The bottom line has no room for verdict words, so
// "Error" and "OK" are shortened to "X" and "V" there.
func (p *Panel) Show(title, detail string) error {
	return p.show(title, detail, Normal)
}

// Alert is Show with blinking text.
func (p *Panel) Alert(title, detail string) error {
	return p.show(title, detail, Blink)
}

func (p *Panel) show(title, detail string, attr DisplayAttr) error {
	detail = strings.NewReplacer("Error", "X", "OK", "V").Replace(detail)

	cmds := []string{DisplayClear}
	for row, text := range []string{title, detail} {
		width := DisplayTopWidth
		if row == 1 {
			width = DisplayBottomWidth
		}
		cur, err := DisplayCursor(row+1, 1)
		if err != nil {
			return err
		}
		cmds = append(cmds, cur, DisplayText(PanelText(text, width), attr))
	}
	return p.sendAll(cmds)
}

// ErrorTone plays the descending error sequence.
func (p *Panel) ErrorTone() error {
	return p.play(ErrorTones)
}

// SuccessTone plays the ascending success sequence.
func (p *Panel) SuccessTone() error {
	return p.play(SuccessTones)
}

// EnableBeeper switches the beeper on or off.
func (p *Panel) EnableBeeper(on bool) error {
	return p.link.Send(BeeperEnable(on))
}

func (p *Panel) play(tones []Tone) error {
	cmds := make([]string, 0, len(tones))
	for _, t := range tones {
		cmd, err := Beep(t.Duration, t.Frequency)
		if err != nil {
			return err
		}
		cmds = append(cmds, cmd)
	}
	return p.sendAll(cmds)
}

func (p *Panel) sendAll(cmds []string) error {
	for _, cmd := range cmds {
		if err := p.link.Send(cmd); err != nil {
			return err
		}
	}
	return nil
}

// PanelText cuts s to a display line of the given width.
func PanelText(s string, width int) string {
	r := []rune(s)
	if len(r) > width {
		r = r[:width]
	}
	return string(r)
}
