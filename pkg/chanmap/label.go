package chanmap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// LabelLexer tokenizes channel labels as they appear in mapping sheets:
// "CH12", "Ch07", "H03", "12H" or "CH12H".
var LabelLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t]+`},
	{Name: "Prefix", Pattern: `(?i)CH|C|H`},
	{Name: "Number", Pattern: `[0-9]+`},
})

// label is the grammar of a single channel label. Channel letters may lead
// or trail the number; anything else is rejected by the lexer.
type label struct {
	Lead   []string `parser:"@Prefix*"`
	Number string   `parser:"@Number"`
	Trail  []string `parser:"@Prefix*"`
}

var labelParser = participle.MustBuild[label](
	participle.Lexer(LabelLexer),
	participle.Elide("Whitespace"),
)

// ParseLabel strips the channel letters from s and returns the channel
// number. The number is always read as base 10, so "07" is channel 7.
func ParseLabel(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty channel label")
	}
	l, err := labelParser.ParseString("", s)
	if err != nil {
		return 0, fmt.Errorf("invalid channel label %q: %w", s, err)
	}
	n, err := strconv.ParseInt(l.Number, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid channel number in %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("channel number in %q must be positive", s)
	}
	return int(n), nil
}

// ParseVoltage reads an expected-voltage cell such as "3.3", "3.3V" or
// "-1.2 v".
func ParseVoltage(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimSuffix(s, "V"), "v")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid voltage %q: %w", s, err)
	}
	return v, nil
}
