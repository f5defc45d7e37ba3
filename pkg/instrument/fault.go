package instrument

import (
	"fmt"
	"math"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// FaultLexer tokenizes one printed error-queue entry. TSP prints multiple
// return values separated by tabs and numbers in exponent notation, e.g.
//
//	-3.50000e+02	Queue overflow	0.00000e+00	1.00000e+00
var FaultLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Number", Pattern: `[-+]?(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][-+]?[0-9]+)?`},
	{Name: "Tab", Pattern: `\t`},
	{Name: "Text", Pattern: `[^\t\r\n]+`},
})

type faultEntry struct {
	Code     float64  `@Number`
	Message  string   `( Tab @( Number | Text )*`
	Severity *float64 `  ( Tab @Number`
	Node     *float64 `    ( Tab @Number )? )? )?`
}

var faultParser = participle.MustBuild[faultEntry](
	participle.Lexer(FaultLexer),
)

// ParseFault decodes the response of print(errorqueue.next()).
func ParseFault(s string) (Fault, error) {
	s = strings.TrimRight(s, "\r\n")
	e, err := faultParser.ParseString("", s)
	if err != nil {
		return Fault{}, fmt.Errorf("invalid error-queue entry: %w", err)
	}

	f := Fault{
		Code:    int(math.Round(e.Code)),
		Message: strings.TrimSpace(e.Message),
	}
	if e.Severity != nil {
		f.Severity = int(math.Round(*e.Severity))
	}
	if e.Node != nil {
		f.Node = int(math.Round(*e.Node))
	}
	return f, nil
}
