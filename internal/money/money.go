// Package money parses user-entered amounts and quantities into decimals.
//
// Inputs come from French forms and spreadsheets: "1 234,50", "12,5", "3/4" typed by mistake as a
// separator, non-breaking spaces from copy/paste. Parse is strict about what remains after
// cleanup and reports failures; callers that want the lenient legacy behaviour use OrZero.
package money

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

var (
	ErrEmpty    = errors.New("money: empty input")
	ErrFormat   = errors.New("money: not a plain decimal")
	ErrTooLarge = errors.New("money: too many digits")
)

// Storage columns are decimal(14,2) and decimal(14,3).
const (
	maxIntDigits  = 12
	maxFracDigits = 6
)

// plain matches a cleaned-up number: optional minus, digits, optional fraction. Exponents are
// refused.
var plain = regexp.MustCompile(`^-?(\d+(\.\d*)?|\.\d+)$`)

// ParseError reports an input that could not be read as a number.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("money: cannot parse %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var cleaner = strings.NewReplacer(
	" ", "",
	"\u00a0", "",
	"\u202f", "",
	"\t", "",
	"/", "",
	"€", "",
	",", ".",
)

// Parse reads a locale-formatted decimal string.
func Parse(input string) (decimal.Decimal, error) {
	s := cleaner.Replace(strings.TrimSpace(input))
	if s == "" {
		return decimal.Zero, ErrEmpty
	}
	if !plain.MatchString(s) {
		return decimal.Zero, &ParseError{Input: input, Err: ErrFormat}
	}
	intPart, frac, _ := strings.Cut(strings.TrimPrefix(s, "-"), ".")
	if len(strings.TrimLeft(intPart, "0")) > maxIntDigits || len(frac) > maxFracDigits {
		return decimal.Zero, &ParseError{Input: input, Err: ErrTooLarge}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ParseError{Input: input, Err: err}
	}
	return d, nil
}

// OrZero parses input and falls back to zero on any failure.
func OrZero(input string) decimal.Decimal {
	d, err := Parse(input)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Input accepts either a JSON number or a JSON string in request bodies.
// The raw text is kept so the handler decides between Parse and OrZero.
type Input struct {
	raw string
	set bool
}

func NewInput(raw string) Input { return Input{raw: raw, set: true} }

func (in *Input) UnmarshalJSON(b []byte) error {
	in.set = true
	if string(b) == "null" {
		in.raw = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		in.raw = s
		return nil
	}
	in.raw = string(b)
	return nil
}

func (in Input) MarshalJSON() ([]byte, error) {
	return json.Marshal(in.raw)
}

// Set reports whether the field was present in the payload.
func (in Input) Set() bool { return in.set }

func (in Input) String() string { return in.raw }

func (in Input) Parse() (decimal.Decimal, error) { return Parse(in.raw) }

func (in Input) OrZero() decimal.Decimal { return OrZero(in.raw) }
