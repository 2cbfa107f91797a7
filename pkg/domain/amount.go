package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Amount is a canonical decimal string. The zero value is not a valid
// amount; use ParseAmount or AmountFromInt64.
type Amount string

var reDecimal = regexp.MustCompile(`^([+-]?)(\d+)(?:\.(\d+))?$`)

type AmountError struct {
	Raw    string
	Reason string
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("amount %q invalid: %s", e.Raw, e.Reason)
}

// ParseAmount validates raw and returns its canonical form: no leading
// integer zeros, no trailing fractional zeros, no plus sign, no negative zero.
func ParseAmount(raw string) (Amount, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", &AmountError{Raw: raw, Reason: "empty value"}
	}
	m := reDecimal.FindStringSubmatch(s)
	if m == nil {
		return "", &AmountError{Raw: raw, Reason: `must be a decimal like "120" or "120.50"`}
	}
	sign, intPart, fracPart := m[1], m[2], m[3]

	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}
	fracPart = strings.TrimRight(fracPart, "0")

	if intPart == "0" && fracPart == "" {
		return "0", nil
	}
	var b strings.Builder
	if sign == "-" {
		b.WriteString("-")
	}
	b.WriteString(intPart)
	if fracPart != "" {
		b.WriteString(".")
		b.WriteString(fracPart)
	}
	return Amount(b.String()), nil
}

// MustParseAmount is ParseAmount for literals known to be valid.
func MustParseAmount(raw string) Amount {
	a, err := ParseAmount(raw)
	if err != nil {
		panic(err)
	}
	return a
}

func AmountFromInt64(n int64) Amount {
	return Amount(strconv.FormatInt(n, 10))
}

func (a Amount) String() string { return string(a) }

// Valid reports whether a is already in canonical form.
func (a Amount) Valid() bool {
	c, err := ParseAmount(string(a))
	return err == nil && c == a
}

// Equal compares canonical forms, so "100" equals "100.00".
func (a Amount) Equal(b Amount) bool {
	ca, errA := ParseAmount(string(a))
	cb, errB := ParseAmount(string(b))
	if errA != nil || errB != nil {
		return false
	}
	return ca == cb
}

// Attributes is the private payload a party seals and later reveals.
type Attributes struct {
	Amount Amount `json:"amount"`
}

func NewAttributes(raw string) (Attributes, error) {
	a, err := ParseAmount(raw)
	if err != nil {
		return Attributes{}, err
	}
	return Attributes{Amount: a}, nil
}

// Canonical returns a copy with the amount in canonical form.
func (a Attributes) Canonical() (Attributes, error) {
	c, err := ParseAmount(string(a.Amount))
	if err != nil {
		return Attributes{}, err
	}
	return Attributes{Amount: c}, nil
}

func (a Attributes) Equal(b Attributes) bool {
	return a.Amount.Equal(b.Amount)
}
