package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MinorUnitsPerMajor is the number of minor units (cents) in one currency unit.
const MinorUnitsPerMajor = 100

var (
	ErrAmountFormat    = errors.New("amount: not a decimal number")
	ErrAmountPrecision = errors.New("amount: more than two decimal places")
	ErrAmountOverflow  = errors.New("amount: out of range")
)

// Amount is a single-currency value in minor units. 25.50 is Amount(2550).
type Amount int64

// ParseAmount parses a decimal string such as "25.50", "25.5" or "50".
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, ErrAmountFormat
	}
	if hasDot && frac == "" {
		return 0, ErrAmountFormat
	}
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return 0, ErrAmountFormat
	}
	if len(frac) > 2 {
		return 0, ErrAmountPrecision
	}
	frac += strings.Repeat("0", 2-len(frac))

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w > (math.MaxInt64-99)/MinorUnitsPerMajor {
		return 0, ErrAmountOverflow
	}
	f, _ := strconv.ParseInt(frac, 10, 64)

	v := w*MinorUnitsPerMajor + f
	if neg {
		v = -v
	}
	return Amount(v), nil
}

// MustParseAmount is ParseAmount that panics; for constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(fmt.Sprintf("domain: parse amount %q: %v", s, err))
	}
	return a
}

// String renders the amount with exactly two decimals.
func (a Amount) String() string {
	sign := ""
	u := uint64(a)
	if a < 0 {
		sign = "-"
		u = uint64(-(a + 1)) + 1
	}
	return fmt.Sprintf("%s%d.%02d", sign, u/MinorUnitsPerMajor, u%MinorUnitsPerMajor)
}

// MarshalText renders the amount as a decimal string ("25.50").
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses a decimal string.
func (a *Amount) UnmarshalText(b []byte) error {
	v, err := ParseAmount(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// IsPositive reports whether a > 0.
func (a Amount) IsPositive() bool {
	return a > 0
}

// MinorUnits returns the raw minor-unit count.
func (a Amount) MinorUnits() int64 {
	return int64(a)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
