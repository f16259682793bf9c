// Package quarter models fiscal quarters as ordered (year, number) pairs.
package quarter

import (
	"errors"
	"fmt"
	"iter"
	"strconv"
	"time"
)

// ErrInvalidQuarter is returned when a quarter token cannot be parsed or is out of range
var ErrInvalidQuarter = errors.New("invalid quarter")

// Quarter is a fiscal quarter
// ⭐ SSOT: quarter ordering is by (Year, Number) integers, never by the string form
type Quarter struct {
	Year   int
	Number int // 1..4
}

// New builds a validated quarter
func New(year, number int) (Quarter, error) {
	q := Quarter{Year: year, Number: number}
	if !q.Valid() {
		return Quarter{}, fmt.Errorf("%w: year=%d number=%d", ErrInvalidQuarter, year, number)
	}
	return q, nil
}

// MustParse is Parse for constants and tests
func MustParse(s string) Quarter {
	q, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return q
}

// Parse reads "{year}{number}", e.g. "20164". The last digit is the quarter number.
// Only the canonical form is accepted: ASCII digits without sign or leading zero.
func Parse(s string) (Quarter, error) {
	if len(s) < 2 || s[0] == '0' {
		return Quarter{}, fmt.Errorf("%w: %q", ErrInvalidQuarter, s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return Quarter{}, fmt.Errorf("%w: %q", ErrInvalidQuarter, s)
		}
	}

	year, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return Quarter{}, fmt.Errorf("%w: %q", ErrInvalidQuarter, s)
	}
	number, err := strconv.Atoi(s[len(s)-1:])
	if err != nil {
		return Quarter{}, fmt.Errorf("%w: %q", ErrInvalidQuarter, s)
	}

	q := Quarter{Year: year, Number: number}
	if !q.Valid() {
		return Quarter{}, fmt.Errorf("%w: %q", ErrInvalidQuarter, s)
	}
	return q, nil
}

// Valid reports whether the year is positive and the number is 1..4
func (q Quarter) Valid() bool {
	return q.Year > 0 && q.Number >= 1 && q.Number <= 4
}

// IsZero reports whether q is the zero value
func (q Quarter) IsZero() bool {
	return q.Year == 0 && q.Number == 0
}

// String returns the canonical token
func (q Quarter) String() string {
	return strconv.Itoa(q.Year) + strconv.Itoa(q.Number)
}

// Compare returns -1, 0 or +1
func Compare(a, b Quarter) int {
	switch {
	case a.Year < b.Year:
		return -1
	case a.Year > b.Year:
		return 1
	case a.Number < b.Number:
		return -1
	case a.Number > b.Number:
		return 1
	}
	return 0
}

// Before reports whether q is strictly earlier than other
func (q Quarter) Before(other Quarter) bool {
	return Compare(q, other) < 0
}

// After reports whether q is strictly later than other
func (q Quarter) After(other Quarter) bool {
	return Compare(q, other) > 0
}

// Next returns the following quarter
func (q Quarter) Next() Quarter {
	if q.Number >= 4 {
		return Quarter{Year: q.Year + 1, Number: 1}
	}
	return Quarter{Year: q.Year, Number: q.Number + 1}
}

// Prev returns the preceding quarter
func (q Quarter) Prev() Quarter {
	if q.Number <= 1 {
		return Quarter{Year: q.Year - 1, Number: 4}
	}
	return Quarter{Year: q.Year, Number: q.Number - 1}
}

// Sequence yields quarters from start (inclusive) up to end (exclusive).
// The sequence is restartable; start >= end yields nothing.
func Sequence(start, end Quarter) iter.Seq[Quarter] {
	return func(yield func(Quarter) bool) {
		for q := start; q.Before(end); q = q.Next() {
			if !yield(q) {
				return
			}
		}
	}
}

// Between collects Sequence(start, end)
func Between(start, end Quarter) []Quarter {
	var out []Quarter
	for q := range Sequence(start, end) {
		out = append(out, q)
	}
	return out
}

// Count returns the number of quarters in [start, end)
func Count(start, end Quarter) int {
	n := (end.Year-start.Year)*4 + (end.Number - start.Number)
	if n < 0 {
		return 0
	}
	return n
}

// EarningsDeadline is the statutory filing deadline of q, after which a post-report price is reliable.
// Q1 May 15, Q2 Aug 14, Q3 Nov 14, Q4 Mar 31 of the following year.
func EarningsDeadline(q Quarter) time.Time {
	switch q.Number {
	case 1:
		return time.Date(q.Year, time.May, 15, 0, 0, 0, 0, time.UTC)
	case 2:
		return time.Date(q.Year, time.August, 14, 0, 0, 0, 0, time.UTC)
	case 3:
		return time.Date(q.Year, time.November, 14, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(q.Year+1, time.March, 31, 0, 0, 0, 0, time.UTC)
	}
}

// MarshalText implements encoding.TextMarshaler
func (q Quarter) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (q *Quarter) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
