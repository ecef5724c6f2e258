// Package birthday validates DD-MM-YYYY date strings and decides whether a
// parsed date falls on a given day of the year.
//
// Everything in this package is a pure function of its arguments: the
// current date is always passed in by the caller.
package birthday

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Layout is the only accepted date layout, written as a time.Parse layout.
const Layout = "02-01-2006"

// Example is a well-formed date used in prompts and corrective replies.
const Example = "25-12-1997"

var (
	// ErrFormat is returned when no DD-MM-YYYY token could be found.
	ErrFormat = errors.New("birthday: date must be in DD-MM-YYYY format")
	// ErrAmbiguous is returned when the input holds more than one candidate
	// date, or a run of digits and dashes that only partially matches.
	ErrAmbiguous = errors.New("birthday: ambiguous date in input")
	// ErrInvalidDate is returned for well-formed tokens that are not a
	// calendar date, such as 31-02-1997.
	ErrInvalidDate = errors.New("birthday: not a calendar date")
)

var (
	exactPattern = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)
	innerPattern = regexp.MustCompile(`\d{2}-\d{2}-\d{4}`)
	// runPattern matches maximal runs of ASCII digits joined by single dashes.
	runPattern = regexp.MustCompile(`\d+(?:-\d+)*`)
)

// Result is the outcome of Check.
type Result int

const (
	FormatInvalid Result = iota
	NotBirthdayToday
	IsBirthdayToday
)

func (r Result) String() string {
	switch r {
	case FormatInvalid:
		return "format_invalid"
	case NotBirthdayToday:
		return "not_birthday_today"
	case IsBirthdayToday:
		return "is_birthday_today"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Date is a day on the Gregorian calendar.
type Date struct {
	Day   int
	Month time.Month
	Year  int
}

// FromTime returns the calendar date of t in t's own location.
func FromTime(t time.Time) Date {
	year, month, day := t.Date()
	return Date{Day: day, Month: month, Year: year}
}

// Valid reports whether d names a real calendar day. Years before 1 are
// rejected.
func (d Date) Valid() bool {
	if d.Year < 1 || d.Month < time.January || d.Month > time.December || d.Day < 1 {
		return false
	}
	// time.Date normalises overflowing days into the next month.
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	return t.Day() == d.Day && t.Month() == d.Month
}

// SameDay reports whether d and other share day and month. Years are ignored.
func (d Date) SameDay(other Date) bool {
	return d.Day == other.Day && d.Month == other.Month
}

func (d Date) String() string {
	return fmt.Sprintf("%02d-%02d-%04d", d.Day, int(d.Month), d.Year)
}

// Parse parses a token that must be exactly DD-MM-YYYY, zero padded.
func Parse(s string) (Date, error) {
	if !exactPattern.MatchString(s) {
		return Date{}, fmt.Errorf("%w: %q", ErrFormat, s)
	}

	// The pattern guarantees ASCII digits at fixed offsets.
	day, _ := strconv.Atoi(s[0:2])
	month, _ := strconv.Atoi(s[3:5])
	year, _ := strconv.Atoi(s[6:10])

	d := Date{Day: day, Month: time.Month(month), Year: year}
	if !d.Valid() {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// Extract finds the single DD-MM-YYYY date inside free text.
//
// Input is split into maximal runs of digits joined by dashes. A run that
// is exactly DD-MM-YYYY is a candidate. A run that merely contains the
// pattern, like 125-12-1997, makes the input ambiguous, as does more than
// one distinct candidate. Repeating the same token is not ambiguous.
func Extract(input string) (Date, error) {
	var candidate string
	for _, run := range runPattern.FindAllString(input, -1) {
		if exactPattern.MatchString(run) {
			if candidate != "" && candidate != run {
				return Date{}, fmt.Errorf("%w: both %q and %q", ErrAmbiguous, candidate, run)
			}
			candidate = run
			continue
		}
		if innerPattern.MatchString(run) {
			return Date{}, fmt.Errorf("%w: %q", ErrAmbiguous, run)
		}
	}

	if candidate == "" {
		return Date{}, ErrFormat
	}
	return Parse(candidate)
}

// Check extracts a date from input and compares its day and month with
// today. Malformed input is reported as FormatInvalid, never as an error.
func Check(input string, today Date) Result {
	born, err := Extract(input)
	if err != nil {
		return FormatInvalid
	}
	if born.SameDay(today) {
		return IsBirthdayToday
	}
	return NotBirthdayToday
}
