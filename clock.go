package birthdaybot

import (
	"time"

	"github.com/dhamidi/birthdaybot/birthday"
)

// Clock returns the current time. Tools never read the system clock
// directly so tests can pin "today".
type Clock func() time.Time

// SystemClock returns a Clock reading the wall clock in loc.
func SystemClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return func() time.Time { return time.Now().In(loc) }
}

// FixedClock returns a Clock that always reports t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// Today returns the calendar date the clock currently reports.
func (c Clock) Today() birthday.Date {
	return birthday.FromTime(c())
}
