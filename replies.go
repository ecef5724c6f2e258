package birthdaybot

import (
	"errors"

	"github.com/dhamidi/birthdaybot/birthday"
)

// Replies holds the user-facing text for each check outcome.
type Replies struct {
	Welcome       string
	FormatInvalid string
	// InvalidDate answers well-formed tokens that are not calendar dates,
	// such as 31-02-1997.
	InvalidDate string
	Birthday    string
	NotBirthday string
}

// DefaultReplies are the messages birthdaybot ships with.
var DefaultReplies = Replies{
	Welcome:       "Welcome! Please input your date of birth in DD-MM-YYYY format (day-month-year). Example: " + birthday.Example,
	FormatInvalid: "Please provide date in DD-MM-YYYY format (day-month-year). Example: " + birthday.Example,
	InvalidDate:   "Invalid date. Please use DD-MM-YYYY format (day-month-year). Example: " + birthday.Example,
	Birthday:      "Happy Birthday 🎉",
	NotBirthday:   "Not your birthday today",
}

// For returns the text shown to the user for result.
func (r Replies) For(result birthday.Result) string {
	switch result {
	case birthday.IsBirthdayToday:
		return r.Birthday
	case birthday.NotBirthdayToday:
		return r.NotBirthday
	default:
		return r.FormatInvalid
	}
}

// Explain is For with knowledge of the input: a FormatInvalid result whose
// input held a DD-MM-YYYY token that is not a real date gets InvalidDate.
func (r Replies) Explain(input string, result birthday.Result) string {
	if result == birthday.FormatInvalid && r.InvalidDate != "" {
		if _, err := birthday.Extract(input); errors.Is(err, birthday.ErrInvalidDate) {
			return r.InvalidDate
		}
	}
	return r.For(result)
}
