package domain

import (
	"fmt"
	"regexp"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// EmailAddress is a validated, immutable email address.
type EmailAddress struct {
	value string
}

// NewEmailAddress validates the input and returns an EmailAddress.
// Malformed input fails construction; an invalid instance never exists.
func NewEmailAddress(value string) (EmailAddress, error) {
	if !emailPattern.MatchString(value) {
		return EmailAddress{}, fmt.Errorf("%w: invalid email address %q", ErrValidation, value)
	}
	return EmailAddress{value: value}, nil
}

func (e EmailAddress) String() string {
	return e.value
}

// IsZero reports whether the address was never constructed.
func (e EmailAddress) IsZero() bool {
	return e.value == ""
}
