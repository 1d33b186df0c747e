// Package validate holds the syntactic form-field checks applied before any
// request reaches the registration store.
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_@.-]+$`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// FieldError names the form field that failed validation
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Length trims s and checks its length in characters against [min, max].
// It returns the trimmed value.
func Length(s, field string, min, max int) (string, error) {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	if n < min || n > max {
		return s, &FieldError{Field: field, Reason: fmt.Sprintf("length must be between %d and %d", min, max)}
	}
	return s, nil
}

// Username checks the username shape
func Username(s, field string) error {
	if !usernamePattern.MatchString(s) {
		return &FieldError{Field: field, Reason: "must contain only letters, digits and _@.-"}
	}
	return nil
}

// Email checks the email shape
func Email(s, field string) error {
	if !emailPattern.MatchString(s) {
		return &FieldError{Field: field, Reason: "must be a valid email"}
	}
	return nil
}

// Int64 parses a decimal integer
func Int64(s, field string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, &FieldError{Field: field, Reason: "must be an integer"}
	}
	return v, nil
}

// NonNegative rejects values below zero
func NonNegative(v int64, field string) error {
	if v < 0 {
		return &FieldError{Field: field, Reason: "must not be negative"}
	}
	return nil
}
