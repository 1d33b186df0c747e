package errors

import (
	"errors"
)

// Kind classifies a domain failure
type Kind int

const (
	KindUnknown Kind = iota
	KindDuplicatePendingRegistration
	KindUsernameTaken
	KindInvalidStatus
	KindNotFound
	KindConflict
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindDuplicatePendingRegistration:
		return "duplicate_pending_registration"
	case KindUsernameTaken:
		return "username_taken"
	case KindInvalidStatus:
		return "invalid_status"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a typed domain failure with a stable machine-readable reason
// and a user-facing message
type Error struct {
	Kind   Kind
	Reason string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so wrapped
// failures match the predefined values with errors.Is
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Predefined errors
var (
	ErrDuplicatePendingRegistration = &Error{
		Kind:   KindDuplicatePendingRegistration,
		Reason: "AlreadyRegisteringUsername",
		Msg:    "This username is under review",
	}

	ErrUsernameTaken = &Error{
		Kind:   KindUsernameTaken,
		Reason: "AlreadyExistingUsername",
		Msg:    "Login already used",
	}

	ErrInvalidStatus = &Error{
		Kind:   KindInvalidStatus,
		Reason: "InvalidStatus",
		Msg:    "invalid status",
	}

	ErrNotFound = &Error{
		Kind:   KindNotFound,
		Reason: "NoSuchUser",
		Msg:    "no such user",
	}

	// ErrConflict signals a data-integrity violation: more than one pending
	// row for an id, or a concurrent approval of the same username
	ErrConflict = &Error{
		Kind:   KindConflict,
		Reason: "MultipleUser",
		Msg:    "server error",
	}
)

// Wrap attaches a cause to a predefined error, keeping its kind
func Wrap(base *Error, err error) *Error {
	return &Error{
		Kind:   base.Kind,
		Reason: base.Reason,
		Msg:    base.Msg,
		Err:    err,
	}
}

// Validation builds a validation failure for a single form field
func Validation(msg string, err error) *Error {
	return &Error{
		Kind:   KindValidation,
		Reason: "ValidationError",
		Msg:    msg,
		Err:    err,
	}
}

// KindOf extracts the failure kind from err
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// GetUserMessage extracts the user-facing message from err
func GetUserMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Msg != "" {
		return appErr.Msg
	}
	// Default message for unexpected errors
	return "Unknown server error"
}

// ReasonOf extracts the machine-readable reason from err
func ReasonOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Reason != "" {
		return appErr.Reason
	}
	return "UnknownError"
}
