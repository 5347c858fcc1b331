package fingerprint

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is the kind of a DecodeError raised when a payload cannot
	// be parsed into a template at all.
	ErrMalformed = errors.New("malformed template")

	// ErrInvariantViolated is the kind of a DecodeError raised when a payload
	// parses but describes an impossible template.
	ErrInvariantViolated = errors.New("template invariant violated")

	// ErrDuplicatePerson is returned when a roster lists the same person twice.
	ErrDuplicatePerson = errors.New("duplicate person id in roster")

	// ErrEmptyPersonID is returned when a roster entry has no person id.
	ErrEmptyPersonID = errors.New("empty person id in roster")

	// ErrNilTemplate is returned when a nil template is passed to the engine.
	ErrNilTemplate = errors.New("nil template")
)

// DecodeError describes why a template payload was refused.
//
// Kind is either ErrMalformed or ErrInvariantViolated, so callers can use
// errors.Is(err, fingerprint.ErrMalformed). The underlying parse error, if
// any, is reachable through errors.Unwrap as well.
type DecodeError struct {
	Kind   error
	Detail string
	cause  error
}

func (e *DecodeError) Error() string {
	msg := e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.cause}
}

func malformed(cause error, format string, args ...any) error {
	return &DecodeError{Kind: ErrMalformed, Detail: fmt.Sprintf(format, args...), cause: cause}
}

func violated(format string, args ...any) error {
	return &DecodeError{Kind: ErrInvariantViolated, Detail: fmt.Sprintf(format, args...)}
}

// DuplicatePersonError names the person id that occurs twice in a roster.
type DuplicatePersonError struct {
	PersonID string
}

func (e *DuplicatePersonError) Error() string {
	return fmt.Sprintf("%s: %q", ErrDuplicatePerson, e.PersonID)
}

func (e *DuplicatePersonError) Unwrap() error { return ErrDuplicatePerson }
