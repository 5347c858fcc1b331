package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	fingerprint "github.com/high-horse/fingerprint-server"
	"github.com/high-horse/fingerprint-server/extract"
)

// Error carries the HTTP status a failure should be reported with.
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(code int, err error) error {
	return &Error{Code: code, Err: err}
}

// classify attaches a status code to engine and extractor errors. Errors it
// does not recognize are returned unchanged and end up as 500.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	var ve validator.ValidationErrors
	switch {
	case errors.As(err, &ve):
		return NewError(http.StatusBadRequest, validationMessage(ve))
	case errors.Is(err, fingerprint.ErrDuplicatePerson):
		return NewError(http.StatusConflict, err)
	case errors.Is(err, fingerprint.ErrInvariantViolated),
		errors.Is(err, extract.ErrNoMinutiae):
		return NewError(http.StatusUnprocessableEntity, err)
	case errors.Is(err, extract.ErrUnsupportedMedia):
		return NewError(http.StatusUnsupportedMediaType, err)
	case errors.Is(err, fingerprint.ErrMalformed),
		errors.Is(err, fingerprint.ErrEmptyPersonID),
		errors.Is(err, fingerprint.ErrNilTemplate),
		errors.Is(err, extract.ErrInvalidImage):
		return NewError(http.StatusBadRequest, err)
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return NewError(http.StatusRequestTimeout, err)
	}
	return err
}

func validationMessage(ve validator.ValidationErrors) error {
	msgs := make([]string, len(ve))
	for i, fe := range ve {
		msgs[i] = fe.Namespace() + " failed on " + fe.Tag()
	}
	return errors.New("invalid request: " + strings.Join(msgs, "; "))
}
