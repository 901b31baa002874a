package core

import (
	"time"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// ThrottledError is returned when an action is refused until RetryAfter has elapsed.
type ThrottledError struct {
	Err        error
	RetryAfter time.Duration
}

func NewThrottledError(err error, retryAfter time.Duration) error {
	return &ThrottledError{Err: err, RetryAfter: retryAfter}
}

func (err ThrottledError) Error() string { return err.Err.Error() }

// DeliveryError wraps a failure to hand a message over to the email backend.
type DeliveryError struct {
	Err error
}

func NewDeliveryError(err error) error {
	return &DeliveryError{Err: err}
}

func (err DeliveryError) Error() string { return "delivering email: " + err.Err.Error() }

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
