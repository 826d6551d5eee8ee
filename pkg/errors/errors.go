package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the failure classes the harvester distinguishes
type ErrorType string

const (
	ErrorTypeTransient    ErrorType = "transient"
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeSessionDead  ErrorType = "session_dead"
	ErrorTypeResolution   ErrorType = "resolution"
	ErrorTypePersistence  ErrorType = "persistence"
	ErrorTypeEnrichment   ErrorType = "enrichment"
	ErrorTypeParsing      ErrorType = "parsing"
	ErrorTypeInvalidInput ErrorType = "invalid_input"
	ErrorTypeUnknown      ErrorType = "unknown"
)

// Error carries a failure class alongside the message and upstream status code
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(t ErrorType, msg string) *Error {
	return &Error{Type: t, Message: msg}
}

// Wrap creates a typed error around a cause
func Wrap(t ErrorType, err error, msg string) *Error {
	return &Error{Type: t, Message: msg, Err: err}
}

// TypeOf returns the type of the first *Error in the chain, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err carries the given type anywhere in its chain
func Is(err error, t ErrorType) bool {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Type == t {
			return true
		}
		err = e.Err
	}
	return false
}

// IsRetryable checks if an error type should be retried in place
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeTransient, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// IsFatal reports whether the error must stop the whole worker
func IsFatal(err error) bool {
	return Is(err, ErrorTypeSessionDead)
}
