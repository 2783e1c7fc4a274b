// Package archerr defines the typed errors shared by every layer of the query path.
// Errors are created where a failure is detected and travel unchanged to the
// transport adapter, which alone decides on status codes and envelopes.
package archerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	InvalidRequest   Kind = "InvalidRequest"
	InvalidParameter Kind = "InvalidParameter"
	UnknownTool      Kind = "UnknownTool"
	StoreUnavailable Kind = "StoreUnavailable"
	StoreQueryFailed Kind = "StoreQueryFailed"
	StoreTimeout     Kind = "StoreTimeout"
	MalformedRow     Kind = "MalformedRow"
	Internal         Kind = "Internal"
)

// Kinds raised only by the HTTP adapters.
const (
	NotFound       Kind = "NotFound"
	NotImplemented Kind = "NotImplemented"
	RateLimited    Kind = "RateLimited"
	TooLarge       Kind = "RequestTooLarge"
)

// Error is a typed error that can be surfaced to API clients without leaking driver details.
type Error struct {
	Kind    Kind
	Message string
	// Field names the offending request field for InvalidParameter.
	Field string
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs a typed error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs a typed error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Param reports an invalid or missing parameter.
func Param(field, message string) *Error {
	return &Error{Kind: InvalidParameter, Field: field, Message: message}
}

// KindOf returns the kind carried by err. Untyped errors are Internal, nil is "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// FieldOf returns the offending field of an InvalidParameter error, if any.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}

// MessageOf returns the client-facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		if e.Err != nil {
			return e.Err.Error()
		}
		return string(e.Kind)
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
