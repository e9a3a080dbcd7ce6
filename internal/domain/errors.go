package domain

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced to the presentation layer.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindUnauthorized
	KindNotFound
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindTransport:
		return "transport"
	}
	return "unknown"
}

var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("task not found")
	ErrTransport    = errors.New("store unavailable")
)

// Error is a classified failure. Field is set for validation errors.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Field != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrTransport:
		return e.Kind == KindTransport
	}
	return false
}

// Validation returns a field-level validation error.
func Validation(field, msg string) error {
	return &Error{Kind: KindValidation, Field: field, Message: msg}
}

// Unauthorized wraps err as an authorization failure.
func Unauthorized(err error) error {
	msg := "unauthorized"
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: KindUnauthorized, Message: msg, Err: err}
}

// NotFound returns a not-found error for the task id.
func NotFound(id string) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("task %s not found", id)}
}

// Transport wraps err as a transport or store failure.
func Transport(err error) error {
	return &Error{Kind: KindTransport, Message: "store unavailable", Err: err}
}

// KindOf classifies err. Unclassified errors are reported as transport failures.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	}
	return KindTransport
}

// FieldOf returns the offending field of a validation error.
func FieldOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Field
	}
	return ""
}
