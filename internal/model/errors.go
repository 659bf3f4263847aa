package model

import "fmt"

// ErrorKind classifies failures so callers can map them to a response.
type ErrorKind int

const (
	// KindValidation: the request is missing required fields or is malformed.
	KindValidation ErrorKind = iota + 1
	// KindNotFound: the referenced event does not exist.
	KindNotFound
	// KindStore: the backend failed.
	KindStore
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation error"
	case KindNotFound:
		return "not found"
	case KindStore:
		return "store error"
	default:
		return "unknown error"
	}
}

// Error is the error type returned by the store and the event service.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrStore      = &Error{Kind: KindStore}
)

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(id string) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("event %q", id)}
}

func StoreFailure(err error, op string) error {
	return &Error{Kind: KindStore, Message: op, Err: err}
}
