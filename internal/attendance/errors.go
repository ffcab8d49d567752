package attendance

import (
	"errors"
	"fmt"
)

// Kind classifies check-in failures.
type Kind string

const (
	KindInvalidCode         Kind = "INVALID_CODE"
	KindNotFoundOrExpired   Kind = "CODE_NOT_FOUND_OR_EXPIRED"
	KindAlreadyMarked       Kind = "ALREADY_MARKED"
	KindLocationUnavailable Kind = "LOCATION_UNAVAILABLE"
	KindLocationTimeout     Kind = "LOCATION_TIMEOUT"
	KindOutOfRange          Kind = "OUT_OF_RANGE"
	KindStore               Kind = "STORE_ERROR"
	KindLedger              Kind = "LEDGER_ERROR"
)

// Sentinels for errors.Is; any *Error with the same Kind matches.
var (
	ErrInvalidCode         = &Error{Kind: KindInvalidCode}
	ErrNotFoundOrExpired   = &Error{Kind: KindNotFoundOrExpired}
	ErrAlreadyMarked       = &Error{Kind: KindAlreadyMarked}
	ErrLocationUnavailable = &Error{Kind: KindLocationUnavailable}
	ErrLocationTimeout     = &Error{Kind: KindLocationTimeout}
	ErrOutOfRange          = &Error{Kind: KindOutOfRange}
	ErrStore               = &Error{Kind: KindStore}
	ErrLedger              = &Error{Kind: KindLedger}
)

var (
	// ErrDuplicate is returned by stores when the (student, code) pair already exists.
	ErrDuplicate = errors.New("attendance record already exists")
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// Error is a classified check-in failure.
type Error struct {
	Kind    Kind
	Message string
	// Distance is set on OUT_OF_RANGE when it could be measured.
	Distance *float64
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Retryable reports whether the caller may retry the same request.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindLocationUnavailable, KindLocationTimeout, KindStore:
		return true
	}
	return false
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the Kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
