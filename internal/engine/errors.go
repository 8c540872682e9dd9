package engine

import (
	"errors"
	"fmt"
)

// Kind classifies an engine failure. Expected outcomes (bad input, duplicates,
// missing targets) are returned as typed errors, never panics.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	}
	return "internal"
}

// Error is the typed failure returned by every engine operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func conflict(msg string) *Error { return &Error{Kind: KindConflict, Message: msg} }

func notFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

func internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Message: op, Err: err}
}

// Messages shared by engines and tests.
const (
	MsgActivityExists   = "Activity with the same start time already exists"
	MsgActivityNotFound = "Activity not found"
	MsgTooManyEntries   = "Maximum number of activities for this day reached"
	MsgVariableExists   = "Variable already exists"
	MsgVariableNotFound = "Variable not found"
	MsgNoteExists       = "Note already exists"
	MsgNoteNotFound     = "Note not found"
	MsgDayNotFound      = "No activities found for this day"
	MsgSameStartEnd     = "Start and end time cannot be the same"
	MsgNoTime           = "either start or end must be defined"
)
