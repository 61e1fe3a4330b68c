package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/loopmerge/internal/ir"
)

// RuntimeError describes a problem met while applying one event.
//
// Every code except ErrCodeSinkFailed is benign: the engine logs it, counts
// it and moves on. A sink failure aborts the run.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Loop is the adjusted loop of the event being applied.
	Loop int64

	// Stream is the stream the event came from.
	Stream ir.Stream

	// Tag identifies the unit involved, if any.
	Tag *ir.UnitTag

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnitNotRegistered indicates an event referenced an unknown tag.
	ErrCodeUnitNotRegistered RuntimeErrorCode = "UNIT_NOT_REGISTERED"

	// ErrCodeUnitReinitialized indicates an Init for a tag already alive.
	ErrCodeUnitReinitialized RuntimeErrorCode = "UNIT_REINITIALIZED"

	// ErrCodeInvalidControlGroup indicates a group index outside 0-9.
	ErrCodeInvalidControlGroup RuntimeErrorCode = "INVALID_CONTROL_GROUP"

	// ErrCodeUnknownEvent indicates a payload kind the engine ignores.
	ErrCodeUnknownEvent RuntimeErrorCode = "UNKNOWN_EVENT"

	// ErrCodeSinkFailed indicates the sink rejected a delta. Fatal.
	ErrCodeSinkFailed RuntimeErrorCode = "SINK_FAILED"

	// ErrCodeBudgetExhausted indicates the max-event budget stopped the run.
	ErrCodeBudgetExhausted RuntimeErrorCode = "BUDGET_EXHAUSTED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s (loop=%d, stream=%s", e.Code, e.Message, e.Loop, e.Stream)
	if e.Tag != nil {
		msg += ", tag=" + e.Tag.String()
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error must abort the run.
func (e *RuntimeError) Fatal() bool {
	return e.Code == ErrCodeSinkFailed
}

// IsSinkError returns true if err is a sink failure.
// Uses errors.As to handle wrapped errors.
func IsSinkError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeSinkFailed
	}
	return false
}

// NewSinkError wraps a sink failure for the delta at loop.
func NewSinkError(step Step, d ir.Delta, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeSinkFailed,
		Message: fmt.Sprintf("sink rejected %s delta %d", d.Kind, d.Seq),
		Loop:    step.Loop,
		Stream:  step.Stream,
		Tag:     d.Tag,
		Err:     err,
	}
}
