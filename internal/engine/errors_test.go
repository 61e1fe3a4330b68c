package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/loopmerge/internal/ir"
)

func TestRuntimeError_Message(t *testing.T) {
	tag := ir.NewUnitTag(5, 1)
	cause := errors.New("disk full")
	err := &RuntimeError{
		Code:    ErrCodeSinkFailed,
		Message: "sink rejected unit_moved delta 4",
		Loop:    160,
		Stream:  ir.StreamTracker,
		Tag:     &tag,
		Err:     cause,
	}

	assert.Equal(t,
		"SINK_FAILED: sink rejected unit_moved delta 4 (loop=160, stream=tracker, tag=1310721): disk full",
		err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, err.Fatal())
}

func TestRuntimeError_BenignCodes(t *testing.T) {
	for _, code := range []RuntimeErrorCode{
		ErrCodeUnitNotRegistered,
		ErrCodeUnitReinitialized,
		ErrCodeInvalidControlGroup,
		ErrCodeUnknownEvent,
		ErrCodeBudgetExhausted,
	} {
		err := &RuntimeError{Code: code}
		assert.False(t, err.Fatal(), string(code))
	}
}

func TestIsSinkError(t *testing.T) {
	d := ir.Delta{Seq: 1, Kind: ir.DeltaCameraMoved}
	err := NewSinkError(Step{Loop: 3, Stream: ir.StreamGame}, d, errors.New("closed"))

	assert.True(t, IsSinkError(err))
	assert.True(t, IsSinkError(fmt.Errorf("run: %w", err)))
	assert.False(t, IsSinkError(&RuntimeError{Code: ErrCodeUnknownEvent}))
	assert.False(t, IsSinkError(errors.New("plain")))
}
