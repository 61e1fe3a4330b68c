package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loopmerge/internal/ir"
)

func TestBudget_Unlimited(t *testing.T) {
	b := NewBudget(0, 0, 0)

	for i := 0; i < 1000; i++ {
		require.NoError(t, b.Take(ir.StreamTracker))
		require.NoError(t, b.Take(ir.StreamGame))
	}
	assert.Equal(t, 2000, b.Taken())
}

func TestBudget_TotalLimit(t *testing.T) {
	b := NewBudget(3, 0, 0)

	require.NoError(t, b.Take(ir.StreamTracker))
	require.NoError(t, b.Take(ir.StreamGame))
	require.NoError(t, b.Take(ir.StreamTracker))

	err := b.Take(ir.StreamGame)
	require.Error(t, err)

	var be *BudgetExhaustedError
	require.ErrorAs(t, err, &be)
	assert.Nil(t, be.Stream)
	assert.Equal(t, 3, be.Limit)
	assert.Equal(t, 3, be.Taken)
	assert.Equal(t, ErrCodeBudgetExhausted, be.Code())
	assert.Equal(t, 3, b.Taken(), "a refused event is not counted")
}

func TestBudget_PerStreamLimit(t *testing.T) {
	b := NewBudget(0, 2, 0)

	require.NoError(t, b.Take(ir.StreamTracker))
	require.NoError(t, b.Take(ir.StreamTracker))

	err := b.Take(ir.StreamTracker)
	var be *BudgetExhaustedError
	require.ErrorAs(t, err, &be)
	require.NotNil(t, be.Stream)
	assert.Equal(t, ir.StreamTracker, *be.Stream)

	require.NoError(t, b.Take(ir.StreamGame), "game stream is unaffected")
	assert.Equal(t, 2, b.TakenFrom(ir.StreamTracker))
	assert.Equal(t, 1, b.TakenFrom(ir.StreamGame))
}

func TestBudget_TotalCheckedBeforeStream(t *testing.T) {
	b := NewBudget(1, 1, 0)
	require.NoError(t, b.Take(ir.StreamTracker))

	var be *BudgetExhaustedError
	require.ErrorAs(t, b.Take(ir.StreamTracker), &be)
	assert.Nil(t, be.Stream)
}

func TestBudgetExhaustedError_Message(t *testing.T) {
	total := &BudgetExhaustedError{Limit: 5, Taken: 5}
	assert.Contains(t, total.Error(), "run exhausted its budget")

	s := ir.StreamGame
	stream := &BudgetExhaustedError{Stream: &s, Limit: 2, Taken: 2}
	assert.Contains(t, stream.Error(), "game stream exhausted")
}

func TestIsBudgetExhausted(t *testing.T) {
	err := &BudgetExhaustedError{Limit: 1}

	assert.True(t, IsBudgetExhausted(err))
	assert.True(t, IsBudgetExhausted(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsBudgetExhausted(fmt.Errorf("other")))
	assert.False(t, IsBudgetExhausted(nil))
}
