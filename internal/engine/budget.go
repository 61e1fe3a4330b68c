package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/loopmerge/internal/ir"
)

// Budget caps how many events a run applies.
//
// Total bounds the run as a whole; once it is spent the pass short-circuits
// and the rest of both streams is never merged. PerStream bounds one stream
// only: the other keeps flowing. Zero means unlimited.
type Budget struct {
	Total     int
	PerStream [2]int

	taken     int
	perStream [2]int
}

// NewBudget creates a budget. Zero limits are unlimited.
func NewBudget(total, tracker, game int) *Budget {
	return &Budget{Total: total, PerStream: [2]int{tracker, game}}
}

// Take reserves one event from s.
//
// Returns a BudgetExhaustedError when the event must not be applied. The
// error's Stream is nil when the overall limit is spent.
func (b *Budget) Take(s ir.Stream) error {
	if b.Total > 0 && b.taken >= b.Total {
		return &BudgetExhaustedError{Limit: b.Total, Taken: b.taken}
	}
	if limit := b.PerStream[s]; limit > 0 && b.perStream[s] >= limit {
		stream := s
		return &BudgetExhaustedError{Stream: &stream, Limit: limit, Taken: b.perStream[s]}
	}
	b.taken++
	b.perStream[s]++
	return nil
}

// Taken returns the number of events reserved so far.
func (b *Budget) Taken() int {
	return b.taken
}

// TakenFrom returns the number of events reserved from s.
func (b *Budget) TakenFrom(s ir.Stream) int {
	return b.perStream[s]
}

// BudgetExhaustedError is returned when a limit stops an event.
//
// It is a control signal, not a failure: Engine.Run reports it through
// Summary.Truncated and never returns it.
type BudgetExhaustedError struct {
	Stream *ir.Stream // nil for the overall limit
	Limit  int
	Taken  int
}

// Error implements the error interface.
func (e *BudgetExhaustedError) Error() string {
	if e.Stream != nil {
		return fmt.Sprintf("%s stream exhausted its budget: %d events taken, limit %d",
			e.Stream, e.Taken, e.Limit)
	}
	return fmt.Sprintf("run exhausted its budget: %d events taken, limit %d", e.Taken, e.Limit)
}

// Code returns ErrCodeBudgetExhausted.
func (e *BudgetExhaustedError) Code() RuntimeErrorCode {
	return ErrCodeBudgetExhausted
}

// IsBudgetExhausted returns true if the error is a BudgetExhaustedError.
// Uses errors.As to handle wrapped errors.
func IsBudgetExhausted(err error) bool {
	var be *BudgetExhaustedError
	return errors.As(err, &be)
}
