package harness

import (
	"github.com/roach88/loopmerge/internal/engine"
	"github.com/roach88/loopmerge/internal/ir"
	"github.com/roach88/loopmerge/internal/state"
)

// TraceEvent is one stored delta, reduced to what golden traces compare.
type TraceEvent struct {
	Seq  int64        `json:"seq"`
	Loop int64        `json:"loop"`
	Kind ir.DeltaKind `json:"kind"`
	Path string       `json:"path"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// RunID is the id the run was stored under.
	RunID string `json:"run_id"`

	// Trace holds the stored deltas in seq order.
	Trace []TraceEvent `json:"trace"`

	// Summary is the engine's report for the run.
	Summary engine.Summary `json:"summary"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Replay is the final registry and control-group state.
	Replay *state.Replay `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddDeltaTrace appends a delta to the trace.
func (r *Result) AddDeltaTrace(d ir.Delta) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:  d.Seq,
		Loop: d.Loop,
		Kind: d.Kind,
		Path: d.Path,
	})
}
