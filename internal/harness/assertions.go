package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/loopmerge/internal/engine"
	"github.com/roach88/loopmerge/internal/ir"
	"github.com/roach88/loopmerge/internal/state"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] loop %d %s %s\n", event.Seq, event.Loop, event.Kind, event.Path)
		}
	}

	return buf.String()
}

// AssertionContext provides the final state for assertions.
type AssertionContext struct {
	Replay  *state.Replay
	Summary engine.Summary
}

func assertRegistryContains(replay *state.Replay, a Assertion) error {
	u, ok := replay.Units.Get(*a.Tag)
	if !ok {
		return &AssertionError{
			Type:     AssertRegistryContains,
			Expected: fmt.Sprintf("unit %s registered", a.Tag),
			Actual:   "not in registry",
		}
	}
	if a.Name != "" && u.Name != a.Name {
		return &AssertionError{
			Type:     AssertRegistryContains,
			Expected: fmt.Sprintf("unit %s named %q", a.Tag, a.Name),
			Actual:   fmt.Sprintf("named %q", u.Name),
		}
	}
	if a.Selected != nil && u.Selected != *a.Selected {
		return &AssertionError{
			Type:     AssertRegistryContains,
			Expected: fmt.Sprintf("unit %s selected=%t", a.Tag, *a.Selected),
			Actual:   fmt.Sprintf("selected=%t", u.Selected),
		}
	}
	return nil
}

func assertRegistryAbsent(replay *state.Replay, a Assertion) error {
	if u, ok := replay.Units.Get(*a.Tag); ok {
		return &AssertionError{
			Type:     AssertRegistryAbsent,
			Expected: fmt.Sprintf("unit %s not registered", a.Tag),
			Actual:   fmt.Sprintf("registered as %q", u.Name),
		}
	}
	return nil
}

func assertRegistryCount(replay *state.Replay, a Assertion) error {
	if n := replay.Units.Len(); n != a.Count {
		return &AssertionError{
			Type:     AssertRegistryCount,
			Expected: fmt.Sprintf("%d live units", a.Count),
			Actual:   fmt.Sprintf("%d live units", n),
		}
	}
	return nil
}

// assertGroupEquals compares a group slot with the expected tags, order
// included. A user with no control state has empty groups.
func assertGroupEquals(replay *state.Replay, a Assertion) error {
	var got []ir.UnitTag
	if p, ok := replay.Groups.Player(ir.UserID(*a.User)); ok {
		got = p.Group(*a.Group)
	}
	if !slices.Equal(got, a.Tags) {
		return &AssertionError{
			Type:     AssertGroupEquals,
			Expected: fmt.Sprintf("user %d group %d = %s", *a.User, *a.Group, formatTags(a.Tags)),
			Actual:   formatTags(got),
		}
	}
	return nil
}

func assertUnitRadius(replay *state.Replay, a Assertion) error {
	u, ok := replay.Units.Get(*a.Tag)
	if !ok {
		return &AssertionError{
			Type:     AssertUnitRadius,
			Expected: fmt.Sprintf("unit %s with radius %v", a.Tag, a.Radius),
			Actual:   "not in registry",
		}
	}
	if u.Radius != a.Radius {
		return &AssertionError{
			Type:     AssertUnitRadius,
			Expected: fmt.Sprintf("unit %s with radius %v", a.Tag, a.Radius),
			Actual:   fmt.Sprintf("radius %v", u.Radius),
		}
	}
	return nil
}

func matchDelta(event TraceEvent, a Assertion) bool {
	if a.Kind != "" && string(event.Kind) != a.Kind {
		return false
	}
	if a.Path != "" && event.Path != a.Path {
		return false
	}
	return true
}

// assertDeltaContains checks if the trace contains a delta matching kind
// and path. Empty criteria match anything.
func assertDeltaContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if matchDelta(event, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertDeltaContains,
		Expected: fmt.Sprintf("delta kind=%q path=%q", a.Kind, a.Path),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertDeltaOrder checks that the first occurrence of each path appears
// in the given order. Intervening deltas are allowed.
func assertDeltaOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if _, seen := positions[event.Path]; !seen {
			positions[event.Path] = i + 1
		}
	}

	for _, path := range a.Paths {
		if positions[path] == 0 {
			return &AssertionError{
				Type:     AssertDeltaOrder,
				Expected: fmt.Sprintf("all paths present: %v", a.Paths),
				Actual:   fmt.Sprintf("missing path: %s", path),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Paths); i++ {
		prev, curr := a.Paths[i-1], a.Paths[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertDeltaOrder,
				Expected: fmt.Sprintf("paths in order: %v", a.Paths),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertDeltaCount checks the number of deltas of a kind, or of all kinds
// when Kind is empty.
func assertDeltaCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if matchDelta(event, a) {
			count++
		}
	}
	if count != a.Count {
		what := a.Kind
		if what == "" {
			what = "any kind"
		}
		return &AssertionError{
			Type:     AssertDeltaCount,
			Expected: fmt.Sprintf("%d deltas of %s", a.Count, what),
			Actual:   fmt.Sprintf("%d deltas", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertSummary(sum engine.Summary, a Assertion) error {
	var diffs []string
	if a.EventsAccepted != nil && sum.EventsAccepted != *a.EventsAccepted {
		diffs = append(diffs, fmt.Sprintf("events_accepted %d, want %d", sum.EventsAccepted, *a.EventsAccepted))
	}
	if a.DeltasEmitted != nil && sum.DeltasEmitted != *a.DeltasEmitted {
		diffs = append(diffs, fmt.Sprintf("deltas_emitted %d, want %d", sum.DeltasEmitted, *a.DeltasEmitted))
	}
	if a.Truncated != nil && sum.Truncated != *a.Truncated {
		diffs = append(diffs, fmt.Sprintf("truncated %t, want %t", sum.Truncated, *a.Truncated))
	}
	if len(diffs) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertSummary,
		Expected: "summary fields match",
		Actual:   strings.Join(diffs, "; "),
	}
}

func formatTags(tags []ir.UnitTag) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = fmt.Sprintf("(%d,%d)", t.Index, t.Recycle)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// State assertions need actx; trace assertions only need the result.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertDeltaContains:
			err = assertDeltaContains(result.Trace, assertion)
		case AssertDeltaOrder:
			err = assertDeltaOrder(result.Trace, assertion)
		case AssertDeltaCount:
			err = assertDeltaCount(result.Trace, assertion)
		case AssertRegistryContains, AssertRegistryAbsent, AssertRegistryCount,
			AssertGroupEquals, AssertUnitRadius, AssertSummary:
			if actx == nil || actx.Replay == nil {
				err = fmt.Errorf("assertion[%d]: %s requires replay state", i, assertion.Type)
				break
			}
			err = evaluateState(actx, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func evaluateState(actx *AssertionContext, a Assertion) error {
	switch a.Type {
	case AssertRegistryContains:
		return assertRegistryContains(actx.Replay, a)
	case AssertRegistryAbsent:
		return assertRegistryAbsent(actx.Replay, a)
	case AssertRegistryCount:
		return assertRegistryCount(actx.Replay, a)
	case AssertGroupEquals:
		return assertGroupEquals(actx.Replay, a)
	case AssertUnitRadius:
		return assertUnitRadius(actx.Replay, a)
	case AssertSummary:
		return assertSummary(actx.Summary, a)
	}
	return nil
}
