package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/loopmerge/internal/ir"
	"github.com/roach88/loopmerge/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - defaults to the latest committed run
	Kind     string // optional - filter to one delta kind
	Path     string // optional - filter to one presentation path
}

// TraceEvent is one stored delta in the trace timeline.
type TraceEvent struct {
	Seq      int64        `json:"seq"`
	Loop     int64        `json:"loop"`
	Kind     ir.DeltaKind `json:"kind"`
	Path     string       `json:"path"`
	ID       string       `json:"id,omitempty"`
	Position ir.Vec3      `json:"position"`
	Radius   float64      `json:"radius,omitempty"`
	Label    string       `json:"label,omitempty"`
	Value    *float64     `json:"value,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunID    string       `json:"run_id"`
	Source   string       `json:"source"`
	Status   string       `json:"status"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the run. Counts cover the whole
// run regardless of filters.
type TraceStats struct {
	TotalDeltas int64            `json:"total_deltas"`
	Shown       int              `json:"shown"`
	ByKind      map[string]int64 `json:"by_kind"`
	Digest      string           `json:"digest"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the stored delta timeline of a run",
		Long: `Show the deltas a stored run emitted, in seq order.

The output includes:
- Timeline: every delta with its loop, kind and path
- Stats: delta counts per kind and the run digest

Without --run the latest committed run is shown.

Examples:
  loopmerge trace --db ./loopmerge.db
  loopmerge trace --db ./loopmerge.db --run 0192... --kind unit_selected
  loopmerge trace --db ./loopmerge.db --path Unit/262144/Position --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to trace (default: latest)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one delta kind")
	cmd.Flags().StringVar(&opts.Path, "path", "", "filter to one presentation path")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if opts.Kind != "" && !slices.Contains(ir.DeltaKinds, ir.DeltaKind(opts.Kind)) {
		return formatter.fail(ExitCommandError, ErrCodeGeneric,
			fmt.Sprintf("unknown delta kind %q", opts.Kind), nil)
	}

	st, err := openExisting(opts.Database)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	defer st.Close()

	run, err := resolveRun(ctx, st, opts.RunID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return formatter.fail(ExitCommandError, ErrCodeNotFound, "run not found", err)
		}
		return formatter.fail(ExitCommandError, ErrCodeDatabase, "failed to read run", err)
	}

	timeline, err := buildTimeline(ctx, st, run.ID, ir.DeltaKind(opts.Kind), opts.Path)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeDatabase, "failed to read deltas", err)
	}

	counts, err := st.CountByKind(ctx, run.ID)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeDatabase, "failed to count deltas", err)
	}

	result := TraceResult{
		RunID:    run.ID,
		Source:   run.Source,
		Status:   string(run.Status),
		Timeline: timeline,
		Stats: TraceStats{
			Shown:  len(timeline),
			ByKind: make(map[string]int64, len(counts)),
			Digest: run.Digest,
		},
	}
	for k, n := range counts {
		result.Stats.ByKind[string(k)] = n
		result.Stats.TotalDeltas += n
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	outputTraceText(formatter.Writer, result, opts.Verbose)
	return nil
}

// openExisting opens a store without creating it: a mistyped path should
// be an error, not a fresh empty database.
func openExisting(path string) (*store.Store, error) {
	if path != ":memory:" {
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
	}
	return store.Open(path)
}

// resolveRun returns the named run, or the latest committed one.
func resolveRun(ctx context.Context, st *store.Store, runID string) (store.Run, error) {
	if runID == "" {
		return st.LatestRun(ctx)
	}
	return st.GetRun(ctx, runID)
}

// buildTimeline reads a run's deltas. A path filter takes precedence over
// the kind query; both apply when set.
func buildTimeline(ctx context.Context, st *store.Store, runID string, kind ir.DeltaKind, path string) ([]TraceEvent, error) {
	timeline := []TraceEvent{}

	if path != "" {
		deltas, err := st.ReadPath(ctx, runID, path)
		if err != nil {
			return nil, err
		}
		for _, d := range deltas {
			if kind != "" && d.Kind != kind {
				continue
			}
			timeline = append(timeline, traceEvent("", d))
		}
		return timeline, nil
	}

	stored, err := st.ReadStoredDeltas(ctx, runID, kind)
	if err != nil {
		return nil, err
	}
	for _, sd := range stored {
		timeline = append(timeline, traceEvent(sd.ID, sd.Delta))
	}
	return timeline, nil
}

func traceEvent(id string, d ir.Delta) TraceEvent {
	return TraceEvent{
		Seq:      d.Seq,
		Loop:     d.Loop,
		Kind:     d.Kind,
		Path:     d.Path,
		ID:       id,
		Position: d.Position,
		Radius:   d.Radius,
		Label:    d.Label,
		Value:    d.Value,
	}
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for Run: %s\n", result.RunID)
	fmt.Fprintf(w, "Source: %s\n", result.Source)
	fmt.Fprintf(w, "Status: %s\n", result.Status)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no deltas)")
	}
	for _, ev := range result.Timeline {
		formatTimelineEvent(w, ev, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Deltas: %d\n", result.Stats.TotalDeltas)
	fmt.Fprintf(w, "  Shown:        %d\n", result.Stats.Shown)

	kinds := make([]string, 0, len(result.Stats.ByKind))
	for k := range result.Stats.ByKind {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "    %-16s %d\n", k, result.Stats.ByKind[k])
	}
	fmt.Fprintf(w, "  Digest:       %s\n", truncateID(result.Stats.Digest))
}

func formatTimelineEvent(w io.Writer, ev TraceEvent, verbose bool) {
	fmt.Fprintf(w, "  [%d] loop %d %s %s\n", ev.Seq, ev.Loop, ev.Kind, ev.Path)
	if !verbose {
		return
	}
	fmt.Fprintf(w, "       Position: (%g, %g, %g)\n", ev.Position.X, ev.Position.Y, ev.Position.Z)
	if ev.Label != "" {
		fmt.Fprintf(w, "       Label: %s\n", ev.Label)
	}
	if ev.Value != nil {
		fmt.Fprintf(w, "       Value: %g\n", *ev.Value)
	}
	if ev.ID != "" {
		fmt.Fprintf(w, "       ID: %s\n", truncateID(ev.ID))
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
