package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/loopmerge/internal/config"
	"github.com/roach88/loopmerge/internal/engine"
	"github.com/roach88/loopmerge/internal/sink"
	"github.com/roach88/loopmerge/internal/source"
	"github.com/roach88/loopmerge/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - specific run only
	Source   string // optional - override the stored source path
}

// Replay statuses of a single run.
const (
	ReplayOK          = "ok"
	ReplayDiverged    = "diverged"
	ReplayNotIntact   = "not_intact"
	ReplaySourceError = "source_error"
	ReplaySkipped     = "skipped"
)

// ReplayRunResult holds the replay result for a single run.
type ReplayRunResult struct {
	RunID          string `json:"run_id"`
	Source         string `json:"source"`
	Status         string `json:"status"`
	StoredDeltas   int64  `json:"stored_deltas"`
	ReplayedDeltas int    `json:"replayed_deltas"`
	StoredDigest   string `json:"stored_digest"`
	ReplayedDigest string `json:"replayed_digest,omitempty"`
	Intact         bool   `json:"intact"`
	Deterministic  bool   `json:"deterministic"`
	Error          string `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs             []ReplayRunResult `json:"runs"`
	TotalRuns        int               `json:"total_runs"`
	AllIntact        bool              `json:"all_intact"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-project stored runs and verify determinism",
		Long: `Verify stored runs in two steps.

First every stored delta is re-hashed and the chain digest is compared with
the one recorded at commit time. Then the run's source is projected again
with its stored configuration and the new digest is compared with the
stored one. Open (uncommitted) runs are skipped.

Exit codes:
  0 - All runs are intact and deterministic
  1 - A run is damaged or its projection diverged
  2 - Command error (database not found, etc.)

Examples:
  loopmerge replay --db ./loopmerge.db
  loopmerge replay --db ./loopmerge.db --run 0192...
  loopmerge replay --db ./loopmerge.db --run 0192... --source moved/match.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay specific run only")
	cmd.Flags().StringVar(&opts.Source, "source", "", "source document to use instead of the stored path (requires --run)")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if opts.Source != "" && opts.RunID == "" {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, "--source requires --run", nil)
	}

	st, err := openExisting(opts.Database)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	defer st.Close()

	var runs []store.Run
	if opts.RunID != "" {
		run, err := st.GetRun(ctx, opts.RunID)
		if err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				return formatter.fail(ExitCommandError, ErrCodeNotFound, "run not found", err)
			}
			return formatter.fail(ExitCommandError, ErrCodeDatabase, "failed to read run", err)
		}
		runs = []store.Run{run}
	} else {
		runs, err = st.ListRuns(ctx)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeDatabase, "failed to list runs", err)
		}
	}

	result := ReplayResult{
		Runs:             make([]ReplayRunResult, 0, len(runs)),
		TotalRuns:        len(runs),
		AllIntact:        true,
		AllDeterministic: true,
	}

	if len(runs) == 0 {
		if formatter.IsJSON() {
			return formatter.Success(result)
		}
		fmt.Fprintln(formatter.Writer, "No runs found in database.")
		return nil
	}

	for _, run := range runs {
		rr, err := replayAndVerifyRun(ctx, st, run, opts.Source)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeDatabase,
				fmt.Sprintf("failed to check run %s", run.ID), err)
		}
		formatter.VerboseLog("run %s: %s", rr.RunID, rr.Status)

		result.Runs = append(result.Runs, rr)
		switch rr.Status {
		case ReplayNotIntact:
			result.AllIntact = false
		case ReplayDiverged, ReplaySourceError:
			result.AllDeterministic = false
		}
	}

	code, message := "", ""
	switch {
	case !result.AllIntact:
		code, message = ErrCodeRunNotIntact, "stored run failed integrity check"
	case !result.AllDeterministic:
		code, message = ErrCodeDeterminism, "determinism verification failed"
	}

	if formatter.IsJSON() {
		if code == "" {
			return formatter.Success(result)
		}
		if err := formatter.Failure(code, message, result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", code, message))
	}

	outputReplayText(formatter.Writer, result, opts.Verbose)
	if code != "" {
		fmt.Fprintf(formatter.Writer, "✗ %s\n", message)
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", code, message))
	}
	fmt.Fprintln(formatter.Writer, "✓ All runs verified deterministic")
	return nil
}

// replayAndVerifyRun checks the stored deltas of one run and then projects
// its source again. Problems with the run itself are reported in the
// result; only store failures are returned as errors.
func replayAndVerifyRun(ctx context.Context, st *store.Store, run store.Run, sourceOverride string) (ReplayRunResult, error) {
	rr := ReplayRunResult{
		RunID:        run.ID,
		Source:       run.Source,
		StoredDigest: run.Digest,
	}
	if sourceOverride != "" {
		rr.Source = sourceOverride
	}

	if run.Status != store.RunCommitted {
		rr.Status = ReplaySkipped
		return rr, nil
	}

	state, err := st.CheckRun(ctx, run.ID)
	if err != nil {
		return rr, err
	}
	rr.StoredDeltas = state.Deltas
	rr.Intact = state.IsIntact
	if !state.IsIntact {
		rr.Status = ReplayNotIntact
		rr.Error = fmt.Sprintf("%d gaps, %d mismatched rows", state.Gaps, state.Mismatched)
		return rr, nil
	}

	sum, err := reproject(ctx, run, rr.Source)
	if err != nil {
		rr.Status = ReplaySourceError
		rr.Error = err.Error()
		return rr, nil
	}
	rr.ReplayedDeltas = sum.DeltasEmitted
	rr.ReplayedDigest = sum.Digest
	rr.Deterministic = sum.Digest == run.Digest && int64(sum.DeltasEmitted) == run.DeltaCount
	if rr.Deterministic {
		rr.Status = ReplayOK
	} else {
		rr.Status = ReplayDiverged
	}
	return rr, nil
}

// reproject runs the engine again with the stored configuration, discarding
// the deltas and keeping the summary.
func reproject(ctx context.Context, run store.Run, sourcePath string) (engine.Summary, error) {
	cfg, err := config.Parse(run.Config, "run "+run.ID)
	if err != nil {
		return engine.Summary{}, err
	}
	engineOpts, err := cfg.EngineOptions()
	if err != nil {
		return engine.Summary{}, err
	}
	streams, err := source.Load(sourcePath, cfg.SourceOptions())
	if err != nil {
		return engine.Summary{}, err
	}
	return engine.New(sink.Discard, engineOpts...).Run(ctx, streams)
}

func outputReplayText(w io.Writer, result ReplayResult, verbose bool) {
	fmt.Fprintf(w, "Replay Summary: %d run(s)\n", result.TotalRuns)
	fmt.Fprintln(w)

	for _, run := range result.Runs {
		mark := "✓"
		switch run.Status {
		case ReplaySkipped:
			mark = "-"
		case ReplayNotIntact, ReplayDiverged, ReplaySourceError:
			mark = "✗"
		}

		fmt.Fprintf(w, "%s Run: %s (%s)\n", mark, run.RunID, run.Status)
		fmt.Fprintf(w, "  Source: %s\n", run.Source)
		if verbose {
			fmt.Fprintf(w, "  Stored:   %d deltas, digest %s\n", run.StoredDeltas, truncateID(run.StoredDigest))
			if run.ReplayedDigest != "" {
				fmt.Fprintf(w, "  Replayed: %d deltas, digest %s\n", run.ReplayedDeltas, truncateID(run.ReplayedDigest))
			}
		}
		if run.Error != "" {
			fmt.Fprintf(w, "  Error: %s\n", run.Error)
		}
		if run.Status == ReplayDiverged {
			fmt.Fprintln(w, "  Warning: Non-deterministic replay detected!")
		}
		fmt.Fprintln(w)
	}
}
