package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/loopmerge/internal/config"
	"github.com/roach88/loopmerge/internal/engine"
	"github.com/roach88/loopmerge/internal/metrics"
	"github.com/roach88/loopmerge/internal/sink"
	"github.com/roach88/loopmerge/internal/source"
	"github.com/roach88/loopmerge/internal/store"
)

// ProjectOptions holds flags for the project command.
type ProjectOptions struct {
	*RootOptions
	ConfigPath  string
	Database    string
	MetricsFile string
	JSONLines   string // "-" for stdout
	LogDeltas   bool

	UserID       int64
	UnitTag      uint64
	UnitName     string
	MinLoop      int64
	MaxLoop      int64
	EventClass   string
	MaxEvents    int
	MaxTracker   int
	MaxGame      int
	IncludeStats bool
	Ratio        float64

	// RunIDs overrides the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// ProjectResult is the outcome of one projection.
type ProjectResult struct {
	RunID   string         `json:"run_id,omitempty"`
	Source  string         `json:"source"`
	Summary engine.Summary `json:"summary"`
}

// NewProjectCommand creates the project command.
func NewProjectCommand(rootOpts *RootOptions) *cobra.Command {
	return newProjectCommand(&ProjectOptions{RootOptions: rootOpts})
}

func newProjectCommand(opts *ProjectOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project <source>",
		Short: "Project a stream document into rendering deltas",
		Long: `Merge the tracker and game streams of a source document and project
them into deltas.

Configuration is read from defaults, then --config (CUE or JSON), then
LOOPMERGE_* environment variables, then the flags below. With --db the run
is stored and can be inspected with trace and verified with replay.

Exit codes:
  0 - Projection completed (possibly truncated by a limit)
  1 - Projection aborted (a sink failed or the run was interrupted)
  2 - Command error (bad configuration, unreadable source, etc.)

Examples:
  loopmerge project match.yaml --db ./loopmerge.db
  loopmerge project match.yaml.zst --user 1 --min-loop 1000 --max-loop 4000
  loopmerge project match.yaml --jsonl - --event-class game
  loopmerge project match.yaml --config ladder.cue --metrics-file run.prom`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProject(opts, args[0], cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.ConfigPath, "config", "", "configuration file (CUE or JSON)")
	f.StringVar(&opts.Database, "db", "", "store the run in this SQLite database")
	f.StringVar(&opts.MetricsFile, "metrics-file", "", "write run metrics in Prometheus text format")
	f.StringVar(&opts.JSONLines, "jsonl", "", "write deltas as JSON lines to a file (- for stdout)")
	f.BoolVar(&opts.LogDeltas, "log-deltas", false, "log every delta as a structured log record")

	f.Int64Var(&opts.UserID, "user", 0, "keep only game events from this user")
	f.Uint64Var(&opts.UnitTag, "unit-tag", 0, "keep only lifecycle events for this packed unit tag")
	f.StringVar(&opts.UnitName, "unit-name", "", "keep only init/born events for this unit name")
	f.Int64Var(&opts.MinLoop, "min-loop", 0, "skip events before this game loop")
	f.Int64Var(&opts.MaxLoop, "max-loop", 0, "stop at this game loop")
	f.StringVar(&opts.EventClass, "event-class", "", "all, tracker or game")
	f.IntVar(&opts.MaxEvents, "max-events", 0, "stop after this many accepted events (0 = unlimited)")
	f.IntVar(&opts.MaxTracker, "max-tracker-events", 0, "apply at most this many tracker events that pass the filters")
	f.IntVar(&opts.MaxGame, "max-game-events", 0, "apply at most this many game events that pass the filters")
	f.BoolVar(&opts.IncludeStats, "include-stats", false, "emit player statistic series")
	f.Float64Var(&opts.Ratio, "tracker-loop-ratio", 0, "tracker-to-game loop ratio")

	return cmd
}

// resolveConfig layers flags that were set explicitly over the loaded
// configuration.
func resolveConfig(opts *ProjectOptions, sourcePath string, cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	cfg.Source = sourcePath

	f := cmd.Flags()
	if f.Changed("db") {
		cfg.Database = opts.Database
	}
	if f.Changed("metrics-file") {
		cfg.MetricsFile = opts.MetricsFile
	}
	if f.Changed("user") {
		cfg.Filters.UserID = &opts.UserID
	}
	if f.Changed("unit-tag") {
		cfg.Filters.UnitTag = &opts.UnitTag
	}
	if f.Changed("unit-name") {
		cfg.Filters.UnitName = opts.UnitName
	}
	if f.Changed("min-loop") {
		cfg.Filters.MinLoop = &opts.MinLoop
	}
	if f.Changed("max-loop") {
		cfg.Filters.MaxLoop = &opts.MaxLoop
	}
	if f.Changed("event-class") {
		cfg.Filters.EventClass = opts.EventClass
	}
	if f.Changed("max-events") {
		cfg.MaxEvents = opts.MaxEvents
	}
	if f.Changed("max-tracker-events") {
		cfg.MaxTrackerEvents = opts.MaxTracker
	}
	if f.Changed("max-game-events") {
		cfg.MaxGameEvents = opts.MaxGame
	}
	if f.Changed("include-stats") {
		cfg.IncludeStats = opts.IncludeStats
	}
	if f.Changed("tracker-loop-ratio") {
		cfg.TrackerLoopRatio = opts.Ratio
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runProject(opts *ProjectOptions, sourcePath string, cmd *cobra.Command) error {
	// With --jsonl - stdout carries only delta lines; every report, in
	// either format, goes to stderr.
	reportOut := cmd.OutOrStdout()
	if opts.JSONLines == "-" {
		reportOut = cmd.ErrOrStderr()
	}
	formatter := newFormatter(opts.RootOptions, reportOut, cmd.ErrOrStderr())

	cfg, err := resolveConfig(opts, sourcePath, cmd)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}
	engineOpts, err := cfg.EngineOptions()
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	slog.Info("loading source", "path", cfg.Source)
	streams, err := source.Load(cfg.Source, cfg.SourceOptions())
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeSource, "failed to load source", err)
	}

	var collector *metrics.Collector
	if cfg.MetricsFile != "" {
		collector = metrics.New()
		engineOpts = append(engineOpts, engine.WithMetrics(collector))
	}

	var sinks sink.Multi

	jsonlOut := cmd.OutOrStdout()
	if opts.JSONLines != "" {
		var w io.Writer = jsonlOut
		if opts.JSONLines != "-" {
			file, err := os.Create(opts.JSONLines)
			if err != nil {
				return formatter.fail(ExitCommandError, ErrCodeGeneric, "failed to create delta file", err)
			}
			defer file.Close()
			w = file
		}
		sinks = append(sinks, sink.NewJSONLines(w))
	}
	if opts.LogDeltas {
		sinks = append(sinks, sink.NewLog(slog.Default(), slog.LevelInfo))
	}

	var (
		st     *store.Store
		writer *store.RunWriter
	)
	if cfg.Database != "" {
		st, err = store.Open(cfg.Database)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()

		cfgJSON, err := cfg.JSON()
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeConfig, "failed to encode configuration", err)
		}
		runIDs := opts.RunIDs
		if runIDs == nil {
			runIDs = engine.UUIDv7Generator{}
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		writer, err = st.BeginRun(ctx, store.Run{
			ID:     runIDs.Generate(),
			Source: cfg.Source,
			Config: cfgJSON,
		})
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeDatabase, "failed to start run", err)
		}
		sinks = append(sinks, writer)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	sum, err := engine.New(sinks, engineOpts...).Run(ctx, streams)
	if err != nil {
		if writer != nil {
			if rbErr := writer.Rollback(); rbErr != nil {
				slog.Error("rollback failed", "error", rbErr)
			}
		}
		if errors.Is(err, context.Canceled) {
			slog.Info("projection interrupted")
		}
		return formatter.fail(ExitFailure, ErrCodeProjection, "projection aborted", err)
	}

	result := ProjectResult{Source: cfg.Source, Summary: sum}
	if writer != nil {
		run, err := writer.Commit(context.WithoutCancel(ctx), sum)
		if err != nil {
			return formatter.fail(ExitFailure, ErrCodeDatabase, "failed to commit run", err)
		}
		result.RunID = run.ID
	}

	if collector != nil {
		if err := collector.WriteTextfile(cfg.MetricsFile); err != nil {
			return formatter.fail(ExitFailure, ErrCodeMetricsExport, "failed to write metrics", err)
		}
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	printProjectText(formatter.Writer, result)
	return nil
}

func printProjectText(w io.Writer, r ProjectResult) {
	if r.RunID != "" {
		fmt.Fprintf(w, "Run: %s\n", r.RunID)
	}
	fmt.Fprintf(w, "Source: %s\n", r.Source)
	fmt.Fprintf(w, "  Events: %d merged, %d accepted\n", r.Summary.EventsMerged, r.Summary.EventsAccepted)
	fmt.Fprintf(w, "  Deltas: %d\n", r.Summary.DeltasEmitted)
	fmt.Fprintf(w, "  Final loops: tracker %d, game %d\n", r.Summary.FinalTrackerLoop, r.Summary.FinalGameLoop)
	fmt.Fprintf(w, "  Live units: %d\n", r.Summary.LiveUnits)
	if r.Summary.Truncated {
		fmt.Fprintln(w, "  Truncated: a max-event or max-loop limit ended the pass")
	}
	fmt.Fprintf(w, "  Digest: %s\n", r.Summary.Digest)
}

// signalContext cancels on SIGINT or SIGTERM. Uses the command's context
// if available (for testing).
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
