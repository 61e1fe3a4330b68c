package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/loopmerge/internal/config"
	"github.com/roach88/loopmerge/internal/source"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	ConfigPath string
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool             `json:"valid"`
	Source    string           `json:"source"`
	Inventory source.Inventory `json:"inventory"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <source>",
		Short: "Check a stream document without projecting it",
		Long: `Decode a source document and report what it contains: event counts per
stream and kind, raw loop totals, users and units.

With --config, the configured event class and per-stream caps are applied
while decoding, exactly as project would.

Exit codes:
  0 - Document is valid
  1 - Document is malformed
  2 - Command error (file not found, bad configuration)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "configuration file (CUE or JSON)")

	return cmd
}

func runValidate(opts *ValidateOptions, sourcePath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	streams, err := source.Load(sourcePath, cfg.SourceOptions())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return formatter.fail(ExitCommandError, ErrCodeNotFound, "source not found", err)
		}
		return formatter.fail(ExitFailure, ErrCodeSource, "invalid source document", err)
	}

	inv := source.Take(streams)
	formatter.VerboseLog("Decoded %d tracker and %d game events from %s",
		inv.TrackerEvents, inv.GameEvents, sourcePath)

	result := ValidationResult{Valid: true, Source: sourcePath, Inventory: inv}
	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	printInventory(formatter, result)
	return nil
}

func printInventory(f *OutputFormatter, r ValidationResult) {
	w := f.Writer
	inv := r.Inventory

	fmt.Fprintf(w, "✓ %s is valid\n", r.Source)
	fmt.Fprintf(w, "  Tracker: %d events over %d loops\n", inv.TrackerEvents, inv.TrackerLoops)
	fmt.Fprintf(w, "  Game: %d events over %d loops\n", inv.GameEvents, inv.GameLoops)
	fmt.Fprintf(w, "  Units: %d\n", inv.Units)

	users := make([]string, len(inv.Users))
	for i, u := range inv.Users {
		users[i] = fmt.Sprintf("%d", u)
	}
	fmt.Fprintf(w, "  Users: [%s]\n", strings.Join(users, " "))

	kinds := make([]string, 0, len(inv.Kinds))
	for k := range inv.Kinds {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	fmt.Fprintln(w, "  Kinds:")
	for _, k := range kinds {
		fmt.Fprintf(w, "    %-24s %d\n", k, inv.Kinds[k])
	}
}
