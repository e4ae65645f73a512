package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/qsched/internal/compiler"
	"github.com/roach88/qsched/internal/engine"
	"github.com/roach88/qsched/internal/ir"
	"github.com/roach88/qsched/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - specific run only
}

// ReplayRunResult holds the verification result for a single run.
type ReplayRunResult struct {
	RunID      string `json:"run_id"`
	Tags       int    `json:"tags"`
	Executions int    `json:"executions"`
	Consistent bool   `json:"consistent"`
	Error      string `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Program       string            `json:"program"`
	ProgramHash   string            `json:"program_hash"`
	Runs          []ReplayRunResult `json:"runs"`
	TotalRuns     int               `json:"total_runs"`
	AllConsistent bool              `json:"all_consistent"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <program>",
		Short: "Verify recorded runs against their program",
		Long: `Reload recorded runs and check them against the program's static schedules.

Nothing is re-executed. For every run the command checks that the program
hash matches, that tags strictly increase, and that the reactions each
worker was handed at each tag appear in the order of that worker's stream.

Without --run, every run recorded for this program (by hash) is verified.

Exit codes:
  0 - All runs are consistent with the program
  1 - Verification failed for at least one run
  2 - Command error (database not found, invalid program, etc.)

Examples:
  qsched replay --db ./trace.db ./program.cue
  qsched replay --db ./trace.db --run 0190a5b2-... ./program.cue
  qsched replay --db ./trace.db --format json ./program.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "verify a specific run only")

	return cmd
}

func runReplay(opts *ReplayOptions, programPath string, cmd *cobra.Command) error {
	ctx := context.Background()

	p, err := LoadProgram(programPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load program", err)
	}
	if err := compiler.Errors(compiler.Validate(p)); err != nil {
		return WrapExitError(ExitCommandError, "invalid program", err)
	}
	hash, err := ir.ProgramHash(p)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash program", err)
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	runIDs, err := selectRuns(ctx, st, opts.RunID, hash)
	if err != nil {
		return err
	}

	result := ReplayResult{
		Program:       p.Name,
		ProgramHash:   hash,
		Runs:          make([]ReplayRunResult, 0, len(runIDs)),
		TotalRuns:     len(runIDs),
		AllConsistent: true,
	}

	for _, id := range runIDs {
		runResult, err := replayAndVerifyRun(ctx, st, p, id)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay run %s", id), err)
		}
		result.Runs = append(result.Runs, runResult)
		if !runResult.Consistent {
			result.AllConsistent = false
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// selectRuns returns runID alone if given, otherwise every run recorded
// with the program hash.
func selectRuns(ctx context.Context, st *store.Store, runID, hash string) ([]string, error) {
	if runID != "" {
		if _, err := st.ReadRun(ctx, runID); err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				return nil, NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", runID))
			}
			return nil, WrapExitError(ExitCommandError, "failed to read run", err)
		}
		return []string{runID}, nil
	}

	runs, err := st.ListRuns(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	ids := []string{}
	for _, r := range runs {
		if r.ProgramHash == hash {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

// replayAndVerifyRun loads one run and verifies it against p. A trace that
// disagrees with p is a result, not an error.
func replayAndVerifyRun(ctx context.Context, st *store.Store, p *ir.Program, runID string) (ReplayRunResult, error) {
	trace, err := st.ReplayRun(ctx, runID)
	if err != nil {
		return ReplayRunResult{}, err
	}

	result := ReplayRunResult{
		RunID:      runID,
		Tags:       len(trace.Tags),
		Consistent: true,
	}
	for _, tt := range trace.Tags {
		for _, execs := range tt.Workers {
			result.Executions += len(execs)
		}
	}

	if err := engine.VerifyTrace(p, trace); err != nil {
		var traceErr *engine.TraceError
		if !errors.As(err, &traceErr) {
			return ReplayRunResult{}, err
		}
		result.Consistent = false
		result.Error = traceErr.Error()
	}
	return result, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllConsistent {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_TRACE_MISMATCH",
			Message: "trace verification failed",
		}
	}

	if err := writeJSON(cmd.OutOrStdout(), response); err != nil {
		return err
	}

	if !result.AllConsistent {
		// Verification failure = exit code 1
		return NewExitError(ExitFailure, "trace verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if result.TotalRuns == 0 {
		fmt.Fprintf(w, "No runs found for program %s.\n", result.Program)
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d run(s) of %s\n", result.TotalRuns, result.Program)
	if verbose {
		fmt.Fprintf(w, "Program hash: %s\n", result.ProgramHash)
	}
	fmt.Fprintln(w)

	for _, run := range result.Runs {
		status := "✓"
		if !run.Consistent {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Run: %s\n", status, run.RunID)
		fmt.Fprintf(w, "  Events: %d tags, %d executions\n", run.Tags, run.Executions)
		if !run.Consistent {
			fmt.Fprintf(w, "  %s\n", run.Error)
		}
		fmt.Fprintln(w)
	}

	if result.AllConsistent {
		fmt.Fprintln(w, "✓ All runs consistent with program")
		return nil
	}

	fmt.Fprintln(w, "✗ Trace verification failed")
	// Verification failure = exit code 1
	return NewExitError(ExitFailure, "trace verification failed")
}
