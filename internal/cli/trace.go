package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/qsched/internal/ir"
	"github.com/roach88/qsched/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - list runs when empty
	Worker   int    // optional - negative means every worker
	Reaction string // optional - reaction id or name
}

// TraceExecution is one reaction dispatch in the timeline.
type TraceExecution struct {
	Seq          int64  `json:"seq"`
	Worker       int    `json:"worker"`
	ReactionID   int    `json:"reaction_id"`
	ReactionName string `json:"reaction_name"`
}

// TraceTag is one tag of the timeline with the dispatches made in it.
type TraceTag struct {
	Ordinal    int64            `json:"ordinal"`
	TimeNs     int64            `json:"time_ns"`
	Microstep  uint32           `json:"microstep"`
	Schedule   int              `json:"schedule"`
	Executions []TraceExecution `json:"executions"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Run      ir.RunRecord `json:"run"`
	Timeline []TraceTag   `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Tags       int         `json:"tags"`
	Executions int         `json:"executions"`
	PerWorker  map[int]int `json:"per_worker"`
}

// RunList is the trace output when no run is selected.
type RunList struct {
	Runs []ir.RunRecord `json:"runs"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the recorded trace of a run",
		Long: `Show the tags a run passed through and the reactions each worker was
handed at each tag, in dispatch order.

Without --run, lists the runs recorded in the database.

The output includes:
- Timeline: Every tag with its active schedule and reaction dispatches
- Stats: Tag count, dispatch count, and dispatches per worker

Examples:
  qsched trace --db ./trace.db
  qsched trace --db ./trace.db --run 0190a5b2-...
  qsched trace --db ./trace.db --run 0190a5b2-... --worker 1
  qsched trace --db ./trace.db --run 0190a5b2-... --reaction sink --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to trace")
	cmd.Flags().IntVar(&opts.Worker, "worker", -1, "filter to one worker")
	cmd.Flags().StringVar(&opts.Reaction, "reaction", "", "filter to one reaction (id or name)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.RunID == "" {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		return outputRunList(cmd, opts, runs)
	}

	run, err := st.ReadRun(ctx, opts.RunID)
	if errors.Is(err, store.ErrRunNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", opts.RunID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	tags, err := st.ReadTags(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read tags", err)
	}

	filter, byName := executionFilter(opts)
	execs, err := st.ReadExecutions(ctx, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read executions", err)
	}

	result := buildTraceResult(run, tags, execs, byName)

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result)
}

// openExistingStore opens a trace database that must already exist;
// store.Open would otherwise create an empty one.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// executionFilter builds the store filter for opts. A non-numeric
// --reaction is returned as a name to match after reading.
func executionFilter(opts *TraceOptions) (store.ExecutionFilter, string) {
	filter := store.ExecutionFilter{RunID: opts.RunID}
	if opts.Worker >= 0 {
		w := opts.Worker
		filter.Worker = &w
	}
	if opts.Reaction == "" {
		return filter, ""
	}
	if id, err := strconv.Atoi(opts.Reaction); err == nil {
		filter.Reaction = &id
		return filter, ""
	}
	return filter, opts.Reaction
}

// buildTraceResult groups executions under their tags. Tags with no
// matching executions are kept so the timeline stays complete.
func buildTraceResult(run ir.RunRecord, tags []ir.TagRecord, execs []ir.ExecutionRecord, reactionName string) TraceResult {
	timeline := make([]TraceTag, len(tags))
	index := make(map[int64]int, len(tags))
	for i, t := range tags {
		timeline[i] = TraceTag{
			Ordinal:    t.Ordinal,
			TimeNs:     t.Tag.Time,
			Microstep:  t.Tag.Microstep,
			Schedule:   t.ScheduleIndex,
			Executions: []TraceExecution{},
		}
		index[t.Ordinal] = i
	}

	stats := TraceStats{Tags: len(tags), PerWorker: map[int]int{}}
	for _, e := range execs {
		if reactionName != "" && e.ReactionName != reactionName {
			continue
		}
		i, ok := index[e.TagOrdinal]
		if !ok {
			continue
		}
		timeline[i].Executions = append(timeline[i].Executions, TraceExecution{
			Seq:          e.Seq,
			Worker:       e.Worker,
			ReactionID:   e.ReactionID,
			ReactionName: e.ReactionName,
		})
		stats.Executions++
		stats.PerWorker[e.Worker]++
	}

	return TraceResult{Run: run, Timeline: timeline, Stats: stats}
}

func outputRunList(cmd *cobra.Command, opts *TraceOptions, runs []ir.RunRecord) error {
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: RunList{Runs: runs}})
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	fmt.Fprintf(w, "%d run(s):\n", len(runs))
	for _, r := range runs {
		fmt.Fprintf(w, "  %s  %s (%d workers) %s\n", r.ID, r.ProgramName, r.Workers, truncateID(r.ProgramHash))
	}
	return nil
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	return writeJSON(cmd.OutOrStdout(), CLIResponse{
		Status: "ok",
		Data:   result,
	})
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Trace for Run: %s\n", result.Run.ID)
	fmt.Fprintf(w, "Program: %s (%s)\n", result.Run.ProgramName, truncateID(result.Run.ProgramHash))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no tags)")
	}
	for _, t := range result.Timeline {
		fmt.Fprintf(w, "  [%d] (%d, %d) schedule %d\n", t.Ordinal, t.TimeNs, t.Microstep, t.Schedule)
		for _, e := range t.Executions {
			fmt.Fprintf(w, "       #%d w%d %s\n", e.Seq, e.Worker, e.ReactionName)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Tags:       %d\n", result.Stats.Tags)
	fmt.Fprintf(w, "  Executions: %d\n", result.Stats.Executions)
	fmt.Fprintf(w, "  Per Worker: %s\n", formatPerWorker(result.Stats.PerWorker))

	return nil
}

// formatPerWorker formats dispatch counts in worker order.
func formatPerWorker(counts map[int]int) string {
	if len(counts) == 0 {
		return "{}"
	}
	workers := make([]int, 0, len(counts))
	for w := range counts {
		workers = append(workers, w)
	}
	sort.Ints(workers)

	parts := make([]string, len(workers))
	for i, w := range workers {
		parts[i] = fmt.Sprintf("w%d=%d", w, counts[w])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
