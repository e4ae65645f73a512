package store

import (
	"context"
	"fmt"

	"github.com/roach88/qsched/internal/ir"
)

// ReplayRun reassembles a recorded run into a RunTrace: every tag in
// ordinal order, each with its executions grouped by worker.
//
// Within one worker, executions are in seq order. Across workers the
// relative seq order depends on thread timing and is deliberately
// discarded; only per-worker order is fixed by the schedule.
func (s *Store) ReplayRun(ctx context.Context, runID string) (*ir.RunTrace, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("replay run: %w", err)
	}

	tags, err := s.ReadTags(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("replay run: %w", err)
	}

	execs, err := s.ReadExecutions(ctx, ExecutionFilter{RunID: runID})
	if err != nil {
		return nil, fmt.Errorf("replay run: %w", err)
	}

	trace := &ir.RunTrace{Run: run, Tags: make([]ir.TagTrace, len(tags))}
	byOrdinal := make(map[int64]*ir.TagTrace, len(tags))
	for i, t := range tags {
		trace.Tags[i] = ir.TagTrace{TagRecord: t, Workers: map[int][]ir.ExecutionRecord{}}
		byOrdinal[t.Ordinal] = &trace.Tags[i]
	}

	for _, e := range execs {
		tt, ok := byOrdinal[e.TagOrdinal]
		if !ok {
			return nil, fmt.Errorf("replay run: execution seq=%d references unknown tag ordinal %d", e.Seq, e.TagOrdinal)
		}
		tt.Workers[e.Worker] = append(tt.Workers[e.Worker], e)
	}

	return trace, nil
}

// LastSeq returns the highest execution seq recorded for a run, or 0 if the
// run has none. Used to continue numbering with engine.NewClockAt.
func (s *Store) LastSeq(ctx context.Context, runID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM executions WHERE run_id = ?
	`, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}
