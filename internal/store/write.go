package store

import (
	"context"
	"fmt"

	"github.com/roach88/qsched/internal/ir"
)

// BeginRun inserts a run record into the store.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
// Other constraint violations (e.g., NOT NULL) will still return errors.
func (s *Store) BeginRun(ctx context.Context, run ir.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, program_name, program_hash, workers, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.ProgramName,
		run.ProgramHash,
		run.Workers,
		run.EngineVersion,
		run.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// WriteTag inserts a tag record into the store.
// Uses ON CONFLICT DO NOTHING for idempotency.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) WriteTag(ctx context.Context, rec ir.TagRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tags
		(run_id, ordinal, time_ns, microstep, schedule_index)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		rec.RunID,
		rec.Ordinal,
		rec.Tag.Time,
		rec.Tag.Microstep,
		rec.ScheduleIndex,
	)
	if err != nil {
		return fmt.Errorf("write tag: %w", err)
	}
	return nil
}

// WriteExecution inserts an execution record into the store.
// Uses ON CONFLICT DO NOTHING for idempotency - a (run_id, seq) pair is
// written at most once.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) WriteExecution(ctx context.Context, rec ir.ExecutionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions
		(run_id, seq, tag_ordinal, worker, reaction_id, reaction_name)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		rec.RunID,
		rec.Seq,
		rec.TagOrdinal,
		rec.Worker,
		rec.ReactionID,
		rec.ReactionName,
	)
	if err != nil {
		return fmt.Errorf("write execution: %w", err)
	}
	return nil
}
