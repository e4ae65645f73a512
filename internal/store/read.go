package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/qsched/internal/ir"
)

// ErrRunNotFound is returned when a run id has no record.
var ErrRunNotFound = errors.New("run not found")

// ReadRun returns the run record for id.
// Returns an error wrapping ErrRunNotFound if no such run exists.
func (s *Store) ReadRun(ctx context.Context, id string) (ir.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, program_name, program_hash, workers, engine_version, ir_version
		FROM runs
		WHERE id = ?
	`, id)

	var run ir.RunRecord
	err := row.Scan(&run.ID, &run.ProgramName, &run.ProgramHash, &run.Workers, &run.EngineVersion, &run.IRVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.RunRecord{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return ir.RunRecord{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns every run, ordered by id. Run ids are UUIDv7 in
// production, so this is also start order.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context) ([]ir.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, program_name, program_hash, workers, engine_version, ir_version
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.RunRecord{}
	for rows.Next() {
		var run ir.RunRecord
		if err := rows.Scan(&run.ID, &run.ProgramName, &run.ProgramHash, &run.Workers, &run.EngineVersion, &run.IRVersion); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadTags returns the tags of a run in ordinal order.
//
// Returns an empty slice (not nil) if the run recorded no tags.
func (s *Store) ReadTags(ctx context.Context, runID string) ([]ir.TagRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, ordinal, time_ns, microstep, schedule_index
		FROM tags
		WHERE run_id = ?
		ORDER BY ordinal ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	tags := []ir.TagRecord{}
	for rows.Next() {
		var rec ir.TagRecord
		if err := rows.Scan(&rec.RunID, &rec.Ordinal, &rec.Tag.Time, &rec.Tag.Microstep, &rec.ScheduleIndex); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}

// ExecutionFilter narrows ReadExecutions. Nil fields match everything.
type ExecutionFilter struct {
	RunID    string
	Worker   *int
	Reaction *int
}

// ReadExecutions returns the executions of a run matching filter, ordered
// by seq.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadExecutions(ctx context.Context, filter ExecutionFilter) ([]ir.ExecutionRecord, error) {
	where := []string{"run_id = ?"}
	args := []any{filter.RunID}
	if filter.Worker != nil {
		where = append(where, "worker = ?")
		args = append(args, *filter.Worker)
	}
	if filter.Reaction != nil {
		where = append(where, "reaction_id = ?")
		args = append(args, *filter.Reaction)
	}

	query := `
		SELECT run_id, seq, tag_ordinal, worker, reaction_id, reaction_name
		FROM executions
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	execs := []ir.ExecutionRecord{}
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return execs, nil
}

func scanExecution(rows *sql.Rows) (ir.ExecutionRecord, error) {
	var rec ir.ExecutionRecord
	err := rows.Scan(&rec.RunID, &rec.Seq, &rec.TagOrdinal, &rec.Worker, &rec.ReactionID, &rec.ReactionName)
	if err != nil {
		return ir.ExecutionRecord{}, fmt.Errorf("scan execution: %w", err)
	}
	return rec, nil
}
