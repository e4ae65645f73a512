package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/qsched/internal/ir"
	"github.com/roach88/qsched/internal/tag"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a run record with minimal required fields.
func createTestRun(id string) ir.RunRecord {
	return ir.RunRecord{
		ID:            id,
		ProgramName:   "test",
		ProgramHash:   "test-hash",
		Workers:       2,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
}

// createTestTag creates a tag record at (ordinal ms, 0).
func createTestTag(runID string, ordinal int64, schedule int) ir.TagRecord {
	return ir.TagRecord{
		RunID:         runID,
		Ordinal:       ordinal,
		Tag:           tag.Tag{Time: ordinal * 1_000_000},
		ScheduleIndex: schedule,
	}
}

// createTestExecution creates an execution record.
func createTestExecution(runID string, seq, ordinal int64, worker, reaction int) ir.ExecutionRecord {
	return ir.ExecutionRecord{
		RunID:        runID,
		Seq:          seq,
		TagOrdinal:   ordinal,
		Worker:       worker,
		ReactionID:   reaction,
		ReactionName: string(rune('a' + reaction)),
	}
}

// mustBeginRun writes a run or fails the test.
func mustBeginRun(t *testing.T, s *Store, id string) {
	t.Helper()
	if err := s.BeginRun(context.Background(), createTestRun(id)); err != nil {
		t.Fatalf("BeginRun(%q) failed: %v", id, err)
	}
}
