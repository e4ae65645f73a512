package ir

import "github.com/roach88/qsched/internal/tag"

// NOTE: These are trace-store records, not part of the program.
// Ordering uses the logical seq, never wall-clock time.

// RunRecord identifies one execution of a program.
type RunRecord struct {
	ID            string `json:"id"`
	ProgramName   string `json:"program_name"`
	ProgramHash   string `json:"program_hash"`
	Workers       int    `json:"workers"`
	EngineVersion string `json:"engine_version"`
	IRVersion     string `json:"ir_version"`
}

// TagRecord is one tag the run passed through. Ordinal 0 is the start tag.
type TagRecord struct {
	RunID         string  `json:"run_id"`
	Ordinal       int64   `json:"ordinal"`
	Tag           tag.Tag `json:"tag"`
	ScheduleIndex int     `json:"schedule_index"`
}

// ExecutionRecord is one reaction handed to a worker.
type ExecutionRecord struct {
	RunID        string `json:"run_id"`
	Seq          int64  `json:"seq"`
	TagOrdinal   int64  `json:"tag_ordinal"`
	Worker       int    `json:"worker"`
	ReactionID   int    `json:"reaction_id"`
	ReactionName string `json:"reaction_name"`
}

// TagTrace groups a tag with the executions of each worker, each worker's
// list in dispatch order.
type TagTrace struct {
	TagRecord
	Workers map[int][]ExecutionRecord `json:"workers"`
}

// RunTrace is a full recorded run.
type RunTrace struct {
	Run  RunRecord  `json:"run"`
	Tags []TagTrace `json:"tags"`
}
