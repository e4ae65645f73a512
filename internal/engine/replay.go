package engine

// # Replay and Verification
//
// A stored run can be checked against the program that produced it. Nothing
// is re-executed: the static schedules already determine every order a run
// may exhibit, so verification is structural.
//
// ## What a Trace Must Satisfy
//
//  1. Program identity
//
//	run.program_hash == ir.ProgramHash(program)
//
//  2. Schedule binding
//
//	every tag's schedule index is in range
//
//  3. Per-worker order
//
//	the reactions a worker executed at a tag are a subsequence of the
//	Execute operands of that worker's stream in the bound schedule
//
// Skipped Executes leave holes, which is why the check is "subsequence"
// and not "equal".
//
// ## Tag Order
//
//	tags are strictly increasing by ordinal and by tag value
//
// ## Key Functions
//
//   - VerifyTrace: runs every check, returns the first violation
//   - store.ReplayRun: loads an ir.RunTrace from SQLite

import (
	"fmt"

	"github.com/roach88/qsched/internal/ir"
)

// TraceError describes the first place a stored run disagrees with its
// program.
type TraceError struct {
	TagOrdinal int64
	Worker     int
	Message    string
}

func (e *TraceError) Error() string {
	if e.TagOrdinal < 0 {
		return fmt.Sprintf("trace mismatch: %s", e.Message)
	}
	if e.Worker < 0 {
		return fmt.Sprintf("trace mismatch at tag %d: %s", e.TagOrdinal, e.Message)
	}
	return fmt.Sprintf("trace mismatch at tag %d, worker %d: %s", e.TagOrdinal, e.Worker, e.Message)
}

// VerifyTrace checks a recorded run against p.
func VerifyTrace(p *ir.Program, trace *ir.RunTrace) error {
	if trace == nil {
		return &TraceError{TagOrdinal: -1, Worker: -1, Message: "no trace"}
	}

	hash, err := ir.ProgramHash(p)
	if err != nil {
		return fmt.Errorf("hash program: %w", err)
	}
	if trace.Run.ProgramHash != hash {
		return &TraceError{
			TagOrdinal: -1,
			Worker:     -1,
			Message:    fmt.Sprintf("program hash %s does not match run %s (%s)", hash, trace.Run.ID, trace.Run.ProgramHash),
		}
	}

	for i, tt := range trace.Tags {
		if i > 0 {
			prev := trace.Tags[i-1]
			if tt.Ordinal <= prev.Ordinal || !tt.Tag.After(prev.Tag) {
				return &TraceError{
					TagOrdinal: tt.Ordinal,
					Worker:     -1,
					Message:    fmt.Sprintf("tag %s (ordinal %d) does not follow %s (ordinal %d)", tt.Tag, tt.Ordinal, prev.Tag, prev.Ordinal),
				}
			}
		}

		sched, ok := p.Schedule(tt.ScheduleIndex)
		if !ok {
			return &TraceError{
				TagOrdinal: tt.Ordinal,
				Worker:     -1,
				Message:    fmt.Sprintf("schedule %d out of range", tt.ScheduleIndex),
			}
		}

		for worker, execs := range tt.Workers {
			stream, ok := sched.Stream(worker)
			if !ok {
				return &TraceError{
					TagOrdinal: tt.Ordinal,
					Worker:     worker,
					Message:    fmt.Sprintf("worker out of range for schedule %q", sched.Name),
				}
			}
			got := make([]int, len(execs))
			for k, e := range execs {
				got[k] = e.ReactionID
			}
			if !isSubsequence(got, stream.Executes()) {
				return &TraceError{
					TagOrdinal: tt.Ordinal,
					Worker:     worker,
					Message:    fmt.Sprintf("executed %v is not an order of stream %s", got, stream),
				}
			}
		}
	}
	return nil
}

// isSubsequence reports whether sub appears in seq in order.
func isSubsequence(sub, seq []int) bool {
	j := 0
	for _, v := range seq {
		if j < len(sub) && sub[j] == v {
			j++
		}
	}
	return j == len(sub)
}
