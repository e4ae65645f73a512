package engine

import (
	"github.com/roach88/qsched/internal/ir"
)

// GetReadyReaction runs worker's instruction stream until it reaches an
// Execute of a queued reaction, and returns that reaction with the program
// counter left one past the Execute. Returns nil once the scheduler has
// stopped; the worker should then exit its loop.
//
// Wait blocks on the dependency semaphore, Notify releases it, and Stop
// enters the idle barrier, which returns once this worker has work at a new
// tag or the run is over.
func (s *Scheduler) GetReadyReaction(worker int) *Reaction {
	for !s.stop.Load() {
		stream := s.program.Schedules[s.active.Load()].Streams[worker]
		pc := s.pcs[worker]

		inst, ok := stream.At(pc)
		if !ok {
			// Past the declared length without a Stop: the stream is
			// exhausted for this tag.
			s.waitForWork(worker)
			continue
		}
		s.pcs[worker] = pc + 1

		switch inst.Op {
		case ir.OpExecute:
			r := s.reactions[inst.Operand]
			if r.Status() == StatusQueued {
				s.observer.ReactionStarted(worker, s.CurrentTag(), r)
				return r
			}
			s.observer.ReactionSkipped(worker, s.CurrentTag(), inst.Operand)

		case ir.OpWait:
			s.sems[inst.Operand].Acquire()

		case ir.OpNotify:
			s.sems[inst.Operand].Release()

		case ir.OpStop:
			s.waitForWork(worker)

		default:
			s.logger.Error("unknown opcode, skipping",
				"worker", worker,
				"pc", pc,
				"op", byte(inst.Op),
			)
		}
	}
	return nil
}
