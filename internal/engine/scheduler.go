package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/qsched/internal/ir"
	"github.com/roach88/qsched/internal/semaphore"
	"github.com/roach88/qsched/internal/tag"
)

// AnonymousWorker identifies callers that are not scheduler workers, such as
// the startup path or the tag advancer.
const AnonymousWorker = -1

// Params binds the externally generated artifacts to a Scheduler.
type Params struct {
	// Program holds the static schedules and sizing constants. Init checks
	// stream operands against ReactionCount and NumSemaphores; the rest of
	// compiler.Validate is not repeated.
	Program *ir.Program

	// Reactions is indexed by reaction id; len must equal
	// Program.ReactionCount.
	Reactions []*Reaction

	// Advancer decides the next tag and schedule at each barrier.
	Advancer TagAdvancer
}

// Scheduler is the process-wide state of one running program.
//
// Thread-safety model:
//   - Init/Teardown: serialized by the global lock; Teardown only after every
//     worker has exited
//   - GetReadyReaction(w): called only by worker w
//   - TriggerReaction/DoneWithReaction: safe from any goroutine
//   - SelectSchedule/ResetProgramCounters: only while no worker is running
//     (before start, or from the tag advancer during the barrier)
type Scheduler struct {
	mu          sync.Mutex // global lock: Init, election, tag advance
	initialized bool

	workers   int
	program   *ir.Program
	reactions []*Reaction
	advancer  TagAdvancer

	pcs    []int                  // per-worker program counters
	sems   []*semaphore.Semaphore // Wait/Notify dependency pool
	wake   []*semaphore.Semaphore // per-worker idle parking
	parked []bool                 // guarded by mu

	active  atomic.Int64 // active schedule index
	idle    atomic.Int64
	stop    atomic.Bool
	current atomic.Pointer[TagInfo]
	ordinal *Clock

	errMu sync.Mutex
	err   error

	logger   *slog.Logger
	observer Observer
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithObserver registers an observer. May be given more than once; all
// observers see every event in registration order.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		s.observer = Observers(s.observer, o)
	}
}

// New creates an uninitialized Scheduler. Call Init before use.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:   slog.Default(),
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init allocates the per-worker program counters and the semaphore pool and
// binds params. Idempotent: once initialized, later calls return nil without
// touching any state.
//
// Returns a RuntimeError with ErrCodeMissingParams if params (or its program,
// reaction table or advancer) is absent on the first call.
func (s *Scheduler) Init(workers int, params *Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	if err := checkParams(workers, params); err != nil {
		return err
	}

	s.workers = workers
	s.program = params.Program
	s.reactions = params.Reactions
	s.advancer = params.Advancer

	s.pcs = make([]int, workers)
	s.sems = semaphore.NewPool(params.Program.NumSemaphores)
	s.wake = semaphore.NewPool(workers)
	s.parked = make([]bool, workers)

	s.active.Store(0)
	s.idle.Store(0)
	s.stop.Store(false)
	s.ordinal = NewClock()
	s.current.Store(&TagInfo{Tag: tag.Zero})
	s.err = nil

	s.initialized = true
	s.logger.Debug("scheduler initialized",
		"program", params.Program.Name,
		"workers", workers,
		"reactions", len(params.Reactions),
		"semaphores", params.Program.NumSemaphores,
		"schedules", len(params.Program.Schedules),
	)
	return nil
}

func checkParams(workers int, params *Params) error {
	if params == nil {
		return newError(ErrCodeMissingParams, "init requires params")
	}
	if params.Program == nil {
		return newError(ErrCodeMissingParams, "init requires a program")
	}
	if params.Reactions == nil && params.Program.ReactionCount > 0 {
		return newError(ErrCodeMissingParams, "init requires a reaction table")
	}
	if params.Advancer == nil {
		return newError(ErrCodeMissingParams, "init requires a tag advancer")
	}

	p := params.Program
	if workers < 1 || workers != p.Workers {
		return newError(ErrCodeInvalidParams,
			fmt.Sprintf("worker count %d does not match program %q (%d workers)", workers, p.Name, p.Workers))
	}
	if len(params.Reactions) != p.ReactionCount {
		return newError(ErrCodeInvalidParams,
			fmt.Sprintf("reaction table has %d entries, program declares %d", len(params.Reactions), p.ReactionCount))
	}
	for i, r := range params.Reactions {
		if r == nil || r.ID != i {
			e := newError(ErrCodeInvalidReaction, fmt.Sprintf("reaction table entry %d is missing or has the wrong id", i))
			e.Reaction = i
			return e
		}
	}
	if len(p.Schedules) == 0 {
		return newError(ErrCodeInvalidSchedule, "program has no schedules")
	}
	for i, sched := range p.Schedules {
		if len(sched.Streams) != workers {
			return newError(ErrCodeInvalidSchedule,
				fmt.Sprintf("schedule %d has %d streams, want %d", i, len(sched.Streams), workers))
		}
		for w, st := range sched.Streams {
			if err := checkOperands(p, i, w, st); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkOperands rejects Execute operands outside the reaction table and
// Wait/Notify operands outside the semaphore pool. The interpreter indexes
// both without bounds checks.
func checkOperands(p *ir.Program, schedule, worker int, st ir.Stream) error {
	for pc, inst := range st.Instructions() {
		limit := -1
		switch inst.Op {
		case ir.OpExecute:
			limit = p.ReactionCount
		case ir.OpWait, ir.OpNotify:
			limit = p.NumSemaphores
		}
		if limit >= 0 && (inst.Operand < 0 || inst.Operand >= limit) {
			e := newError(ErrCodeInvalidSchedule,
				fmt.Sprintf("schedule %d worker %d pc %d: %s operand %d out of range [0, %d)",
					schedule, worker, pc, inst.Op, inst.Operand, limit))
			e.Worker = worker
			return e
		}
	}
	return nil
}

// Teardown releases the program counters, the semaphore pool and the
// reaction table. Only valid after every worker has exited. Init may be
// called again afterwards.
func (s *Scheduler) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pcs = nil
	s.sems = nil
	s.wake = nil
	s.parked = nil
	s.reactions = nil
	s.program = nil
	s.advancer = nil
	s.workers = 0
	s.initialized = false
}

// Initialized reports whether Init has bound a program.
func (s *Scheduler) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Workers returns the configured worker count.
func (s *Scheduler) Workers() int { return s.workers }

// Program returns the bound program.
func (s *Scheduler) Program() *ir.Program { return s.program }

// Reaction returns the reaction with the given id, or nil.
func (s *Scheduler) Reaction(id int) *Reaction {
	if id < 0 || id >= len(s.reactions) {
		return nil
	}
	return s.reactions[id]
}

// ActiveSchedule returns the index of the bound schedule.
func (s *Scheduler) ActiveSchedule() int {
	return int(s.active.Load())
}

// CurrentTag returns the tag the workers are executing.
func (s *Scheduler) CurrentTag() TagInfo {
	if info := s.current.Load(); info != nil {
		return *info
	}
	return TagInfo{}
}

// ProgramCounter returns worker w's program counter. Only meaningful when
// read by worker w itself or while no worker is running.
func (s *Scheduler) ProgramCounter(w int) int {
	return s.pcs[w]
}

// Stopped reports whether the terminal tag has been reached.
func (s *Scheduler) Stopped() bool {
	return s.stop.Load()
}

// Err returns the error that stopped the run early, if any.
func (s *Scheduler) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Scheduler) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// StartTag reports the initial tag to observers. Call once after startup
// triggers and schedule selection, before the workers start.
func (s *Scheduler) StartTag() {
	info := TagInfo{Tag: s.CurrentTag().Tag, Ordinal: s.ordinal.Current(), Schedule: s.ActiveSchedule()}
	s.current.Store(&info)
	s.observer.TagAdvanced(info)
}

// SelectSchedule binds schedule i as the active schedule. Program counters
// are not touched; the barrier resets them.
func (s *Scheduler) SelectSchedule(i int) error {
	if i < 0 || i >= len(s.program.Schedules) {
		return newError(ErrCodeInvalidSchedule,
			fmt.Sprintf("schedule %d out of range [0, %d)", i, len(s.program.Schedules)))
	}
	s.active.Store(int64(i))
	return nil
}

// ResetProgramCounters sets every program counter to 0.
func (s *Scheduler) ResetProgramCounters() {
	for w := range s.pcs {
		s.pcs[w] = 0
	}
}

// TriggerReaction marks a reaction ready to run. A reaction that is already
// queued stays queued. worker is AnonymousWorker for non-worker callers.
func (s *Scheduler) TriggerReaction(id, worker int) error {
	r := s.Reaction(id)
	if r == nil {
		e := newError(ErrCodeInvalidReaction, fmt.Sprintf("trigger of unknown reaction %d", id))
		e.Worker, e.Reaction = worker, id
		return e
	}
	if r.status.CompareAndSwap(int32(StatusInactive), int32(StatusQueued)) {
		s.logger.Debug("reaction triggered", "reaction", r.Name, "id", id, "worker", worker)
	}
	return nil
}

// DoneWithReaction marks a reaction finished. Returns an
// ErrCodeInconsistentCompletion RuntimeError if the reaction was not queued;
// that means the program and the runtime disagree and the run cannot
// continue.
func (s *Scheduler) DoneWithReaction(worker int, r *Reaction) error {
	if !r.status.CompareAndSwap(int32(StatusQueued), int32(StatusInactive)) {
		return NewInconsistentCompletionError(worker, r, r.Status())
	}
	return nil
}
