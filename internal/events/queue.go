// Package events implements the pending-event queue that drives logical
// time: future-tag triggers are kept in a min-heap by tag, and at every
// barrier the earliest tag is popped, the schedule matching its trigger set
// is selected and its reactions are queued.
package events

import (
	"container/heap"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/qsched/internal/engine"
	"github.com/roach88/qsched/internal/ir"
	"github.com/roach88/qsched/internal/tag"
)

// ErrNoSchedule is returned when no static schedule matches a trigger set
// and the program has no fallback schedule.
var ErrNoSchedule = errors.New("no schedule for trigger set")

// Queue is the pending-event queue. It implements engine.TagAdvancer and
// engine.EventScheduler.
//
// Thread-safety: Schedule and RequestStop are safe from any goroutine.
// AdvanceTag is called by the scheduler under its global lock.
type Queue struct {
	mu       sync.Mutex
	program  *ir.Program
	pending  eventHeap
	seq      uint64
	last     tag.Tag
	timeout  tag.Tag
	stop     bool
	advanced int64

	logger *slog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithTimeout sets the last logical time of the run. Events after start+d
// are never processed; events at exactly start+d are.
func WithTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = tag.Zero.Delay(d)
		}
	}
}

// WithLogger sets the queue's logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = l
	}
}

// New creates an empty queue for p. Without WithTimeout the run lasts until
// the queue drains.
func New(p *ir.Program, opts ...Option) *Queue {
	q := &Queue{
		program: p,
		timeout: tag.Forever,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Startup queues the program's startup reactions on s and binds the schedule
// whose pattern matches them. Call after s.Init and before the workers start.
func (q *Queue) Startup(s *engine.Scheduler) error {
	startup := ir.NormalizeSet(q.program.Startup)
	for _, id := range startup {
		if err := s.TriggerReaction(id, engine.AnonymousWorker); err != nil {
			return fmt.Errorf("startup: %w", err)
		}
	}

	idx, ok := q.program.ScheduleFor(startup)
	if !ok {
		return fmt.Errorf("startup %v: %w", startup, ErrNoSchedule)
	}
	if err := s.SelectSchedule(idx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	q.logger.Debug("startup", "reactions", startup, "schedule", q.program.Schedules[idx].Name)
	return nil
}

// Schedule queues reaction at from+delay. A zero delay queues it at the next
// microstep.
func (q *Queue) Schedule(from tag.Tag, reaction int, delay time.Duration) error {
	if reaction < 0 || reaction >= len(q.program.Reactions) {
		return fmt.Errorf("schedule unknown reaction %d", reaction)
	}
	at := from.Delay(delay)

	q.mu.Lock()
	defer q.mu.Unlock()

	if !at.After(q.last) {
		return fmt.Errorf("schedule reaction %d at %s: not after current tag %s", reaction, at, q.last)
	}
	q.seq++
	heap.Push(&q.pending, event{at: at, reaction: reaction, seq: q.seq})
	return nil
}

// RequestStop makes the next barrier terminal.
func (q *Queue) RequestStop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stop = true
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// Advanced returns the number of tags the queue has moved to.
func (q *Queue) Advanced() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.advanced
}

// AdvanceTag pops every event at the earliest pending tag, moves the
// scheduler there, selects the schedule for the popped trigger set and
// queues its reactions. Terminal when a stop was requested, nothing is
// pending, or the earliest tag is past the timeout.
func (q *Queue) AdvanceTag(tr *engine.Transition) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stop {
		q.logger.Debug("stop requested", "tag", tr.Tag())
		return true, nil
	}
	if q.pending.Len() == 0 {
		return true, nil
	}
	next := q.pending[0].at
	if next.After(q.timeout) {
		q.logger.Debug("timeout reached", "next", next, "timeout", q.timeout)
		return true, nil
	}

	var triggered []int
	for q.pending.Len() > 0 && q.pending[0].at == next {
		ev := heap.Pop(&q.pending).(event)
		triggered = append(triggered, ev.reaction)
	}
	triggered = ir.NormalizeSet(triggered)

	if err := tr.SetTag(next); err != nil {
		return false, err
	}
	idx, ok := q.program.ScheduleFor(triggered)
	if !ok {
		return false, fmt.Errorf("tag %s, triggers %v: %w", next, triggered, ErrNoSchedule)
	}
	if err := tr.SelectSchedule(idx); err != nil {
		return false, err
	}
	for _, id := range triggered {
		if err := tr.Trigger(id); err != nil {
			return false, err
		}
	}

	q.last = next
	q.advanced++
	return false, nil
}

type event struct {
	at       tag.Tag
	reaction int
	seq      uint64
}

// eventHeap orders events by tag, then by insertion.
type eventHeap []event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if c := h[i].at.Compare(h[j].at); c != 0 {
		return c < 0
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(event)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	*h = old[:n-1]
	return ev
}
