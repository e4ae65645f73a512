package engine

import (
	"fmt"

	"github.com/roach88/qsched/internal/ir"
	"github.com/roach88/qsched/internal/tag"
)

// TagAdvancer computes the next tag. It is called exactly once per tag, by
// the elected worker, while every other worker is idle and the global lock
// is held.
//
// AdvanceTag reports whether the terminal tag has been reached. When it has
// not, the advancer may move the tag forward with SetTag, pick the schedule
// for the new tag with SelectSchedule and queue the reactions triggered at
// the new tag with Trigger. Without SetTag the tag advances by one
// microstep; without SelectSchedule the active schedule stays bound.
type TagAdvancer interface {
	AdvanceTag(tr *Transition) (terminal bool, err error)
}

// AdvancerFunc adapts a function to TagAdvancer.
type AdvancerFunc func(tr *Transition) (bool, error)

// AdvanceTag calls f(tr).
func (f AdvancerFunc) AdvanceTag(tr *Transition) (bool, error) {
	return f(tr)
}

// TagInfo identifies one executed tag of a run.
type TagInfo struct {
	Tag      tag.Tag
	Ordinal  int64 // 0 for the first tag, +1 per barrier
	Schedule int
}

// Transition is the view of the scheduler handed to a TagAdvancer during
// one barrier. It must not be retained after AdvanceTag returns.
type Transition struct {
	s        *Scheduler
	current  tag.Tag
	next     tag.Tag
	schedule int
	err      error
}

// Tag returns the tag that just completed.
func (t *Transition) Tag() tag.Tag { return t.current }

// Next returns the tag the scheduler will move to.
func (t *Transition) Next() tag.Tag { return t.next }

// SetTag sets the next tag. It must be strictly after the completed tag.
func (t *Transition) SetTag(next tag.Tag) error {
	if !next.After(t.current) {
		err := newError(ErrCodeTagRegression,
			fmt.Sprintf("next tag %s is not after current tag %s", next, t.current))
		t.fail(err)
		return err
	}
	t.next = next
	return nil
}

// SelectSchedule binds schedule i for the next tag.
func (t *Transition) SelectSchedule(i int) error {
	if i < 0 || i >= len(t.s.program.Schedules) {
		err := newError(ErrCodeInvalidSchedule,
			fmt.Sprintf("schedule %d out of range [0, %d)", i, len(t.s.program.Schedules)))
		t.fail(err)
		return err
	}
	t.schedule = i
	return nil
}

// Schedule returns the schedule index that will be bound.
func (t *Transition) Schedule() int { return t.schedule }

// ScheduleCount returns the number of static schedules in the program.
func (t *Transition) ScheduleCount() int { return len(t.s.program.Schedules) }

// Program returns the bound program.
func (t *Transition) Program() *ir.Program { return t.s.program }

// Trigger queues a reaction for the next tag.
func (t *Transition) Trigger(id int) error {
	if err := t.s.TriggerReaction(id, AnonymousWorker); err != nil {
		t.fail(err)
		return err
	}
	return nil
}

func (t *Transition) fail(err error) {
	if t.err == nil {
		t.err = err
	}
}

// StopAfter returns an advancer that reaches the terminal tag after n
// barriers, keeping the active schedule and moving one microstep per tag.
// StopAfter(0) stops at the first barrier.
func StopAfter(n int) TagAdvancer {
	remaining := n
	return AdvancerFunc(func(*Transition) (bool, error) {
		if remaining <= 0 {
			return true, nil
		}
		remaining--
		return false, nil
	})
}
