package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/qsched/internal/engine"
	"github.com/roach88/qsched/internal/ir"
)

// Tracer records a scheduler run into a Store. It implements
// engine.Observer: every bound tag becomes a tag row and every reaction
// handed to a worker becomes an execution row.
//
// Workers only enqueue; one writer goroutine owns the database, so
// persistence never stalls the schedule.
type Tracer struct {
	engine.NopObserver

	store  *Store
	runID  string
	seq    *engine.Clock
	queue  *recordQueue
	logger *slog.Logger

	done chan struct{}

	errMu   sync.Mutex
	err     error
	dropped int
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithTracerLogger sets the logger used for write failures.
func WithTracerLogger(l *slog.Logger) TracerOption {
	return func(t *Tracer) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithSeqClock continues execution numbering from an existing clock, e.g.
// engine.NewClockAt(lastSeq).
func WithSeqClock(c *engine.Clock) TracerOption {
	return func(t *Tracer) {
		if c != nil {
			t.seq = c
		}
	}
}

// NewTracer records run into st and starts the writer goroutine.
// The run record is written synchronously so a bad store fails fast.
// Callers must Close the tracer after the scheduler returns.
func NewTracer(ctx context.Context, st *Store, run ir.RunRecord, opts ...TracerOption) (*Tracer, error) {
	if err := st.BeginRun(ctx, run); err != nil {
		return nil, err
	}

	t := &Tracer{
		store:  st,
		runID:  run.ID,
		seq:    engine.NewClock(),
		queue:  newRecordQueue(),
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	go t.write(context.WithoutCancel(ctx))
	return t, nil
}

// RunID returns the id of the run being recorded.
func (t *Tracer) RunID() string { return t.runID }

// TagAdvanced implements engine.Observer.
func (t *Tracer) TagAdvanced(info engine.TagInfo) {
	t.enqueue(record{kind: recordTag, tag: ir.TagRecord{
		RunID:         t.runID,
		Ordinal:       info.Ordinal,
		Tag:           info.Tag,
		ScheduleIndex: info.Schedule,
	}})
}

// ReactionStarted implements engine.Observer.
func (t *Tracer) ReactionStarted(worker int, info engine.TagInfo, r *engine.Reaction) {
	t.enqueue(record{kind: recordExecution, execution: ir.ExecutionRecord{
		RunID:        t.runID,
		Seq:          t.seq.Next(),
		TagOrdinal:   info.Ordinal,
		Worker:       worker,
		ReactionID:   r.ID,
		ReactionName: r.Name,
	}})
}

func (t *Tracer) enqueue(r record) {
	if !t.queue.Enqueue(r) {
		t.errMu.Lock()
		t.dropped++
		t.errMu.Unlock()
	}
}

func (t *Tracer) write(ctx context.Context) {
	defer close(t.done)
	for {
		r, ok := t.queue.Dequeue()
		if !ok {
			return
		}

		var err error
		switch r.kind {
		case recordTag:
			err = t.store.WriteTag(ctx, r.tag)
		case recordExecution:
			err = t.store.WriteExecution(ctx, r.execution)
		}
		if err != nil {
			t.logger.Error("trace write failed", "run_id", t.runID, "error", err)
			t.errMu.Lock()
			if t.err == nil {
				t.err = err
			}
			t.errMu.Unlock()
		}
	}
}

// Close stops accepting records, waits for the writer to drain the queue
// and returns the first write error. Records observed after Close are
// dropped and reported.
func (t *Tracer) Close() error {
	t.queue.Close()
	<-t.done

	t.errMu.Lock()
	defer t.errMu.Unlock()
	if t.err != nil {
		return t.err
	}
	if t.dropped > 0 {
		return fmt.Errorf("tracer: %d records dropped after close", t.dropped)
	}
	return nil
}
