package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/qsched/internal/tag"
)

// EventScheduler accepts future-tag triggers from reaction bodies.
// Implemented by events.Queue.
type EventScheduler interface {
	Schedule(from tag.Tag, reaction int, delay time.Duration) error
}

// stopRequester is implemented by event schedulers that can end the run at
// the next barrier.
type stopRequester interface {
	RequestStop()
}

// FatalHandler receives errors that make the run unrecoverable. It is called
// once, after every worker has exited; the scheduler is already stopped.
type FatalHandler func(err error)

// Runtime is the reaction-execution driver: one goroutine per worker, each
// looping GetReadyReaction -> body -> DoneWithReaction until the scheduler
// stops.
type Runtime struct {
	s      *Scheduler
	events EventScheduler
	fatal  FatalHandler
	logger *slog.Logger

	executed atomic.Int64
	failed   atomic.Int64
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithFatalHandler sets the handler for fatal errors.
//
// Default: log at error level and exit the process with status 1.
// Tests install a handler that records the error instead.
func WithFatalHandler(h FatalHandler) RuntimeOption {
	return func(r *Runtime) {
		r.fatal = h
	}
}

// WithEventScheduler sets the target of Env.Schedule.
func WithEventScheduler(es EventScheduler) RuntimeOption {
	return func(r *Runtime) {
		r.events = es
	}
}

// WithRuntimeLogger sets the runtime's logger. Default: slog.Default().
func WithRuntimeLogger(l *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = l
	}
}

// NewRuntime creates a Runtime over an initialized scheduler.
func NewRuntime(s *Scheduler, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		s:      s,
		logger: slog.Default(),
	}
	r.fatal = r.exitOnFatal
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runtime) exitOnFatal(err error) {
	r.logger.Error("fatal scheduler error", "error", err)
	os.Exit(1)
}

// Run starts the workers and blocks until every worker has exited.
//
// Cancelling ctx does not interrupt running reactions. If the event
// scheduler supports it, cancellation requests a stop at the next barrier.
//
// An inconsistent completion stops the scheduler at once: no further
// instruction runs and no later tag starts. Returns the first fatal error
// (inconsistent completion, failed tag advance), or nil.
func (r *Runtime) Run(ctx context.Context) error {
	workers := r.s.Workers()
	if workers == 0 {
		return newError(ErrCodeMissingParams, "scheduler is not initialized")
	}

	r.logger.Info("runtime starting", "program", r.s.Program().Name, "workers", workers)

	done := make(chan struct{})
	defer close(done)
	if sr, ok := r.events.(stopRequester); ok {
		go func() {
			select {
			case <-ctx.Done():
				r.logger.Info("runtime stopping: context cancelled")
				sr.RequestStop()
			case <-done:
			}
		}()
	}

	r.s.StartTag()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r.work(ctx, worker)
		}(w)
	}
	wg.Wait()

	r.logger.Info("runtime stopped",
		"executed", r.executed.Load(),
		"failed", r.failed.Load(),
		"tags", r.s.CurrentTag().Ordinal+1,
	)

	if err := r.s.Err(); err != nil {
		r.fatal(err)
		return err
	}
	return nil
}

func (r *Runtime) work(ctx context.Context, worker int) {
	for {
		reaction := r.s.GetReadyReaction(worker)
		if reaction == nil {
			return
		}

		info := r.s.CurrentTag()
		err := r.execute(ctx, worker, info, reaction)
		r.s.observer.ReactionFinished(worker, info, reaction, err)
		r.executed.Add(1)
		if err != nil {
			r.failed.Add(1)
			r.logger.Warn("reaction failed",
				"reaction", reaction.Name,
				"id", reaction.ID,
				"worker", worker,
				"tag", info.Tag,
				"error", err,
			)
		}

		if err := r.s.DoneWithReaction(worker, reaction); err != nil {
			r.s.fail(worker, err)
			return
		}
	}
}

// execute runs the body, turning a panic into an error.
func (r *Runtime) execute(ctx context.Context, worker int, info TagInfo, reaction *Reaction) (err error) {
	if reaction.Body == nil {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("reaction %s panicked: %v", reaction, p)
		}
	}()
	env := &Env{s: r.s, events: r.events, worker: worker, info: info}
	return reaction.Body(ctx, env)
}

// Executed returns the number of reaction bodies run.
func (r *Runtime) Executed() int64 { return r.executed.Load() }

// Failed returns the number of reaction bodies that returned an error.
func (r *Runtime) Failed() int64 { return r.failed.Load() }

// ErrNoEventScheduler is returned by Env.Schedule when the runtime has no
// event scheduler.
var ErrNoEventScheduler = errors.New("no event scheduler configured")

// Env is a reaction body's view of the scheduler. Valid only for the
// duration of the body call.
type Env struct {
	s      *Scheduler
	events EventScheduler
	worker int
	info   TagInfo
}

// Tag returns the tag being executed.
func (e *Env) Tag() tag.Tag { return e.info.Tag }

// TagInfo returns the tag with its ordinal and schedule.
func (e *Env) TagInfo() TagInfo { return e.info }

// Worker returns the worker running the body.
func (e *Env) Worker() int { return e.worker }

// Trigger queues a downstream reaction at the current tag. It runs only if
// a later Execute for it remains in some worker's stream.
func (e *Env) Trigger(id int) error {
	return e.s.TriggerReaction(id, e.worker)
}

// Schedule queues a reaction at a future tag, delay after the current one.
// A zero delay means the next microstep.
func (e *Env) Schedule(id int, delay time.Duration) error {
	if e.events == nil {
		return ErrNoEventScheduler
	}
	return e.events.Schedule(e.info.Tag, id, delay)
}
