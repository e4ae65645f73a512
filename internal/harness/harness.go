package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/qsched/internal/compiler"
	"github.com/roach88/qsched/internal/engine"
	"github.com/roach88/qsched/internal/events"
	"github.com/roach88/qsched/internal/ir"
	"github.com/roach88/qsched/internal/reactor"
	"github.com/roach88/qsched/internal/store"
	"github.com/roach88/qsched/internal/testutil"
)

// DefaultDeadline bounds the wall-clock time of one scenario. When it
// expires the run is asked to stop at the next barrier.
const DefaultDeadline = 10 * time.Second

// Harness is the test execution engine.
// It runs one scenario against the real scheduler with a fixed run id and
// an isolated in-memory trace store.
type Harness struct {
	store    *store.Store
	program  *ir.Program
	hash     string
	runIDGen engine.RunIDGenerator
	logger   *slog.Logger
	deadline time.Duration
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger passed to the scheduler and event queue.
// Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithDeadline overrides DefaultDeadline.
func WithDeadline(d time.Duration) Option {
	return func(h *Harness) {
		if d > 0 {
			h.deadline = d
		}
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Load and validate the program
// 2. Run it to completion with scripted reaction bodies
// 3. Replay the recorded trace from the store
// 4. Evaluate assertions against the trace
//
// Returns an error only when the scenario could not be run at all; a run
// that stops on a fatal scheduler error yields a failed Result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	p, err := compiler.Load(scenario.Program)
	if err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}
	if err := compiler.Errors(compiler.Validate(p)); err != nil {
		return nil, fmt.Errorf("invalid program: %w", err)
	}
	return RunProgram(scenario, p, opts...)
}

// RunProgram is Run with an already loaded program. scenario.Program is
// ignored.
func RunProgram(scenario *Scenario, p *ir.Program, opts ...Option) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	hash, err := ir.ProgramHash(p)
	if err != nil {
		return nil, fmt.Errorf("failed to hash program: %w", err)
	}

	h := &Harness{
		store:    st,
		program:  p,
		hash:     hash,
		runIDGen: testutil.NewFixedRunIDGenerator(scenario.RunID),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		deadline: DefaultDeadline,
	}
	for _, opt := range opts {
		opt(h)
	}

	timeout, err := scenario.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	result := NewResult()
	result.ProgramHash = hash

	trace, err := h.execute(timeout, result)
	if err != nil {
		return nil, err
	}

	for _, tt := range trace.Tags {
		result.AddTag(p, tt)
	}
	if err := engine.VerifyTrace(p, trace); err != nil {
		result.AddError(err.Error())
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// execute runs the program once and returns the trace read back from the
// store.
func (h *Harness) execute(timeout time.Duration, result *Result) (*ir.RunTrace, error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.deadline)
	defer cancel()

	runID := h.runIDGen.Generate()
	tracer, err := store.NewTracer(ctx, h.store, ir.RunRecord{
		ID:            runID,
		ProgramName:   h.program.Name,
		ProgramHash:   h.hash,
		Workers:       h.program.Workers,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}, store.WithTracerLogger(h.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to start trace: %w", err)
	}

	queue := events.New(h.program, events.WithTimeout(timeout), events.WithLogger(h.logger))
	s := engine.New(engine.WithObserver(tracer), engine.WithLogger(h.logger))
	params := &engine.Params{
		Program:   h.program,
		Reactions: reactor.NewTable(h.program),
		Advancer:  queue,
	}
	if err := s.Init(h.program.Workers, params); err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to init scheduler: %w", err)
	}
	defer s.Teardown()

	if err := queue.Startup(s); err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to start program: %w", err)
	}

	var mu sync.Mutex
	var fatal []error
	rt := engine.NewRuntime(s,
		engine.WithEventScheduler(queue),
		engine.WithRuntimeLogger(h.logger),
		engine.WithFatalHandler(func(err error) {
			mu.Lock()
			defer mu.Unlock()
			fatal = append(fatal, err)
		}),
	)

	runErr := rt.Run(ctx)
	if err := tracer.Close(); err != nil {
		return nil, fmt.Errorf("failed to record trace: %w", err)
	}

	result.Executed = rt.Executed()
	result.Failed = rt.Failed()
	if runErr != nil {
		result.AddError(fmt.Sprintf("run failed: %v", runErr))
	}
	if ctx.Err() != nil {
		result.AddError(fmt.Sprintf("run exceeded deadline of %s", h.deadline))
	}

	h.logger.Info("scenario run complete",
		"run_id", runID,
		"program", h.program.Name,
		"tags", queue.Advanced()+1,
		"executed", result.Executed,
		"fatal", len(fatal),
	)

	trace, err := h.store.ReplayRun(context.Background(), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to replay trace: %w", err)
	}
	return trace, nil
}
