package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/qsched/internal/ir"
)

func testProgram(workers, reactionCount, sems int, schedules ...ir.Schedule) *ir.Program {
	p := &ir.Program{
		Name:          "test",
		Workers:       workers,
		ReactionCount: reactionCount,
		NumSemaphores: sems,
		Schedules:     schedules,
	}
	for i := 0; i < reactionCount; i++ {
		p.Reactions = append(p.Reactions, ir.ReactionDecl{ID: i, Name: string(rune('a' + i))})
	}
	return p
}

func testSchedule(name string, streams ...ir.Stream) ir.Schedule {
	return ir.Schedule{Name: name, Streams: streams}
}

func idle() ir.Stream { return ir.MustStream(ir.Stop()) }

// newTestScheduler initializes a scheduler over p and returns its reaction
// table.
func newTestScheduler(t *testing.T, p *ir.Program, adv TagAdvancer, opts ...Option) (*Scheduler, []*Reaction) {
	t.Helper()
	table := NewReactionTable(p)
	s := New(opts...)
	require.NoError(t, s.Init(p.Workers, &Params{Program: p, Reactions: table, Advancer: adv}))
	t.Cleanup(s.Teardown)
	return s, table
}

// runWithTimeout runs rt and fails the test if the workers do not all exit.
func runWithTimeout(t *testing.T, rt *Runtime) error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- rt.Run(context.Background()) }()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop: deadlock")
		return nil
	}
}

// captureFatal returns a runtime option that records fatal errors instead
// of exiting.
func captureFatal(errs *[]error) RuntimeOption {
	var mu sync.Mutex
	return WithFatalHandler(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		*errs = append(*errs, err)
	})
}

type execution struct {
	Worker   int
	Reaction int
	Ordinal  int64
	Schedule int
}

// recorder is an Observer that keeps every event.
type recorder struct {
	mu       sync.Mutex
	tags     []TagInfo
	started  []execution
	finished []error
	skipped  []execution
	idle     map[int]int
}

func newRecorder() *recorder {
	return &recorder{idle: make(map[int]int)}
}

func (r *recorder) TagAdvanced(info TagInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = append(r.tags, info)
}

func (r *recorder) ReactionStarted(worker int, info TagInfo, re *Reaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, execution{worker, re.ID, info.Ordinal, info.Schedule})
}

func (r *recorder) ReactionFinished(_ int, _ TagInfo, _ *Reaction, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, err)
}

func (r *recorder) ReactionSkipped(worker int, info TagInfo, reaction int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped = append(r.skipped, execution{worker, reaction, info.Ordinal, info.Schedule})
}

func (r *recorder) WorkerIdle(worker int, _ TagInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idle[worker]++
}

// byTagAndWorker groups started reactions as [ordinal][worker] -> ids.
func (r *recorder) byTagAndWorker() map[int64]map[int][]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64]map[int][]int)
	for _, e := range r.started {
		if out[e.Ordinal] == nil {
			out[e.Ordinal] = make(map[int][]int)
		}
		out[e.Ordinal][e.Worker] = append(out[e.Ordinal][e.Worker], e.Reaction)
	}
	return out
}

// retrigger returns an advancer that queues ids at every barrier and stops
// after n barriers.
func retrigger(n int, ids ...int) TagAdvancer {
	remaining := n
	return AdvancerFunc(func(tr *Transition) (bool, error) {
		if remaining <= 0 {
			return true, nil
		}
		remaining--
		for _, id := range ids {
			if err := tr.Trigger(id); err != nil {
				return false, err
			}
		}
		return false, nil
	})
}
