package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qsched/internal/testutil"
)

func TestRun_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Zero(t, result.Failed)
		})
	}
}

func TestRunWithGolden_Testdata(t *testing.T) {
	for _, name := range []string{"pipeline", "modes", "fanout"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/modes.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	firstJSON, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := Run(scenario)
		require.NoError(t, err)
		againJSON, err := Snapshot(scenario.Name, again)
		require.NoError(t, err)
		assert.Equal(t, string(firstJSON), string(againJSON), "run %d", i)
	}
}

func TestRun_FailingAssertion(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/pipeline.yaml")
	require.NoError(t, err)
	scenario.Assertions = []Assertion{{Type: AssertTagCount, Count: 7}}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "7 tags")
}

func TestRun_InvalidProgram(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.cue")
	// Stream has no Stop.
	content := `program: {
	workers: 1
	reactions: [{name: "a"}]
	schedules: [{workers: [[{op: "e", arg: 0}]]}]
}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Run(&Scenario{Name: "bad", Program: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid program")
}

func TestRunProgram_Builder(t *testing.T) {
	p := testutil.NewProgram("tick", 1, "tick").
		Startup(0).
		Effect(0, 0, "1ms").
		Schedule("s0", nil, "e0 s").
		Build()

	result, err := RunProgram(&Scenario{Name: "tick", Timeout: "3ms", Assertions: []Assertion{
		{Type: AssertTagCount, Count: 4},
		{Type: AssertExecuted, Reaction: "tick", Count: 4},
	}}, p)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, int64(4), result.Executed)
	require.Len(t, result.Trace, 4)
	assert.Equal(t, int64(3_000_000), result.Trace[3].TimeNs)
	assert.Equal(t, "s0", result.Trace[3].Schedule)
}

func TestRunProgram_UnmatchedTriggerSet(t *testing.T) {
	// Reaction 1 fires alone at 1ms, but the only schedule wants {0}.
	p := testutil.NewProgram("strict", 1, "a", "b").
		Startup(0).
		Effect(0, 1, "1ms").
		Schedule("only_a", []int{0}, "e0 e1 s").
		Build()

	result, err := RunProgram(&Scenario{Name: "strict", Assertions: []Assertion{{Type: AssertTagCount, Count: 1}}}, p)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "run failed")
}

func TestRunProgram_InconsistentCompletionEndsRun(t *testing.T) {
	// Both workers execute "tick" at the start tag, and its periodic effect
	// keeps the event queue non-empty. Without a timeout only the fatal
	// completion can end the run.
	p := testutil.NewProgram("dup", 2, "tick").
		Startup(0).
		Effect(0, 0, "1ms").
		Schedule("s0", nil, "e0 s", "e0 s").
		Build()

	done := make(chan struct{})
	var result *Result
	var err error
	go func() {
		defer close(done)
		result, err = RunProgram(&Scenario{Name: "dup", Assertions: []Assertion{{Type: AssertTagCount, Count: 1}}}, p)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after an inconsistent completion")
	}
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "run failed")
}
