package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestProgram writes a one-worker program file for testing.
func createTestProgram(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "single.cue")
	content := `program: {
	name: "single"
	workers: 1
	reactions: [{name: "a"}]
	startup: [0]
	schedules: [{workers: [[{op: "e", arg: 0}, {op: "s"}]]}]
}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	createTestProgram(t, dir)

	path := writeScenario(t, dir, `
name: test_scenario
description: "Test scenario for validation"
program: single.cue
timeout: 5ms
run_id: run-fixed
assertions:
  - type: executed
    reaction: a
    count: 1
  - type: worker_order
    worker: 0
    tag: 0
    reactions: [a]
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, filepath.Join(dir, "single.cue"), scenario.Program)
	assert.Equal(t, "run-fixed", scenario.RunID)
	require.Len(t, scenario.Assertions, 2)
	assert.Equal(t, []string{"a"}, scenario.Assertions[1].Reactions)

	d, err := scenario.TimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Millisecond, d)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	dir := t.TempDir()
	createTestProgram(t, dir)

	path := writeScenario(t, dir, `
name: typo
description: "assertion instead of assertions"
program: single.cue
assertion:
  - type: tag_count
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_ProgramNotFound(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, `
name: missing
description: "program does not exist"
program: nope.cue
assertions:
  - type: tag_count
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "program not found")
}

func TestValidateScenario(t *testing.T) {
	base := func() *Scenario {
		return &Scenario{
			Name:        "s",
			Description: "d",
			Program:     "p.cue",
			Assertions:  []Assertion{{Type: AssertTagCount, Count: 1}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Scenario)
		errMsg string
	}{
		{"valid", func(*Scenario) {}, ""},
		{"missing name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"missing description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"missing program", func(s *Scenario) { s.Program = "" }, "program is required"},
		{"bad timeout", func(s *Scenario) { s.Timeout = "soon" }, "timeout"},
		{"negative timeout", func(s *Scenario) { s.Timeout = "-1ms" }, "non-negative"},
		{"no assertions", func(s *Scenario) { s.Assertions = nil }, "assertions list is required"},
		{"missing type", func(s *Scenario) { s.Assertions = []Assertion{{}} }, "type is required"},
		{"unknown type", func(s *Scenario) { s.Assertions = []Assertion{{Type: "trace_contains"}} }, "unknown assertion type"},
		{"executed without reaction", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertExecuted}} }, "reaction is required"},
		{"not_executed without reaction", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertNotExecuted}} }, "reaction is required"},
		{"worker_order without reactions", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertWorkerOrder}} }, "reactions list is required"},
		{"negative count", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertTagCount, Count: -1}} }, "non-negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(s)
			err := validateScenario(s)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			require.NoError(t, err)
		})
	}
}
