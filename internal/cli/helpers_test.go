package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qsched/internal/engine"
)

// pipelineProgram runs source on worker 0 and sink on worker 1 every 10ms.
// With a 20ms timeout it passes through 3 tags.
const pipelineProgram = `
program: {
	name:           "pipeline"
	workers:        2
	num_semaphores: 1
	reactions: [
		{name: "source", triggers: [1], effects: [{reaction: 0, delay: "10ms"}]},
		{name: "sink"},
	]
	startup: [0]
	schedules: [{
		name:    "steady"
		pattern: [0]
		workers: [
			[{op: "e", arg: 0}, {op: "n", arg: 0}, {op: "s"}],
			[{op: "w", arg: 0}, {op: "e", arg: 1}, {op: "s"}],
		]
	}]
}
`

// fanoutProgram is a single-tag program in JSON form. Reaction "never" is
// scheduled but never triggered.
const fanoutProgram = `{
  "name": "fanout",
  "workers": 3,
  "num_semaphores": 2,
  "reactions": [
    {"name": "root", "triggers": [1, 2]},
    {"name": "left"},
    {"name": "right"},
    {"name": "never"}
  ],
  "startup": [0],
  "schedules": [{
    "name": "once",
    "pattern": [0],
    "workers": [
      [{"op": "e", "arg": 0}, {"op": "n", "arg": 0}, {"op": "n", "arg": 1}, {"op": "s"}],
      [{"op": "w", "arg": 0}, {"op": "e", "arg": 1}, {"op": "e", "arg": 3}, {"op": "s"}],
      [{"op": "w", "arg": 1}, {"op": "e", "arg": 2}, {"op": "s"}]
    ]
  }]
}`

// brokenProgram has a stream without a stop and a reaction operand out of
// range.
const brokenProgram = `
program: {
	name:    "broken"
	workers: 1
	reactions: [{name: "only"}]
	schedules: [{workers: [[{op: "e", arg: 7}]]}]
}
`

func writeProgram(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// executeCommand runs cmd with args and returns what it wrote to stdout.
// Log output goes to a separate buffer.
func executeCommand(cmd *cobra.Command, args ...string) (string, error) {
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// recordRun runs the program at programPath into dbPath under runID.
func recordRun(t *testing.T, programPath, dbPath, runID string, extraArgs ...string) {
	t.Helper()
	opts := &RunOptions{
		RootOptions:    &RootOptions{Format: "text"},
		RunIDGenerator: engine.NewFixedGenerator(runID),
	}
	args := append([]string{"--db", dbPath}, extraArgs...)
	args = append(args, programPath)
	_, err := executeCommand(newRunCommand(opts), args...)
	require.NoError(t, err)
}
