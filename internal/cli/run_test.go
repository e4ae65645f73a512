package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qsched/internal/engine"
	"github.com/roach88/qsched/internal/ir"
	"github.com/roach88/qsched/internal/store"
)

func newTestRunOptions(format string, runIDs ...string) *RunOptions {
	return &RunOptions{
		RootOptions:    &RootOptions{Format: format},
		RunIDGenerator: engine.NewFixedGenerator(runIDs...),
	}
}

func TestRunMissingDatabase(t *testing.T) {
	path := writeProgram(t, t.TempDir(), "pipeline.cue", pipelineProgram)

	_, err := executeCommand(NewRunCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "db")
}

func TestRunInvalidProgram(t *testing.T) {
	dir := t.TempDir()
	path := writeProgram(t, dir, "broken.cue", brokenProgram)

	_, err := executeCommand(NewRunCommand(&RootOptions{Format: "text"}), "--db", filepath.Join(dir, "test.db"), path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid program")
}

func TestRunNonExistentProgram(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	_, err := executeCommand(NewRunCommand(&RootOptions{Format: "text"}), "--db", dbPath, "/nonexistent/program.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load program")
}

func TestRunWorkerMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writeProgram(t, dir, "pipeline.cue", pipelineProgram)

	_, err := executeCommand(NewRunCommand(&RootOptions{Format: "text"}),
		"--db", filepath.Join(dir, "test.db"), "--workers", "4", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduled for 2 workers, not 4")
}

func TestRunPipelineRecordsTrace(t *testing.T) {
	dir := t.TempDir()
	path := writeProgram(t, dir, "pipeline.cue", pipelineProgram)
	dbPath := filepath.Join(dir, "trace.db")

	out, err := executeCommand(newRunCommand(newTestRunOptions("text", "run-1")),
		"--db", dbPath, "--timeout", "20ms", "--workers", "2", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Run run-1 complete")
	assert.Contains(t, out, "Tags:     3")
	assert.Contains(t, out, "Executed: 6 (0 failed)")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	p, err := LoadProgram(path)
	require.NoError(t, err)

	run, err := st.ReadRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, ir.MustProgramHash(p), run.ProgramHash)
	assert.Equal(t, ir.EngineVersion, run.EngineVersion)

	trace, err := st.ReplayRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, trace.Tags, 3)
	assert.Equal(t, int64(20_000_000), trace.Tags[2].Tag.Time)
	require.NoError(t, engine.VerifyTrace(p, trace))
}

func TestRunJSONSummary(t *testing.T) {
	dir := t.TempDir()
	path := writeProgram(t, dir, "fanout.json", fanoutProgram)

	out, err := executeCommand(newRunCommand(newTestRunOptions("json", "run-json")),
		"--db", filepath.Join(dir, "trace.db"), path)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   RunSummary `json:"data"`
		RunID  string     `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-json", resp.RunID)
	assert.Equal(t, "run-json", resp.Data.RunID)
	assert.Equal(t, "fanout", resp.Data.Program)
	assert.Equal(t, int64(1), resp.Data.Tags)
	assert.Equal(t, int64(3), resp.Data.Executed)
}

func TestRunFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := writeProgram(t, dir, "pipeline.cue", pipelineProgram)
	dbPath := filepath.Join(dir, "from-config.db")
	cfgPath := writeProgram(t, dir, "qsched.toml", `
db        = "`+dbPath+`"
timeout   = "10ms"
log_level = "warn"
`)

	out, err := executeCommand(newRunCommand(newTestRunOptions("text", "run-cfg")), "--config", cfgPath, path)
	require.NoError(t, err)
	assert.Contains(t, out, "Tags:     2")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	tags, err := st.ReadTags(context.Background(), "run-cfg")
	require.NoError(t, err)
	assert.Len(t, tags, 2)
}

func TestRunFlagOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := writeProgram(t, dir, "pipeline.cue", pipelineProgram)
	cfgPath := writeProgram(t, dir, "qsched.toml", `
db      = "`+filepath.Join(dir, "config.db")+`"
timeout = "10ms"
`)

	out, err := executeCommand(newRunCommand(newTestRunOptions("text", "run-override")),
		"--config", cfgPath, "--timeout", "30ms", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Tags:     4")
}

func TestRunBadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := writeProgram(t, dir, "pipeline.cue", pipelineProgram)
	cfgPath := writeProgram(t, dir, "qsched.toml", `timeout = "whenever"`)

	_, err := executeCommand(NewRunCommand(&RootOptions{Format: "text"}), "--config", cfgPath, path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestRunWithMetricsServer(t *testing.T) {
	dir := t.TempDir()
	path := writeProgram(t, dir, "fanout.json", fanoutProgram)

	out, err := executeCommand(newRunCommand(newTestRunOptions("text", "run-metrics")),
		"--db", filepath.Join(dir, "trace.db"), "--metrics-addr", "127.0.0.1:0", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Run run-metrics complete")
}

func TestRunMetricsAddressInUse(t *testing.T) {
	dir := t.TempDir()
	path := writeProgram(t, dir, "fanout.json", fanoutProgram)

	_, err := executeCommand(newRunCommand(newTestRunOptions("text", "run-bad-addr")),
		"--db", filepath.Join(dir, "trace.db"), "--metrics-addr", "not-an-address", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start metrics server")
}

func TestRunHelpText(t *testing.T) {
	out, err := executeCommand(NewRunCommand(&RootOptions{Format: "text"}), "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "--db")
	assert.Contains(t, out, "--metrics-addr")
	assert.Contains(t, out, "--config")
	assert.Contains(t, out, "TOML")
}
