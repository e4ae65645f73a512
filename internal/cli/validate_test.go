package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qsched/internal/compiler"
)

func TestValidateValidProgram(t *testing.T) {
	path := writeProgram(t, t.TempDir(), "pipeline.cue", pipelineProgram)

	out, err := executeCommand(NewValidateCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Program pipeline valid")
}

func TestValidateValidProgramJSON(t *testing.T) {
	path := writeProgram(t, t.TempDir(), "fanout.json", fanoutProgram)

	out, err := executeCommand(NewValidateCommand(&RootOptions{Format: "json"}), path)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
}

func TestValidateNonExistentPath(t *testing.T) {
	out, err := executeCommand(NewValidateCommand(&RootOptions{Format: "text"}), "/nonexistent/program.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestValidateEmptyDirectory(t *testing.T) {
	_, err := executeCommand(NewValidateCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
}

func TestValidateMultipleErrors(t *testing.T) {
	path := writeProgram(t, t.TempDir(), "broken.cue", brokenProgram)

	out, err := executeCommand(NewValidateCommand(&RootOptions{Format: "json"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)

	codes := make([]string, len(resp.Data.Errors))
	for i, e := range resp.Data.Errors {
		codes[i] = e.Code
	}
	assert.Contains(t, codes, compiler.ErrMissingStop)
	assert.Contains(t, codes, compiler.ErrReactionOutOfRange)
}

func TestValidateDecodeErrorIsValidationFailure(t *testing.T) {
	path := writeProgram(t, t.TempDir(), "noworkers.cue", `program: {name: "x", schedules: []}`)

	out, err := executeCommand(NewValidateCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "workers")
}

func TestValidateVerboseOutput(t *testing.T) {
	path := writeProgram(t, t.TempDir(), "pipeline.cue", pipelineProgram)

	cmd := NewValidateCommand(&RootOptions{Format: "text", Verbose: true})
	errOut := &bytes.Buffer{}
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{path})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, errOut.String(), "Validating program: pipeline")
}
