package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "qsched", cmd.Use)
	assert.Contains(t, cmd.Short, "qsched")
	assert.Contains(t, cmd.Long, "static schedules")
	assert.Contains(t, cmd.Long, "trace store")
}

func TestRootVersion(t *testing.T) {
	out, err := executeCommand(NewRootCommand(), "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "qsched version 0.1.0 (ir 1)")
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestSubcommandFlags(t *testing.T) {
	tests := []struct {
		command  string
		flags    map[string]string // flag name -> default value
		required []string
	}{
		{
			command: "compile",
			flags:   map[string]string{"output": ""},
		},
		{
			command: "validate",
		},
		{
			// --db may come from --config, so it is not marked required
			command: "run",
			flags: map[string]string{
				"db":           "",
				"workers":      "0",
				"timeout":      "0s",
				"metrics-addr": "",
				"config":       "",
			},
		},
		{
			command:  "trace",
			flags:    map[string]string{"db": "", "run": "", "worker": "-1", "reaction": ""},
			required: []string{"db"},
		},
		{
			command:  "replay",
			flags:    map[string]string{"db": "", "run": ""},
			required: []string{"db"},
		},
		{
			command: "test",
			flags:   map[string]string{"update": "false", "filter": ""},
		},
	}

	root := NewRootCommand()
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			sub, _, err := root.Find([]string{tt.command})
			require.NoError(t, err)
			require.Equal(t, tt.command, sub.Name())

			for name, def := range tt.flags {
				flag := sub.Flags().Lookup(name)
				require.NotNil(t, flag, "--%s", name)
				assert.Equal(t, def, flag.DefValue, "--%s default", name)
			}
			for _, name := range tt.required {
				ann := sub.Flags().Lookup(name).Annotations["cobra_annotation_bash_completion_one_required_flag"]
				assert.Equal(t, []string{"true"}, ann, "--%s should be required", name)
			}
		})
	}
}

func TestCompileOutputShorthand(t *testing.T) {
	compileCmd, _, err := NewRootCommand().Find([]string{"compile"})
	require.NoError(t, err)
	assert.Equal(t, "o", compileCmd.Flags().Lookup("output").Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	for _, format := range []string{"xml", "", "TEXT"} {
		t.Run(format, func(t *testing.T) {
			_, err := executeCommand(NewRootCommand(), "--format", format, "compile", ".")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid format")
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}
