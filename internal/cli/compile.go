package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/qsched/internal/compiler"
	"github.com/roach88/qsched/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult summarizes a compiled program.
type CompilationResult struct {
	Name          string            `json:"name"`
	Hash          string            `json:"hash"`
	Workers       int               `json:"workers"`
	Reactions     int               `json:"reactions"`
	Semaphores    int               `json:"semaphores"`
	Schedules     []ScheduleSummary `json:"schedules"`
	IRVersion     string            `json:"ir_version"`
	EngineVersion string            `json:"engine_version"`
	Output        string            `json:"output,omitempty"`
}

// ScheduleSummary describes one schedule of a compiled program.
type ScheduleSummary struct {
	Name    string   `json:"name"`
	Pattern []int    `json:"pattern,omitempty"`
	Streams []string `json:"streams"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <program>",
		Short: "Compile a program to canonical JSON",
		Long: `Compile a CUE or JSON program, validate it, and report its content hash.

With --output the canonical JSON form of the program is written to a file.
The canonical form loads back to a program with the same hash.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, programPath string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	formatter.VerboseLog("Loading program: %s", programPath)
	p, err := LoadProgram(programPath)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return outputCompileError(formatter, loadErr)
		}
		return outputCompileError(formatter, &LoadError{Code: ErrCodeGeneric, Message: err.Error()})
	}

	if errs := compiler.Validate(p); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	hash, err := ir.ProgramHash(p)
	if err != nil {
		return outputCompileError(formatter, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("hashing program: %v", err)})
	}
	formatter.VerboseLog("Program %s: %d worker(s), %d schedule(s)", p.Name, p.Workers, len(p.Schedules))

	result := buildCompilationResult(p, hash)

	if opts.Output != "" {
		if err := writeCanonicalProgram(p, opts.Output); err != nil {
			return outputCompileError(formatter, &LoadError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing output file: %v", err)})
		}
		result.Output = opts.Output
	}

	return outputCompileSuccess(formatter, result)
}

func buildCompilationResult(p *ir.Program, hash string) CompilationResult {
	result := CompilationResult{
		Name:          p.Name,
		Hash:          hash,
		Workers:       p.Workers,
		Reactions:     p.ReactionCount,
		Semaphores:    p.NumSemaphores,
		Schedules:     make([]ScheduleSummary, len(p.Schedules)),
		IRVersion:     ir.IRVersion,
		EngineVersion: ir.EngineVersion,
	}
	for i, s := range p.Schedules {
		streams := make([]string, len(s.Streams))
		for w, st := range s.Streams {
			streams[w] = st.String()
		}
		result.Schedules[i] = ScheduleSummary{
			Name:    s.Name,
			Pattern: s.Pattern,
			Streams: streams,
		}
	}
	return result
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result CompilationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %s: %d worker(s), %d reaction(s), %d schedule(s)\n",
		result.Name, result.Workers, result.Reactions, len(result.Schedules))
	fmt.Fprintf(w, "  hash: %s\n\n", result.Hash)

	fmt.Fprintln(w, "Schedules:")
	for _, s := range result.Schedules {
		pattern := "fallback"
		if s.Pattern != nil {
			pattern = fmt.Sprintf("pattern %v", s.Pattern)
		}
		fmt.Fprintf(w, "  %s (%s)\n", s.Name, pattern)
		for i, st := range s.Streams {
			fmt.Fprintf(w, "    w%d %s\n", i, st)
		}
	}

	if result.Output != "" {
		fmt.Fprintf(w, "\nWrote canonical program to %s\n", result.Output)
	}
	return nil
}

// outputCompileError outputs a single load or compile error.
func outputCompileError(formatter *OutputFormatter, loadErr *LoadError) error {
	if formatter.Format != "json" && loadErr.Pos.IsValid() {
		fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
			loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
	}
	// Load errors are command-level errors (exit code 2)
	return formatter.Fail(ExitCommandError, loadErr.Code, loadErr.Message, nil)
}

// writeCanonicalProgram writes the program in canonical JSON form.
func writeCanonicalProgram(p *ir.Program, filename string) error {
	data, err := ir.MarshalCanonical(p.Canonical())
	if err != nil {
		return fmt.Errorf("marshaling program: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
