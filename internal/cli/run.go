package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/qsched/internal/compiler"
	"github.com/roach88/qsched/internal/engine"
	"github.com/roach88/qsched/internal/events"
	"github.com/roach88/qsched/internal/ir"
	"github.com/roach88/qsched/internal/metrics"
	"github.com/roach88/qsched/internal/reactor"
	"github.com/roach88/qsched/internal/store"
)

// metricsShutdownTimeout bounds the graceful stop of the metrics server.
const metricsShutdownTimeout = 5 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database    string
	Workers     int // 0 means the program's worker count
	Timeout     time.Duration
	MetricsAddr string
	ConfigPath  string
	LogLevel    slog.Level

	// RunIDGenerator allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDGenerator engine.RunIDGenerator
}

// RunSummary is printed when a run finishes.
type RunSummary struct {
	RunID       string `json:"run_id"`
	Program     string `json:"program"`
	ProgramHash string `json:"program_hash"`
	Workers     int    `json:"workers"`
	Tags        int64  `json:"tags"`
	Executed    int64  `json:"executed"`
	Failed      int64  `json:"failed"`
	Database    string `json:"db"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts, LogLevel: slog.LevelInfo})
}

// newRunCommand builds the run command around caller-provided options, so
// tests can inject a RunIDGenerator.
func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <program>",
		Short: "Run a program with scripted reactions",
		Long: `Run a program until its event queue drains, the logical timeout is
reached, or the process is interrupted.

Each reaction body triggers its declared downstream reactions and schedules
its declared effects. Every tag and every reaction dispatch is written to the
trace store under a fresh run id.

Configuration may come from a TOML file (--config); flags given on the
command line take precedence.

Exit codes:
  0 - Run completed
  1 - Run stopped on a scheduler error
  2 - Command error (invalid program, database error, etc.)

Examples:
  qsched run --db ./trace.db ./program.cue
  qsched run --db ./trace.db --timeout 2s --metrics-addr :9090 ./program.cue
  qsched run --config ./qsched.toml ./programs/pipeline`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required unless set in --config)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "expected worker count (must match the program)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "logical time limit (0 runs until the queue drains)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "TOML run configuration file")

	return cmd
}

func runProgram(opts *RunOptions, programPath string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	if opts.ConfigPath != "" {
		cfg, err := LoadRunConfig(opts.ConfigPath)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
		}
		applyConfig(cmd, opts, cfg)
	}
	if opts.Database == "" {
		return NewExitError(ExitCommandError, `required flag(s) "db" not set`)
	}

	// Configure logging based on verbose flag and config level
	logLevel := opts.LogLevel
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("loading program", "path", programPath)
	p, err := LoadProgram(programPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load program", err)
	}
	if err := compiler.Errors(compiler.Validate(p)); err != nil {
		return WrapExitError(ExitCommandError, "invalid program", err)
	}
	if opts.Workers != 0 && opts.Workers != p.Workers {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("program %q is scheduled for %d workers, not %d", p.Name, p.Workers, opts.Workers))
	}
	hash, err := ir.ProgramHash(p)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash program", err)
	}
	logger.Info("program loaded",
		"program", p.Name,
		"hash", hash,
		"workers", p.Workers,
		"reactions", p.ReactionCount,
		"schedules", len(p.Schedules),
	)

	logger.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	runIDGen := opts.RunIDGenerator
	if runIDGen == nil {
		runIDGen = engine.UUIDv7Generator{}
	}
	run := ir.RunRecord{
		ID:            runIDGen.Generate(),
		ProgramName:   p.Name,
		ProgramHash:   hash,
		Workers:       p.Workers,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
	formatter.RunID = run.ID
	tracer, err := store.NewTracer(ctx, st, run, store.WithTracerLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start trace", err)
	}

	schedOpts := []engine.Option{engine.WithLogger(logger), engine.WithObserver(tracer)}
	if opts.MetricsAddr != "" {
		collector := metrics.NewCollector(p)
		stopMetrics, err := serveMetrics(opts.MetricsAddr, collector, logger)
		if err != nil {
			_ = tracer.Close()
			return WrapExitError(ExitCommandError, "failed to start metrics server", err)
		}
		defer stopMetrics()
		schedOpts = append(schedOpts, engine.WithObserver(collector))
	}

	queue := events.New(p, events.WithTimeout(opts.Timeout), events.WithLogger(logger))
	s := engine.New(schedOpts...)
	params := &engine.Params{
		Program:   p,
		Reactions: reactor.NewTable(p),
		Advancer:  queue,
	}
	if err := s.Init(p.Workers, params); err != nil {
		_ = tracer.Close()
		return WrapExitError(ExitCommandError, "failed to init scheduler", err)
	}
	defer s.Teardown()

	if err := queue.Startup(s); err != nil {
		_ = tracer.Close()
		return WrapExitError(ExitCommandError, "failed to start program", err)
	}

	rt := engine.NewRuntime(s,
		engine.WithEventScheduler(queue),
		engine.WithRuntimeLogger(logger),
		engine.WithFatalHandler(func(err error) {
			logger.Error("scheduler error", "error", err)
		}),
	)

	logger.Info("run starting", "run_id", run.ID, "db", opts.Database, "timeout", opts.Timeout)
	formatter.VerboseLog("Run %s started. Press Ctrl-C to stop.", run.ID)

	runErr := rt.Run(ctx)
	if err := tracer.Close(); err != nil {
		return WrapExitError(ExitCommandError, "failed to record trace", err)
	}

	summary := RunSummary{
		RunID:       run.ID,
		Program:     p.Name,
		ProgramHash: hash,
		Workers:     p.Workers,
		Tags:        queue.Advanced() + 1,
		Executed:    rt.Executed(),
		Failed:      rt.Failed(),
		Database:    opts.Database,
	}
	if runErr != nil {
		_ = formatter.Error(ErrCodeGeneric, runErr.Error(), summary)
		return WrapExitError(ExitFailure, "run failed", runErr)
	}

	logger.Info("run stopped gracefully", "run_id", run.ID)
	return outputRunSummary(formatter, summary)
}

// serveMetrics starts the Prometheus endpoint and returns its shutdown func.
// The listener is bound before returning so address errors surface here.
func serveMetrics(addr string, collector *metrics.Collector, logger *slog.Logger) (func(), error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}, nil
}

func outputRunSummary(formatter *OutputFormatter, summary RunSummary) error {
	if formatter.Format == "json" {
		return formatter.Success(summary)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Run %s complete\n", summary.RunID)
	fmt.Fprintf(w, "  Program:  %s (%d workers)\n", summary.Program, summary.Workers)
	fmt.Fprintf(w, "  Hash:     %s\n", summary.ProgramHash)
	fmt.Fprintf(w, "  Tags:     %d\n", summary.Tags)
	fmt.Fprintf(w, "  Executed: %d (%d failed)\n", summary.Executed, summary.Failed)
	fmt.Fprintf(w, "  Trace:    %s\n", summary.Database)
	return nil
}
