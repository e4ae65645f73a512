package cli

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// RunConfig is the optional TOML file given to `qsched run --config`.
//
//	db           = "./trace.db"
//	workers      = 3
//	timeout      = "2s"
//	metrics_addr = ":9090"
//	log_level    = "debug"
//
// Flags set on the command line override the file.
type RunConfig struct {
	Database    string `toml:"db"`
	Workers     int    `toml:"workers"`
	Timeout     string `toml:"timeout"`
	MetricsAddr string `toml:"metrics_addr"`
	LogLevel    string `toml:"log_level"`
}

// LoadRunConfig decodes a run configuration file. Unknown keys are an error.
func LoadRunConfig(path string) (*RunConfig, error) {
	var cfg RunConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if _, err := cfg.TimeoutDuration(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if _, err := cfg.Level(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("config %s: workers must not be negative", path)
	}
	return &cfg, nil
}

// TimeoutDuration parses Timeout. An empty timeout is zero (no limit).
func (c *RunConfig) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("timeout must not be negative: %s", c.Timeout)
	}
	return d, nil
}

// Level parses LogLevel. Empty means info.
func (c *RunConfig) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// applyConfig fills every RunOptions field whose flag was not set
// explicitly from cfg.
func applyConfig(cmd *cobra.Command, opts *RunOptions, cfg *RunConfig) {
	flags := cmd.Flags()
	if !flags.Changed("db") && cfg.Database != "" {
		opts.Database = cfg.Database
	}
	if !flags.Changed("workers") && cfg.Workers != 0 {
		opts.Workers = cfg.Workers
	}
	if !flags.Changed("timeout") && cfg.Timeout != "" {
		d, _ := cfg.TimeoutDuration()
		opts.Timeout = d
	}
	if !flags.Changed("metrics-addr") && cfg.MetricsAddr != "" {
		opts.MetricsAddr = cfg.MetricsAddr
	}
	if !flags.Changed("verbose") && cfg.LogLevel != "" {
		level, _ := cfg.Level()
		opts.LogLevel = level
	}
}
