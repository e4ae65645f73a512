package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// A scenario runs one program on the real scheduler and asserts on the
// recorded trace.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is the path to the program (.cue, .json or a CUE package dir).
	// Relative paths are resolved against the scenario file location.
	Program string `yaml:"program"`

	// Timeout is the last logical time processed, e.g. "30ms". Empty runs
	// until the event queue drains.
	Timeout string `yaml:"timeout,omitempty"`

	// Assertions validate the recorded trace.
	// Supported types: executed, not_executed, worker_order, tag_count
	Assertions []Assertion `yaml:"assertions"`

	// RunID is an optional fixed run id for deterministic tests.
	// If empty, defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`
}

// Assertion validates the recorded trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "executed": reaction ran exactly Count times (any worker, any tag)
	// - "not_executed": reaction never ran
	// - "worker_order": on Worker at tag Tag, Reactions ran in this order
	// - "tag_count": the run passed through exactly Count tags
	Type string `yaml:"type"`

	// Reaction is a reaction name (executed, not_executed).
	Reaction string `yaml:"reaction,omitempty"`

	// Count is the expected number (executed, tag_count).
	Count int `yaml:"count,omitempty"`

	// Worker is the worker index (worker_order).
	Worker int `yaml:"worker,omitempty"`

	// Tag is the tag ordinal (worker_order). 0 is the start tag.
	Tag int64 `yaml:"tag,omitempty"`

	// Reactions is the expected reaction order (worker_order).
	Reactions []string `yaml:"reactions,omitempty"`
}

// Assertion type constants.
const (
	AssertExecuted    = "executed"
	AssertNotExecuted = "not_executed"
	AssertWorkerOrder = "worker_order"
	AssertTagCount    = "tag_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Program paths are resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the program path relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Program != "" && !filepath.IsAbs(scenario.Program) && basePath != "" {
		scenario.Program = filepath.Join(basePath, scenario.Program)
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if _, err := os.Stat(scenario.Program); err != nil {
		return nil, fmt.Errorf("invalid scenario: program not found: %s", scenario.Program)
	}

	return scenario, nil
}

// ParseScenario decodes scenario YAML with strict field validation
// (catches typos like "assertion:" vs "assertions:"). The program path is
// not resolved or checked.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// TimeoutDuration parses Timeout. Zero means no logical timeout.
func (s *Scenario) TimeoutDuration() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, fmt.Errorf("timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("timeout must be non-negative, got %s", s.Timeout)
	}
	return d, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Program == "" {
		return fmt.Errorf("program is required")
	}

	if _, err := s.TimeoutDuration(); err != nil {
		return err
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertExecuted:
		if a.Reaction == "" {
			return fmt.Errorf("assertions[%d]: reaction is required for executed", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for executed", index)
		}
	case AssertNotExecuted:
		if a.Reaction == "" {
			return fmt.Errorf("assertions[%d]: reaction is required for not_executed", index)
		}
	case AssertWorkerOrder:
		if len(a.Reactions) == 0 {
			return fmt.Errorf("assertions[%d]: reactions list is required for worker_order", index)
		}
		if a.Worker < 0 || a.Tag < 0 {
			return fmt.Errorf("assertions[%d]: worker and tag must be non-negative for worker_order", index)
		}
	case AssertTagCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for tag_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
