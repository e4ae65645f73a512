package harness

import (
	"strconv"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/qsched/internal/ir"
)

// TraceSnapshot captures the deterministic part of a scenario run.
// Seq numbers and run ids are left out; per-worker order within a tag is
// fixed by the static schedule.
type TraceSnapshot struct {
	ScenarioName string     `json:"scenario_name"`
	ProgramHash  string     `json:"program_hash"`
	Trace        []TagEvent `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		workers := make(map[string]any, len(ev.Workers))
		for w, names := range ev.Workers {
			list := make([]any, len(names))
			for j, n := range names {
				list[j] = n
			}
			workers[strconv.Itoa(w)] = list
		}
		traceList[i] = map[string]any{
			"ordinal":   ev.Ordinal,
			"time_ns":   ev.TimeNs,
			"microstep": ev.Micro,
			"schedule":  ev.Schedule,
			"workers":   workers,
		}
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"program_hash":  s.ProgramHash,
		"trace":         traceList,
	}
}

// Snapshot renders a result as canonical JSON.
func Snapshot(name string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: name,
		ProgramHash:  result.ProgramHash,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
