// Package harness provides conformance testing for quasi-static programs.
//
// The harness loads a program, runs it on the real scheduler with scripted
// reaction bodies, records the run into an in-memory trace store and checks
// the replayed trace against assertions and golden files.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	program: ../programs/pipeline.cue
//	timeout: 20ms
//	assertions:
//	  - type: executed
//	    reaction: sink
//	    count: 3
//	  - type: worker_order
//	    worker: 0
//	    tag: 0
//	    reactions: [source, filter]
//	  - type: not_executed
//	    reaction: alarm
//	  - type: tag_count
//	    count: 3
//
// # Assertion Types
//
//   - executed: a reaction ran exactly N times across all workers and tags
//   - not_executed: a reaction never ran
//   - worker_order: on one worker at one tag, reactions ran in the given order
//   - tag_count: the run passed through exactly N tags
//
// # Deterministic Testing
//
// Which reactions run on which worker at which tag, and in what order per
// worker, is fixed by the static schedules and the logical event queue, so
// it is identical across runs. The harness uses:
//   - Fixed run ids (from scenario.run_id or "test-run-default")
//   - Logical tags only (no wall clock enters the trace)
//   - In-memory SQLite database (isolated per run)
//
// Golden snapshots drop seq numbers, which order executions across workers
// and therefore depend on thread timing.
package harness
