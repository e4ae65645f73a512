// Package store provides SQLite-backed durable storage for scheduler traces.
//
// The store is an append-only log with:
//   - Runs: one record per scheduler run, bound to the program hash
//   - Tags: every tag a run executed, with the schedule index it bound
//   - Executions: every reaction a worker was handed, in logical order
//
// # Critical Patterns
//
// Logical Identity and Time
//   - All ordering uses ordinal/seq INTEGER (logical clocks), NEVER timestamps
//   - Tag time is logical nanoseconds, not wall time
//
// Deterministic Query Results
//   - Every multi-row query has a total ORDER BY
//   - Per-worker order within a tag is fixed by the static schedule, so a
//     trace grouped by (tag, worker) is identical across runs
//
// Single Writer
//   - Tracer funnels records from every worker through one queue into one
//     writer goroutine; the pool is capped at one connection
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
