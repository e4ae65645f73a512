// Package engine implements the quasi-static reaction scheduler.
//
// The scheduler replays a precomputed program: every worker owns one
// instruction stream per static schedule and walks it with a private program
// counter. Precedence between reactions on different workers is encoded as
// Wait/Notify pairs on counting semaphores, so there is no dependency solver
// at runtime.
//
// ARCHITECTURE:
//
// Instruction Interpreter (interpreter.go):
// GetReadyReaction fetches and executes instructions until it reaches an
// Execute whose reaction is queued, or until the scheduler stops.
//
// Idle Barrier (barrier.go):
// A worker that reaches Stop increments the idle counter. The worker whose
// increment makes every worker idle is elected: it advances the tag under
// the global lock, resets every program counter, binds the next schedule and
// wakes the workers that have work. On the terminal tag it sets the stop flag
// and wakes everyone.
//
// Tag Advancement (advance.go):
// Delegated to a TagAdvancer. The scheduler only records the schedule index
// and tag the advancer chooses.
//
// Worker Runtime (runtime.go):
// Runtime runs one goroutine per worker, each looping
// GetReadyReaction -> reaction body -> DoneWithReaction.
//
// CRITICAL PATTERNS:
//
// Ownership:
// A program counter is written only by its worker while running, and by the
// elected worker while every other worker is blocked. The wake semaphores
// publish the reset counters and the new schedule index.
//
// Status:
// Reaction status moves Inactive -> Queued only through TriggerReaction and
// Queued -> Inactive only through DoneWithReaction, both compare-and-swap.
// An Execute of a reaction that is not queued is a silent skip.
package engine
