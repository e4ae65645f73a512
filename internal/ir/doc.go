// Package ir provides the intermediate representation of a quasi-static
// program: the instruction streams, schedules and reaction declarations
// produced by the offline schedule generator, plus the trace records the
// runtime persists.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal except tag.
//
// Key design constraints:
//   - Programs are immutable once constructed; streams carry their declared
//     length and are only accessed through bounds-checked methods
//   - All JSON tags use snake_case
//   - Logical time (tags, seq) only, never wall-clock timestamps
package ir
