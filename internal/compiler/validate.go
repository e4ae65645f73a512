package compiler

import (
	"fmt"
	"slices"

	"github.com/roach88/qsched/internal/ir"
)

// Validation error codes (E200-E299)
const (
	// General validation errors (E200)
	ErrUnsupportedIRType = "E200" // unsupported IR type for validation

	// Stream errors (E201-E209)
	ErrLengthExceedsBacking = "E201" // declared length exceeds backing array
	ErrMissingStop          = "E202" // stream does not end with Stop
	ErrMisplacedStop        = "E203" // Stop before the end, or more than one
	ErrReactionOutOfRange   = "E204" // Execute operand not a reaction id
	ErrSemaphoreOutOfRange  = "E205" // Wait/Notify operand not a semaphore index
	ErrWorkerCountMismatch  = "E206" // schedule stream count != workers
	ErrWaitWithoutNotify    = "E207" // Wait(s) with no Notify(s) in the schedule
	ErrDuplicatePattern     = "E208" // two schedules share a trigger pattern
	ErrUnknownOpcode        = "E209" // opcode outside {e, w, n, s}

	// Program errors (E210-E219)
	ErrUnknownReaction       = "E210" // trigger/effect/startup references unknown reaction
	ErrReactionCountMismatch = "E211" // reaction_count != len(reactions)
	ErrNoSchedules           = "E212" // program has no schedules
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled program against the rules the scheduler relies
// on. Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch p := v.(type) {
	case *ir.Program:
		return validateProgram(p)
	case ir.Program:
		return validateProgram(&p)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validateProgram(p *ir.Program) []ValidationError {
	var errs []ValidationError

	if p.Workers < 1 {
		errs = append(errs, ValidationError{
			Field:   "workers",
			Message: fmt.Sprintf("workers must be at least 1, got %d", p.Workers),
			Code:    ErrWorkerCountMismatch,
		})
	}
	if p.NumSemaphores < 0 {
		errs = append(errs, ValidationError{
			Field:   "num_semaphores",
			Message: fmt.Sprintf("num_semaphores must not be negative, got %d", p.NumSemaphores),
			Code:    ErrSemaphoreOutOfRange,
		})
	}
	if p.ReactionCount != len(p.Reactions) {
		errs = append(errs, ValidationError{
			Field:   "reaction_count",
			Message: fmt.Sprintf("reaction_count is %d but %d reactions are declared", p.ReactionCount, len(p.Reactions)),
			Code:    ErrReactionCountMismatch,
		})
	}

	errs = append(errs, validateReactions(p)...)

	for i, id := range p.Startup {
		if !validReaction(p, id) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("startup[%d]", i),
				Message: fmt.Sprintf("unknown reaction %d", id),
				Code:    ErrUnknownReaction,
			})
		}
	}

	if len(p.Schedules) == 0 {
		errs = append(errs, ValidationError{
			Field:   "schedules",
			Message: "at least one schedule is required",
			Code:    ErrNoSchedules,
		})
	}

	seen := make(map[string]int)
	for i, s := range p.Schedules {
		field := fmt.Sprintf("schedules[%d]", i)
		errs = append(errs, validateSchedule(p, s, field)...)

		key := "fallback"
		if s.Pattern != nil {
			key = fmt.Sprint(ir.NormalizeSet(s.Pattern))
		}
		if prev, dup := seen[key]; dup {
			errs = append(errs, ValidationError{
				Field:   field + ".pattern",
				Message: fmt.Sprintf("pattern %s already used by schedule %d", key, prev),
				Code:    ErrDuplicatePattern,
			})
			continue
		}
		seen[key] = i
		for _, id := range s.Pattern {
			if !validReaction(p, id) {
				errs = append(errs, ValidationError{
					Field:   field + ".pattern",
					Message: fmt.Sprintf("unknown reaction %d", id),
					Code:    ErrUnknownReaction,
				})
			}
		}
	}

	return errs
}

func validateReactions(p *ir.Program) []ValidationError {
	var errs []ValidationError
	for i, r := range p.Reactions {
		field := fmt.Sprintf("reactions[%d]", i)
		if r.ID != i {
			errs = append(errs, ValidationError{
				Field:   field + ".id",
				Message: fmt.Sprintf("reaction id %d does not match its index", r.ID),
				Code:    ErrUnknownReaction,
			})
		}
		for j, t := range r.Triggers {
			if !validReaction(p, t) {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.triggers[%d]", field, j),
					Message: fmt.Sprintf("unknown reaction %d", t),
					Code:    ErrUnknownReaction,
				})
			}
		}
		for j, e := range r.Effects {
			if !validReaction(p, e.Reaction) {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.effects[%d]", field, j),
					Message: fmt.Sprintf("unknown reaction %d", e.Reaction),
					Code:    ErrUnknownReaction,
				})
			}
			if e.Delay < 0 {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.effects[%d].delay", field, j),
					Message: fmt.Sprintf("negative delay %s", e.Delay),
					Code:    ErrUnknownReaction,
				})
			}
		}
	}
	return errs
}

func validateSchedule(p *ir.Program, s ir.Schedule, field string) []ValidationError {
	var errs []ValidationError

	if len(s.Streams) != p.Workers {
		errs = append(errs, ValidationError{
			Field:   field + ".workers",
			Message: fmt.Sprintf("schedule has %d streams, program has %d workers", len(s.Streams), p.Workers),
			Code:    ErrWorkerCountMismatch,
		})
	}

	notified := make(map[int]bool)
	var waits []pendingWait

	for w, stream := range s.Streams {
		sfield := fmt.Sprintf("%s.workers[%d]", field, w)
		if stream.Len() > stream.Cap() {
			errs = append(errs, ValidationError{
				Field:   sfield + ".length",
				Message: fmt.Sprintf("declared length %d exceeds %d instructions", stream.Len(), stream.Cap()),
				Code:    ErrLengthExceedsBacking,
			})
			continue
		}

		insts := stream.Instructions()
		if len(insts) == 0 || insts[len(insts)-1].Op != ir.OpStop {
			errs = append(errs, ValidationError{
				Field:   sfield,
				Message: "stream must end with stop",
				Code:    ErrMissingStop,
			})
		}

		for k, inst := range insts {
			ifield := fmt.Sprintf("%s.instructions[%d]", sfield, k)
			switch inst.Op {
			case ir.OpExecute:
				if !validReaction(p, inst.Operand) {
					errs = append(errs, ValidationError{
						Field:   ifield,
						Message: fmt.Sprintf("execute of unknown reaction %d", inst.Operand),
						Code:    ErrReactionOutOfRange,
					})
				}
			case ir.OpWait, ir.OpNotify:
				if inst.Operand < 0 || inst.Operand >= p.NumSemaphores {
					errs = append(errs, ValidationError{
						Field:   ifield,
						Message: fmt.Sprintf("%s on semaphore %d, program has %d", inst.Op, inst.Operand, p.NumSemaphores),
						Code:    ErrSemaphoreOutOfRange,
					})
					continue
				}
				if inst.Op == ir.OpNotify {
					notified[inst.Operand] = true
				} else {
					waits = append(waits, pendingWait{field: ifield, sem: inst.Operand})
				}
			case ir.OpStop:
				if k != len(insts)-1 {
					errs = append(errs, ValidationError{
						Field:   ifield,
						Message: fmt.Sprintf("stop at %d before end of declared length %d", k, len(insts)),
						Code:    ErrMisplacedStop,
					})
				}
			default:
				errs = append(errs, ValidationError{
					Field:   ifield,
					Message: fmt.Sprintf("unknown opcode %q", byte(inst.Op)),
					Code:    ErrUnknownOpcode,
				})
			}
		}
	}

	for _, wt := range waits {
		if !notified[wt.sem] {
			errs = append(errs, ValidationError{
				Field:   wt.field,
				Message: fmt.Sprintf("wait on semaphore %d has no matching notify in this schedule", wt.sem),
				Code:    ErrWaitWithoutNotify,
			})
		}
	}

	return errs
}

type pendingWait struct {
	field string
	sem   int
}

func validReaction(p *ir.Program, id int) bool {
	return id >= 0 && id < len(p.Reactions) && id < max(p.ReactionCount, 0)
}

// Errors converts a validation result into a single error, or nil.
func Errors(errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationErrors{Errs: slices.Clone(errs)}
}

// ValidationErrors aggregates every problem found in one program.
type ValidationErrors struct {
	Errs []ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errs) == 1 {
		return e.Errs[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", e.Errs[0].Error(), len(e.Errs)-1)
}
