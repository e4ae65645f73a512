package compiler

import (
	"fmt"
	"time"

	"cuelang.org/go/cue"

	"github.com/roach88/qsched/internal/ir"
)

// CompileProgram parses a CUE value into an ir.Program.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the program struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`program: { name: "Delay", workers: 2, ... }`)
//	p, err := CompileProgram(v.LookupPath(cue.ParsePath("program")))
//
// CompileProgram only decodes. Call Validate on the result before handing it
// to the scheduler.
func CompileProgram(v cue.Value) (*ir.Program, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if !v.Exists() {
		return nil, &CompileError{Field: "program", Message: "program is required", Pos: v.Pos()}
	}

	p := &ir.Program{}
	var err error

	if p.Name, err = optionalString(v, "name"); err != nil {
		return nil, err
	}
	if p.Name == "" {
		labels := v.Path().Selectors()
		if len(labels) > 0 {
			p.Name = labels[len(labels)-1].String()
		}
	}

	if p.Workers, err = requiredInt(v, "workers"); err != nil {
		return nil, err
	}
	if p.NumSemaphores, _, err = optionalInt(v, "num_semaphores"); err != nil {
		return nil, err
	}

	p.Reactions, err = parseReactions(v)
	if err != nil {
		return nil, err
	}

	count, hasCount, err := optionalInt(v, "reaction_count")
	if err != nil {
		return nil, err
	}
	switch {
	case hasCount && len(p.Reactions) == 0:
		// Bare sizing constant: synthesize anonymous reactions.
		p.ReactionCount = count
		for i := 0; i < count; i++ {
			p.Reactions = append(p.Reactions, ir.ReactionDecl{ID: i, Name: fmt.Sprintf("r%d", i)})
		}
	case hasCount:
		p.ReactionCount = count
	default:
		p.ReactionCount = len(p.Reactions)
	}

	if p.Startup, err = optionalIntList(v, "startup"); err != nil {
		return nil, err
	}

	p.Schedules, err = parseSchedules(v)
	if err != nil {
		return nil, err
	}

	return p, nil
}

func parseReactions(v cue.Value) ([]ir.ReactionDecl, error) {
	listVal := v.LookupPath(cue.ParsePath("reactions"))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var reactions []ir.ReactionDecl
	for i := 0; iter.Next(); i++ {
		rv := iter.Value()
		field := fmt.Sprintf("reactions[%d]", i)

		decl := ir.ReactionDecl{ID: i}
		if decl.Name, err = optionalString(rv, "name"); err != nil {
			return nil, err
		}
		if decl.Name == "" {
			decl.Name = fmt.Sprintf("r%d", i)
		}
		if decl.Triggers, err = optionalIntList(rv, "triggers"); err != nil {
			return nil, err
		}

		effectsVal := rv.LookupPath(cue.ParsePath("effects"))
		if effectsVal.Exists() {
			effIter, err := effectsVal.List()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for j := 0; effIter.Next(); j++ {
				eff, err := parseEffect(effIter.Value(), fmt.Sprintf("%s.effects[%d]", field, j))
				if err != nil {
					return nil, err
				}
				decl.Effects = append(decl.Effects, eff)
			}
		}

		reactions = append(reactions, decl)
	}
	return reactions, nil
}

// parseEffect accepts a delay as a Go duration string ("100ms") or an
// integer number of nanoseconds, either as delay or delay_ns.
func parseEffect(v cue.Value, field string) (ir.Effect, error) {
	var eff ir.Effect
	r, err := requiredInt(v, "reaction")
	if err != nil {
		return eff, err
	}
	eff.Reaction = r

	// Canonical output spells the delay as delay_ns.
	if nsVal := v.LookupPath(cue.ParsePath("delay_ns")); nsVal.Exists() {
		ns, err := nsVal.Int64()
		if err != nil {
			return eff, &CompileError{
				Field:   field + ".delay_ns",
				Message: "delay_ns must be an integer",
				Pos:     nsVal.Pos(),
			}
		}
		eff.Delay = time.Duration(ns)
		return eff, nil
	}

	delayVal := v.LookupPath(cue.ParsePath("delay"))
	if !delayVal.Exists() {
		return eff, nil
	}
	if s, err := delayVal.String(); err == nil {
		d, err := time.ParseDuration(s)
		if err != nil {
			return eff, &CompileError{
				Field:   field + ".delay",
				Message: fmt.Sprintf("invalid duration %q: %v", s, err),
				Pos:     delayVal.Pos(),
			}
		}
		eff.Delay = d
		return eff, nil
	}
	ns, err := delayVal.Int64()
	if err != nil {
		return eff, &CompileError{
			Field:   field + ".delay",
			Message: "delay must be a duration string or integer nanoseconds",
			Pos:     delayVal.Pos(),
		}
	}
	eff.Delay = time.Duration(ns)
	return eff, nil
}

func parseSchedules(v cue.Value) ([]ir.Schedule, error) {
	listVal := v.LookupPath(cue.ParsePath("schedules"))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var schedules []ir.Schedule
	for i := 0; iter.Next(); i++ {
		sv := iter.Value()
		field := fmt.Sprintf("schedules[%d]", i)

		sched := ir.Schedule{}
		if sched.Name, err = optionalString(sv, "name"); err != nil {
			return nil, err
		}
		if sched.Name == "" {
			sched.Name = fmt.Sprintf("s%d", i)
		}

		patternVal := sv.LookupPath(cue.ParsePath("pattern"))
		if patternVal.Exists() {
			pattern, err := intList(patternVal)
			if err != nil {
				return nil, err
			}
			if pattern == nil {
				pattern = []int{}
			}
			sched.Pattern = pattern
		}

		workersVal := sv.LookupPath(cue.ParsePath("workers"))
		if !workersVal.Exists() {
			return nil, &CompileError{Field: field + ".workers", Message: "workers is required", Pos: sv.Pos()}
		}
		wIter, err := workersVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for w := 0; wIter.Next(); w++ {
			stream, err := parseStream(wIter.Value(), fmt.Sprintf("%s.workers[%d]", field, w))
			if err != nil {
				return nil, err
			}
			sched.Streams = append(sched.Streams, stream)
		}

		schedules = append(schedules, sched)
	}
	return schedules, nil
}

// parseStream decodes one worker stream. The value is either a struct with
// instructions and an optional length, or a bare instruction list.
func parseStream(v cue.Value, field string) (ir.Stream, error) {
	instsVal := v
	if v.Kind() == cue.StructKind {
		instsVal = v.LookupPath(cue.ParsePath("instructions"))
		if !instsVal.Exists() {
			return ir.Stream{}, &CompileError{Field: field + ".instructions", Message: "instructions is required", Pos: v.Pos()}
		}
	}

	iter, err := instsVal.List()
	if err != nil {
		return ir.Stream{}, formatCUEError(err)
	}
	var insts []ir.Instruction
	for k := 0; iter.Next(); k++ {
		inst, err := parseInstruction(iter.Value(), fmt.Sprintf("%s.instructions[%d]", field, k))
		if err != nil {
			return ir.Stream{}, err
		}
		insts = append(insts, inst)
	}

	length := len(insts)
	if v.Kind() == cue.StructKind {
		declared, ok, err := optionalInt(v, "length")
		if err != nil {
			return ir.Stream{}, err
		}
		if ok {
			length = declared
		}
	}

	stream, err := ir.NewStream(insts, length)
	if err != nil {
		return ir.Stream{}, &CompileError{
			Field:   field + ".length",
			Message: err.Error(),
			Code:    ErrLengthExceedsBacking,
			Pos:     v.LookupPath(cue.ParsePath("length")).Pos(),
		}
	}
	return stream, nil
}

// parseInstruction decodes {op: "e", arg: 0}. arg is optional for stop.
func parseInstruction(v cue.Value, field string) (ir.Instruction, error) {
	opVal := v.LookupPath(cue.ParsePath("op"))
	if !opVal.Exists() {
		return ir.Instruction{}, &CompileError{Field: field + ".op", Message: "op is required", Pos: v.Pos()}
	}
	opStr, err := opVal.String()
	if err != nil {
		return ir.Instruction{}, formatCUEError(err)
	}
	op, err := ir.ParseOpcode(opStr)
	if err != nil {
		return ir.Instruction{}, &CompileError{
			Field:   field + ".op",
			Message: err.Error(),
			Code:    ErrUnknownOpcode,
			Pos:     opVal.Pos(),
		}
	}

	arg, hasArg, err := optionalInt(v, "arg")
	if err != nil {
		return ir.Instruction{}, err
	}
	if !hasArg && op != ir.OpStop {
		return ir.Instruction{}, &CompileError{
			Field:   field + ".arg",
			Message: fmt.Sprintf("%s requires an operand", op),
			Pos:     v.Pos(),
		}
	}
	return ir.Instruction{Op: op, Operand: arg}, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func requiredInt(v cue.Value, path string) (int, error) {
	n, ok, err := optionalInt(v, path)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &CompileError{Field: path, Message: path + " is required", Pos: v.Pos()}
	}
	return n, nil
}

func optionalInt(v cue.Value, path string) (int, bool, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return 0, false, nil
	}
	n, err := f.Int64()
	if err != nil {
		return 0, false, formatCUEError(err)
	}
	return int(n), true, nil
}

func optionalIntList(v cue.Value, path string) ([]int, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return nil, nil
	}
	return intList(f)
}

func intList(v cue.Value) ([]int, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []int
	for iter.Next() {
		n, err := iter.Value().Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, int(n))
	}
	return out, nil
}
