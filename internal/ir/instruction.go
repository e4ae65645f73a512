package ir

import (
	"fmt"
	"strings"
)

// Opcode identifies an instruction kind. The byte values match the
// generator's single-character encoding.
type Opcode byte

const (
	// OpExecute hands a queued reaction to the worker.
	OpExecute Opcode = 'e'
	// OpWait blocks on a dependency semaphore.
	OpWait Opcode = 'w'
	// OpNotify releases a dependency semaphore.
	OpNotify Opcode = 'n'
	// OpStop ends the worker's stream for the current tag.
	OpStop Opcode = 's'
)

// ParseOpcode accepts either the single-character encoding or the full name.
func ParseOpcode(s string) (Opcode, error) {
	switch strings.ToLower(s) {
	case "e", "execute", "exe":
		return OpExecute, nil
	case "w", "wait":
		return OpWait, nil
	case "n", "notify":
		return OpNotify, nil
	case "s", "stop":
		return OpStop, nil
	default:
		return 0, fmt.Errorf("unknown opcode %q", s)
	}
}

// Valid reports whether op is one of the four known opcodes.
func (op Opcode) Valid() bool {
	switch op {
	case OpExecute, OpWait, OpNotify, OpStop:
		return true
	}
	return false
}

func (op Opcode) String() string {
	switch op {
	case OpExecute:
		return "execute"
	case OpWait:
		return "wait"
	case OpNotify:
		return "notify"
	case OpStop:
		return "stop"
	default:
		return fmt.Sprintf("opcode(%q)", byte(op))
	}
}

// Instruction is a single immutable step of a worker stream.
//
// Operand is a reaction id for OpExecute, a semaphore index for OpWait and
// OpNotify, and unused for OpStop.
type Instruction struct {
	Op      Opcode `json:"op"`
	Operand int    `json:"arg"`
}

// Execute returns an Execute instruction for reaction r.
func Execute(r int) Instruction { return Instruction{Op: OpExecute, Operand: r} }

// Wait returns a Wait instruction on semaphore s.
func Wait(s int) Instruction { return Instruction{Op: OpWait, Operand: s} }

// Notify returns a Notify instruction on semaphore s.
func Notify(s int) Instruction { return Instruction{Op: OpNotify, Operand: s} }

// Stop returns the terminal instruction of a stream.
func Stop() Instruction { return Instruction{Op: OpStop} }

func (i Instruction) String() string {
	if i.Op == OpStop {
		return "s"
	}
	return fmt.Sprintf("%c%d", byte(i.Op), i.Operand)
}

// Stream is one worker's instruction sequence within a schedule.
//
// The declared length travels with the backing array; the interpreter never
// reads at or past Len().
type Stream struct {
	insts  []Instruction
	length int
}

// NewStream builds a stream with an explicit declared length.
// Rejects a declared length outside [0, len(insts)].
func NewStream(insts []Instruction, length int) (Stream, error) {
	if length < 0 || length > len(insts) {
		return Stream{}, fmt.Errorf("declared length %d exceeds backing array of %d instructions", length, len(insts))
	}
	cp := make([]Instruction, len(insts))
	copy(cp, insts)
	return Stream{insts: cp, length: length}, nil
}

// MustStream builds a stream whose declared length equals the instruction
// count. Panics on error; intended for tests and generated literals.
func MustStream(insts ...Instruction) Stream {
	s, err := NewStream(insts, len(insts))
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the declared length.
func (s Stream) Len() int { return s.length }

// Cap returns the size of the backing array.
func (s Stream) Cap() int { return len(s.insts) }

// At returns the instruction at pc. ok is false when pc is outside the
// declared length.
func (s Stream) At(pc int) (inst Instruction, ok bool) {
	if pc < 0 || pc >= s.length {
		return Instruction{}, false
	}
	return s.insts[pc], true
}

// Instructions returns a copy of the instructions within the declared length.
func (s Stream) Instructions() []Instruction {
	out := make([]Instruction, s.length)
	copy(out, s.insts[:s.length])
	return out
}

// IsIdle reports whether the stream does nothing but stop.
func (s Stream) IsIdle() bool {
	return s.length == 1 && s.insts[0].Op == OpStop
}

// Executes returns the Execute operands of the stream in order.
func (s Stream) Executes() []int {
	var ids []int
	for _, inst := range s.insts[:s.length] {
		if inst.Op == OpExecute {
			ids = append(ids, inst.Operand)
		}
	}
	return ids
}

func (s Stream) String() string {
	parts := make([]string, s.length)
	for i, inst := range s.insts[:s.length] {
		parts[i] = inst.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
