// Package testutil provides deterministic helpers shared by tests across
// packages: fixed run ids and a compact builder for hand-written programs.
package testutil

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/qsched/internal/ir"
)

// ParseStream parses the compact form printed by ir.Stream.String, e.g.
// "e0 n1 s" or "[w1 e2 s]". The declared length equals the instruction
// count.
func ParseStream(s string) (ir.Stream, error) {
	s = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(s), "["), "]")
	var insts []ir.Instruction
	for _, field := range strings.Fields(s) {
		op, err := ir.ParseOpcode(field[:1])
		if err != nil {
			return ir.Stream{}, fmt.Errorf("instruction %q: %w", field, err)
		}
		if op == ir.OpStop {
			insts = append(insts, ir.Stop())
			continue
		}
		n, err := strconv.Atoi(field[1:])
		if err != nil {
			return ir.Stream{}, fmt.Errorf("instruction %q: bad operand: %w", field, err)
		}
		insts = append(insts, ir.Instruction{Op: op, Operand: n})
	}
	return ir.NewStream(insts, len(insts))
}

// MustParseStream is ParseStream that panics on error.
func MustParseStream(s string) ir.Stream {
	st, err := ParseStream(s)
	if err != nil {
		panic(err)
	}
	return st
}

// ProgramBuilder assembles an ir.Program for tests.
//
//	p := testutil.NewProgram("pipeline", 2, "a", "b").
//		Semaphores(1).
//		Startup(0, 1).
//		Schedule("s0", nil, "e0 n0 s", "w0 e1 s").
//		Build()
type ProgramBuilder struct {
	p ir.Program
}

// NewProgram starts a program with one reaction per name, ids in order.
func NewProgram(name string, workers int, reactions ...string) *ProgramBuilder {
	b := &ProgramBuilder{p: ir.Program{Name: name, Workers: workers}}
	for i, r := range reactions {
		b.p.Reactions = append(b.p.Reactions, ir.ReactionDecl{ID: i, Name: r})
	}
	b.p.ReactionCount = len(reactions)
	return b
}

// Semaphores sets the number of dependency semaphores.
func (b *ProgramBuilder) Semaphores(n int) *ProgramBuilder {
	b.p.NumSemaphores = n
	return b
}

// Startup sets the reactions triggered at the start tag.
func (b *ProgramBuilder) Startup(ids ...int) *ProgramBuilder {
	b.p.Startup = ids
	return b
}

// Triggers adds same-tag downstream reactions to reaction id.
func (b *ProgramBuilder) Triggers(id int, downstream ...int) *ProgramBuilder {
	b.p.Reactions[id].Triggers = append(b.p.Reactions[id].Triggers, downstream...)
	return b
}

// Effect makes reaction id schedule target after delay.
func (b *ProgramBuilder) Effect(id int, target int, delay string) *ProgramBuilder {
	d, err := parseDelay(delay)
	if err != nil {
		panic(err)
	}
	b.p.Reactions[id].Effects = append(b.p.Reactions[id].Effects, ir.Effect{Reaction: target, Delay: d})
	return b
}

// Schedule appends a schedule with one compact stream per worker. A nil
// pattern makes it the fallback schedule.
func (b *ProgramBuilder) Schedule(name string, pattern []int, streams ...string) *ProgramBuilder {
	s := ir.Schedule{Name: name, Pattern: pattern}
	for _, st := range streams {
		s.Streams = append(s.Streams, MustParseStream(st))
	}
	b.p.Schedules = append(b.p.Schedules, s)
	return b
}

// Build returns the program. The builder must not be reused.
func (b *ProgramBuilder) Build() *ir.Program {
	p := b.p
	return &p
}
