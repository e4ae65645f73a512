package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/roach88/qsched/internal/ir"
)

// Status is the run status of a reaction.
type Status int32

const (
	// StatusInactive means the reaction is not pending at the current tag.
	StatusInactive Status = iota
	// StatusQueued means the reaction was triggered and will run when a
	// worker reaches its Execute instruction.
	StatusQueued
)

func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "inactive"
	case StatusQueued:
		return "queued"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Body is the executable part of a reaction. A returned error is logged and
// counted by the Runtime; it does not stop the run.
type Body func(ctx context.Context, env *Env) error

// Reaction is one entry of the reaction table. The body and any state it
// closes over are owned by the caller; the scheduler owns only the status.
type Reaction struct {
	ID   int
	Name string
	Body Body

	status atomic.Int32
}

// NewReaction creates an inactive reaction.
func NewReaction(id int, name string, body Body) *Reaction {
	return &Reaction{ID: id, Name: name, Body: body}
}

// Status returns the current run status.
func (r *Reaction) Status() Status {
	return Status(r.status.Load())
}

func (r *Reaction) String() string {
	return fmt.Sprintf("%s#%d", r.Name, r.ID)
}

// NewReactionTable builds an inactive reaction per declaration in p, with
// no bodies. Callers assign Body before Init.
func NewReactionTable(p *ir.Program) []*Reaction {
	table := make([]*Reaction, len(p.Reactions))
	for i, decl := range p.Reactions {
		table[i] = NewReaction(i, decl.Name, nil)
	}
	return table
}
