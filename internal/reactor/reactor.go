// Package reactor builds reaction bodies from a program's reaction
// declarations, so that a program file alone is runnable: each body queues
// its same-tag triggers and schedules its delayed effects.
package reactor

import (
	"context"
	"fmt"

	"github.com/roach88/qsched/internal/engine"
	"github.com/roach88/qsched/internal/ir"
)

// Hook runs inside every scripted body before its triggers and effects.
// A returned error fails the body without firing anything.
type Hook func(ctx context.Context, env *engine.Env, decl ir.ReactionDecl) error

// Script returns the body for one declaration.
func Script(decl ir.ReactionDecl, hooks ...Hook) engine.Body {
	return func(ctx context.Context, env *engine.Env) error {
		for _, h := range hooks {
			if err := h(ctx, env, decl); err != nil {
				return err
			}
		}
		for _, id := range decl.Triggers {
			if err := env.Trigger(id); err != nil {
				return fmt.Errorf("%s: trigger %d: %w", decl.Name, id, err)
			}
		}
		for _, eff := range decl.Effects {
			if err := env.Schedule(eff.Reaction, eff.Delay); err != nil {
				return fmt.Errorf("%s: schedule %d after %s: %w", decl.Name, eff.Reaction, eff.Delay, err)
			}
		}
		return nil
	}
}

// Bind assigns a scripted body to every reaction in table that has none.
// table must be indexed like p.Reactions.
func Bind(p *ir.Program, table []*engine.Reaction, hooks ...Hook) {
	for i, decl := range p.Reactions {
		if i < len(table) && table[i].Body == nil {
			table[i].Body = Script(decl, hooks...)
		}
	}
}

// NewTable returns a reaction table for p with scripted bodies.
func NewTable(p *ir.Program, hooks ...Hook) []*engine.Reaction {
	table := engine.NewReactionTable(p)
	Bind(p, table, hooks...)
	return table
}
