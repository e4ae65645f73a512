package compiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qsched/internal/ir"
)

func reactions(n int) []ir.ReactionDecl {
	out := make([]ir.ReactionDecl, n)
	for i := range out {
		out[i] = ir.ReactionDecl{ID: i, Name: "r"}
	}
	return out
}

func validProgram() *ir.Program {
	return &ir.Program{
		Name:          "valid",
		Workers:       2,
		ReactionCount: 3,
		NumSemaphores: 1,
		Reactions:     reactions(3),
		Startup:       []int{0},
		Schedules: []ir.Schedule{{
			Name:    "s0",
			Pattern: []int{0},
			Streams: []ir.Stream{
				ir.MustStream(ir.Execute(0), ir.Notify(0), ir.Stop()),
				ir.MustStream(ir.Wait(0), ir.Execute(1), ir.Execute(2), ir.Stop()),
			},
		}},
	}
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateProgramValid(t *testing.T) {
	errs := Validate(validProgram())
	assert.Empty(t, errs, "valid program should have no errors")

	errs = Validate(*validProgram())
	assert.Empty(t, errs, "value form is accepted too")
}

func TestValidateUnsupportedType(t *testing.T) {
	errs := Validate("nope")
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnsupportedIRType, errs[0].Code)
}

func TestValidateProgramErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *ir.Program)
		want   string
	}{
		{
			name: "missing stop",
			mutate: func(p *ir.Program) {
				p.Schedules[0].Streams[0] = ir.MustStream(ir.Execute(0), ir.Notify(0))
			},
			want: ErrMissingStop,
		},
		{
			name: "empty stream",
			mutate: func(p *ir.Program) {
				p.Schedules[0].Streams[0] = ir.MustStream()
			},
			want: ErrMissingStop,
		},
		{
			name: "early stop",
			mutate: func(p *ir.Program) {
				p.Schedules[0].Streams[0] = ir.MustStream(ir.Stop(), ir.Notify(0), ir.Stop())
			},
			want: ErrMisplacedStop,
		},
		{
			name: "execute out of range",
			mutate: func(p *ir.Program) {
				p.Schedules[0].Streams[1] = ir.MustStream(ir.Wait(0), ir.Execute(3), ir.Stop())
			},
			want: ErrReactionOutOfRange,
		},
		{
			name: "semaphore out of range",
			mutate: func(p *ir.Program) {
				p.Schedules[0].Streams[0] = ir.MustStream(ir.Execute(0), ir.Notify(0), ir.Notify(1), ir.Stop())
			},
			want: ErrSemaphoreOutOfRange,
		},
		{
			name: "worker count mismatch",
			mutate: func(p *ir.Program) {
				p.Workers = 3
			},
			want: ErrWorkerCountMismatch,
		},
		{
			name: "zero workers",
			mutate: func(p *ir.Program) {
				p.Workers = 0
				p.Schedules[0].Streams = nil
			},
			want: ErrWorkerCountMismatch,
		},
		{
			name: "wait without notify",
			mutate: func(p *ir.Program) {
				p.Schedules[0].Streams[0] = ir.MustStream(ir.Execute(0), ir.Stop())
			},
			want: ErrWaitWithoutNotify,
		},
		{
			name: "duplicate pattern",
			mutate: func(p *ir.Program) {
				dup := p.Schedules[0]
				dup.Name = "s1"
				dup.Pattern = []int{0, 0}
				p.Schedules = append(p.Schedules, dup)
			},
			want: ErrDuplicatePattern,
		},
		{
			name: "two fallbacks",
			mutate: func(p *ir.Program) {
				p.Schedules[0].Pattern = nil
				p.Schedules = append(p.Schedules, p.Schedules[0])
			},
			want: ErrDuplicatePattern,
		},
		{
			name: "unknown opcode",
			mutate: func(p *ir.Program) {
				p.Schedules[0].Streams[0] = ir.MustStream(ir.Instruction{Op: 'x'}, ir.Notify(0), ir.Stop())
			},
			want: ErrUnknownOpcode,
		},
		{
			name: "unknown trigger",
			mutate: func(p *ir.Program) {
				p.Reactions[0].Triggers = []int{7}
			},
			want: ErrUnknownReaction,
		},
		{
			name: "unknown effect",
			mutate: func(p *ir.Program) {
				p.Reactions[0].Effects = []ir.Effect{{Reaction: -1, Delay: time.Second}}
			},
			want: ErrUnknownReaction,
		},
		{
			name: "unknown startup",
			mutate: func(p *ir.Program) {
				p.Startup = []int{9}
			},
			want: ErrUnknownReaction,
		},
		{
			name: "reaction count mismatch",
			mutate: func(p *ir.Program) {
				p.ReactionCount = 4
			},
			want: ErrReactionCountMismatch,
		},
		{
			name: "no schedules",
			mutate: func(p *ir.Program) {
				p.Schedules = nil
			},
			want: ErrNoSchedules,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProgram()
			tt.mutate(p)
			errs := Validate(p)
			require.NotEmpty(t, errs)
			assert.Contains(t, codes(errs), tt.want)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	p := validProgram()
	p.ReactionCount = 5
	p.Schedules[0].Streams[0] = ir.MustStream(ir.Execute(9))

	errs := Validate(p)
	got := codes(errs)
	assert.Contains(t, got, ErrReactionCountMismatch)
	assert.Contains(t, got, ErrMissingStop)
	assert.Contains(t, got, ErrReactionOutOfRange)
	assert.Contains(t, got, ErrWaitWithoutNotify)
}

func TestValidationErrorFormat(t *testing.T) {
	e := ValidationError{Field: "schedules[0]", Message: "bad", Code: ErrMissingStop}
	assert.Equal(t, "[E202] schedules[0]: bad", e.Error())

	e.Line = 12
	assert.Equal(t, "[E202] line 12: schedules[0]: bad", e.Error())
}

func TestErrors(t *testing.T) {
	assert.NoError(t, Errors(nil))

	err := Errors([]ValidationError{
		{Field: "a", Message: "x", Code: ErrMissingStop},
		{Field: "b", Message: "y", Code: ErrNoSchedules},
	})
	require.Error(t, err)
	assert.Equal(t, "[E202] a: x (and 1 more)", err.Error())

	var verrs *ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs.Errs, 2)
}
