package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qsched/internal/ir"
)

func TestParseStream(t *testing.T) {
	tests := []struct {
		in   string
		want []ir.Instruction
	}{
		{"s", []ir.Instruction{ir.Stop()}},
		{"e0 n0 s", []ir.Instruction{ir.Execute(0), ir.Notify(0), ir.Stop()}},
		{"[w1 e12 s]", []ir.Instruction{ir.Wait(1), ir.Execute(12), ir.Stop()}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			st, err := ParseStream(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.Instructions())
			assert.Equal(t, len(tt.want), st.Len())
		})
	}
}

func TestParseStream_RoundTripsString(t *testing.T) {
	st := MustParseStream("e0 w1 n2 s")
	again, err := ParseStream(st.String())
	require.NoError(t, err)
	assert.Equal(t, st.Instructions(), again.Instructions())
}

func TestParseStream_Errors(t *testing.T) {
	for _, in := range []string{"x0 s", "eX s", "e s"} {
		_, err := ParseStream(in)
		assert.Error(t, err, in)
	}
	assert.Panics(t, func() { MustParseStream("q") })
}

func TestProgramBuilder(t *testing.T) {
	p := NewProgram("demo", 2, "a", "b", "c").
		Semaphores(1).
		Startup(0).
		Triggers(0, 1).
		Effect(1, 2, "10ms").
		Schedule("start", []int{0}, "e0 e1 n0 s", "w0 s").
		Schedule("fallback", nil, "e2 s", "s").
		Build()

	assert.Equal(t, "demo", p.Name)
	assert.Equal(t, 3, p.ReactionCount)
	assert.Equal(t, 1, p.NumSemaphores)
	assert.Equal(t, []int{1}, p.Reactions[0].Triggers)
	assert.Equal(t, []ir.Effect{{Reaction: 2, Delay: 10 * time.Millisecond}}, p.Reactions[1].Effects)
	require.Len(t, p.Schedules, 2)
	assert.Nil(t, p.Schedules[1].Pattern)
	assert.True(t, p.Schedules[1].Streams[1].IsIdle())
}
