package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOpcode(t *testing.T) {
	tests := []struct {
		in   string
		want Opcode
	}{
		{"e", OpExecute},
		{"EXE", OpExecute},
		{"execute", OpExecute},
		{"w", OpWait},
		{"wait", OpWait},
		{"n", OpNotify},
		{"Notify", OpNotify},
		{"s", OpStop},
		{"stop", OpStop},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			op, err := ParseOpcode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, op)
			assert.True(t, op.Valid())
		})
	}

	_, err := ParseOpcode("x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown opcode "x"`)
	assert.False(t, Opcode('x').Valid())
	assert.Equal(t, `opcode('x')`, Opcode('x').String())
}

func TestNewStreamDeclaredLength(t *testing.T) {
	insts := []Instruction{Execute(0), Stop(), Execute(1)}

	s, err := NewStream(insts, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 3, s.Cap())
	assert.Equal(t, []Instruction{Execute(0), Stop()}, s.Instructions())
	assert.Equal(t, []int{0}, s.Executes())

	_, ok := s.At(2)
	assert.False(t, ok, "reads at the declared length are rejected")
	_, ok = s.At(-1)
	assert.False(t, ok)

	_, err = NewStream(insts, 4)
	require.Error(t, err)
	_, err = NewStream(insts, -1)
	require.Error(t, err)
}

func TestNewStreamCopiesInput(t *testing.T) {
	insts := []Instruction{Execute(0), Stop()}
	s, err := NewStream(insts, 2)
	require.NoError(t, err)

	insts[0] = Execute(9)
	inst, ok := s.At(0)
	require.True(t, ok)
	assert.Equal(t, Execute(0), inst)
}

func TestStreamString(t *testing.T) {
	assert.Equal(t, "[e0 n0 s]", MustStream(Execute(0), Notify(0), Stop()).String())
	assert.Equal(t, "[w1 e3 s]", MustStream(Wait(1), Execute(3), Stop()).String())
	assert.Equal(t, "[]", MustStream().String())
}

func TestStreamIsIdle(t *testing.T) {
	assert.True(t, MustStream(Stop()).IsIdle())
	assert.False(t, MustStream(Execute(0), Stop()).IsIdle())
	assert.False(t, MustStream().IsIdle())
}
