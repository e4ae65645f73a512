package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeError_Format(t *testing.T) {
	e := newError(ErrCodeMissingParams, "init requires params")
	assert.Equal(t, "MISSING_PARAMS: init requires params", e.Error())

	e = &RuntimeError{Code: ErrCodeInvalidReaction, Message: "unknown", Worker: AnonymousWorker, Reaction: 4}
	assert.Equal(t, "INVALID_REACTION: unknown (reaction=4)", e.Error())

	e = &RuntimeError{Code: ErrCodeInconsistentCompletion, Message: "bad", Worker: 2, Reaction: 1}
	assert.Equal(t, "INCONSISTENT_COMPLETION: bad (worker=2, reaction=1)", e.Error())

	e = &RuntimeError{Code: ErrCodeAdvanceFailed, Message: "failed", Worker: 0, Reaction: -1, Err: errors.New("io")}
	assert.Equal(t, "ADVANCE_FAILED: failed (worker=0): io", e.Error())
}

func TestRuntimeError_Helpers(t *testing.T) {
	r := NewReaction(3, "sink", nil)
	err := fmt.Errorf("worker loop: %w", NewInconsistentCompletionError(1, r, StatusInactive))

	assert.True(t, IsInconsistentCompletion(err), "matches through wrapping")
	assert.True(t, IsFatal(err))
	assert.False(t, IsMissingParams(err))

	plain := errors.New("body failed")
	assert.False(t, IsFatal(plain))
	assert.False(t, IsInconsistentCompletion(plain))
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "inactive", StatusInactive.String())
	assert.Equal(t, "queued", StatusQueued.String())
	assert.Equal(t, "status(7)", Status(7).String())
}
