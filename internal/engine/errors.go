package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected by the scheduler.
//
// Runtime errors include:
//   - Missing params: Init called without a program, reaction table or advancer
//   - Inconsistent completion: DoneWithReaction on a reaction that is not queued
//   - Invalid schedule: schedule index out of range or stream count mismatch
//   - Advance failed: the tag advancer returned an error
//
// Every RuntimeError is fatal to the run. RuntimeError includes structured
// fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Worker is the worker that observed the error, or AnonymousWorker.
	Worker int

	// Reaction is the reaction id involved, or -1.
	Reaction int

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeMissingParams indicates Init was called without required params.
	ErrCodeMissingParams RuntimeErrorCode = "MISSING_PARAMS"

	// ErrCodeInvalidParams indicates params that do not fit the worker count.
	ErrCodeInvalidParams RuntimeErrorCode = "INVALID_PARAMS"

	// ErrCodeInconsistentCompletion indicates a completion for a reaction
	// that was not queued.
	ErrCodeInconsistentCompletion RuntimeErrorCode = "INCONSISTENT_COMPLETION"

	// ErrCodeInvalidReaction indicates an unknown reaction id.
	ErrCodeInvalidReaction RuntimeErrorCode = "INVALID_REACTION"

	// ErrCodeInvalidSchedule indicates an unknown schedule index.
	ErrCodeInvalidSchedule RuntimeErrorCode = "INVALID_SCHEDULE"

	// ErrCodeTagRegression indicates an advancer moved the tag backwards.
	ErrCodeTagRegression RuntimeErrorCode = "TAG_REGRESSION"

	// ErrCodeAdvanceFailed indicates the tag advancer returned an error.
	ErrCodeAdvanceFailed RuntimeErrorCode = "ADVANCE_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Worker != AnonymousWorker && e.Reaction >= 0:
		msg = fmt.Sprintf("%s (worker=%d, reaction=%d)", msg, e.Worker, e.Reaction)
	case e.Reaction >= 0:
		msg = fmt.Sprintf("%s (reaction=%d)", msg, e.Reaction)
	case e.Worker != AnonymousWorker:
		msg = fmt.Sprintf("%s (worker=%d)", msg, e.Worker)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsInconsistentCompletion returns true if the error is a completion of a
// reaction that was not queued.
// Uses errors.As to handle wrapped errors.
func IsInconsistentCompletion(err error) bool {
	return hasCode(err, ErrCodeInconsistentCompletion)
}

// IsMissingParams returns true if the error is an Init without params.
func IsMissingParams(err error) bool {
	return hasCode(err, ErrCodeMissingParams)
}

// IsFatal returns true for any RuntimeError. Body errors returned by
// reactions are not RuntimeErrors and are never fatal.
func IsFatal(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

func newError(code RuntimeErrorCode, msg string) *RuntimeError {
	return &RuntimeError{Code: code, Message: msg, Worker: AnonymousWorker, Reaction: -1}
}

// NewInconsistentCompletionError creates a RuntimeError for a completion
// that observed a status other than Queued.
func NewInconsistentCompletionError(worker int, r *Reaction, observed Status) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeInconsistentCompletion,
		Message:  fmt.Sprintf("completion of reaction %q observed status %s, want %s", r.Name, observed, StatusQueued),
		Worker:   worker,
		Reaction: r.ID,
		Details: map[string]string{
			"observed": observed.String(),
		},
	}
}
