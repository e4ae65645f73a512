package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string     // Assertion type for categorization
	Expected string     // Human-readable expected outcome
	Actual   string     // Human-readable actual outcome
	Trace    []TagEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] t=%dns/%d %s", ev.Ordinal, ev.TimeNs, ev.Micro, ev.Schedule)
		workers := make([]int, 0, len(ev.Workers))
		for w := range ev.Workers {
			workers = append(workers, w)
		}
		slices.Sort(workers)
		for _, w := range workers {
			fmt.Fprintf(&buf, " w%d=%v", w, ev.Workers[w])
		}
		buf.WriteByte('\n')
	}

	return buf.String()
}

// countExecutions counts how often reaction ran across every worker and tag.
func countExecutions(trace []TagEvent, reaction string) int {
	count := 0
	for _, ev := range trace {
		for _, names := range ev.Workers {
			for _, n := range names {
				if n == reaction {
					count++
				}
			}
		}
	}
	return count
}

// assertExecuted checks that the reaction ran exactly Count times.
func assertExecuted(trace []TagEvent, assertion Assertion) error {
	count := countExecutions(trace, assertion.Reaction)
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertExecuted,
			Expected: fmt.Sprintf("%d executions of %s", assertion.Count, assertion.Reaction),
			Actual:   fmt.Sprintf("%d executions", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertNotExecuted checks that the reaction never ran.
func assertNotExecuted(trace []TagEvent, assertion Assertion) error {
	if count := countExecutions(trace, assertion.Reaction); count != 0 {
		return &AssertionError{
			Type:     AssertNotExecuted,
			Expected: fmt.Sprintf("%s never executed", assertion.Reaction),
			Actual:   fmt.Sprintf("%d executions", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertWorkerOrder checks that on one worker at one tag the given reactions
// ran in order. Other reactions may run in between.
func assertWorkerOrder(trace []TagEvent, assertion Assertion) error {
	var ran []string
	found := false
	for _, ev := range trace {
		if ev.Ordinal == assertion.Tag {
			ran = ev.Workers[assertion.Worker]
			found = true
			break
		}
	}
	if !found {
		return &AssertionError{
			Type:     AssertWorkerOrder,
			Expected: fmt.Sprintf("tag %d in trace", assertion.Tag),
			Actual:   fmt.Sprintf("trace has %d tags", len(trace)),
			Trace:    trace,
		}
	}

	next := 0
	for _, name := range ran {
		if next < len(assertion.Reactions) && name == assertion.Reactions[next] {
			next++
		}
	}
	if next != len(assertion.Reactions) {
		return &AssertionError{
			Type:     AssertWorkerOrder,
			Expected: fmt.Sprintf("worker %d at tag %d runs %v in order", assertion.Worker, assertion.Tag, assertion.Reactions),
			Actual:   fmt.Sprintf("worker %d ran %v", assertion.Worker, ran),
			Trace:    trace,
		}
	}
	return nil
}

// assertTagCount checks the number of tags the run passed through.
func assertTagCount(trace []TagEvent, assertion Assertion) error {
	if len(trace) != assertion.Count {
		return &AssertionError{
			Type:     AssertTagCount,
			Expected: fmt.Sprintf("%d tags", assertion.Count),
			Actual:   fmt.Sprintf("%d tags", len(trace)),
			Trace:    trace,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertExecuted:
			err = assertExecuted(result.Trace, a)
		case AssertNotExecuted:
			err = assertNotExecuted(result.Trace, a)
		case AssertWorkerOrder:
			err = assertWorkerOrder(result.Trace, a)
		case AssertTagCount:
			err = assertTagCount(result.Trace, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}
