package harness

import (
	"strconv"

	"github.com/roach88/qsched/internal/ir"
)

// TagEvent is one tag of the trace with the reactions each worker ran,
// named, in dispatch order. Cross-worker interleaving is not recorded; it
// depends on thread timing.
type TagEvent struct {
	Ordinal  int64            `json:"ordinal"`
	TimeNs   int64            `json:"time_ns"`
	Micro    uint32           `json:"microstep"`
	Schedule string           `json:"schedule"`
	Workers  map[int][]string `json:"workers"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if the run completed and all assertions match.
	Pass bool `json:"pass"`

	// ProgramHash identifies the program that ran.
	ProgramHash string `json:"program_hash"`

	// Trace contains every tag of the run in ordinal order.
	Trace []TagEvent `json:"trace"`

	// Errors contains failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Executed and Failed count reaction bodies run and failed.
	Executed int64 `json:"executed"`
	Failed   int64 `json:"failed"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TagEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTag appends a recorded tag, naming its schedule and reactions from p.
func (r *Result) AddTag(p *ir.Program, tt ir.TagTrace) {
	ev := TagEvent{
		Ordinal: tt.Ordinal,
		TimeNs:  tt.Tag.Time,
		Micro:   tt.Tag.Microstep,
		Workers: make(map[int][]string, len(tt.Workers)),
	}
	if s, ok := p.Schedule(tt.ScheduleIndex); ok {
		ev.Schedule = s.Name
	} else {
		ev.Schedule = strconv.Itoa(tt.ScheduleIndex)
	}
	for w, execs := range tt.Workers {
		names := make([]string, len(execs))
		for i, e := range execs {
			names[i] = e.ReactionName
		}
		ev.Workers[w] = names
	}
	r.Trace = append(r.Trace, ev)
}
