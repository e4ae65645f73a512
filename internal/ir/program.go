package ir

import (
	"slices"
	"time"
)

// Effect is a future trigger a reaction declares: when the reaction runs,
// Reaction is scheduled Delay after the current tag.
type Effect struct {
	Reaction int           `json:"reaction"`
	Delay    time.Duration `json:"delay"`
}

// ReactionDecl describes one entry of the reaction table as emitted by the
// generator. ID equals the reaction's index in Program.Reactions.
type ReactionDecl struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Triggers []int    `json:"triggers,omitempty"` // same-tag downstream reactions
	Effects  []Effect `json:"effects,omitempty"`  // future-tag reactions
}

// Schedule is one static schedule: a stream per worker slot.
//
// Pattern is the set of reactions triggered at tag start that selects this
// schedule. A nil Pattern makes the schedule a fallback for unmatched
// trigger sets.
type Schedule struct {
	Name    string   `json:"name"`
	Pattern []int    `json:"pattern,omitempty"`
	Streams []Stream `json:"-"`
}

// Stream returns the stream of worker w.
func (s Schedule) Stream(w int) (Stream, bool) {
	if w < 0 || w >= len(s.Streams) {
		return Stream{}, false
	}
	return s.Streams[w], true
}

// Program is the complete generated artifact consumed by the scheduler.
//
// Invariants (checked by compiler.Validate):
//   - ReactionCount == len(Reactions)
//   - every schedule has exactly Workers streams
//   - every stream ends with exactly one Stop within its declared length
//   - Execute operands < ReactionCount; Wait/Notify operands < NumSemaphores
type Program struct {
	Name          string         `json:"name"`
	Workers       int            `json:"workers"`
	ReactionCount int            `json:"reaction_count"`
	NumSemaphores int            `json:"num_semaphores"`
	Reactions     []ReactionDecl `json:"reactions"`
	Startup       []int          `json:"startup,omitempty"`
	Schedules     []Schedule     `json:"schedules"`
}

// Schedule returns schedule i.
func (p *Program) Schedule(i int) (Schedule, bool) {
	if i < 0 || i >= len(p.Schedules) {
		return Schedule{}, false
	}
	return p.Schedules[i], true
}

// ReactionName returns the declared name of reaction id, or "" if unknown.
func (p *Program) ReactionName(id int) string {
	if id < 0 || id >= len(p.Reactions) {
		return ""
	}
	return p.Reactions[id].Name
}

// ScheduleFor returns the index of the schedule whose pattern equals the
// given trigger set. Order and duplicates in triggered are ignored. When no
// pattern matches, the first schedule without a pattern is returned.
func (p *Program) ScheduleFor(triggered []int) (int, bool) {
	set := NormalizeSet(triggered)
	fallback := -1
	for i, s := range p.Schedules {
		if s.Pattern == nil {
			if fallback < 0 {
				fallback = i
			}
			continue
		}
		if slices.Equal(NormalizeSet(s.Pattern), set) {
			return i, true
		}
	}
	if fallback >= 0 {
		return fallback, true
	}
	return 0, false
}

// NormalizeSet returns a sorted copy of ids without duplicates.
func NormalizeSet(ids []int) []int {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
