// Package tag implements logical time for the reactor runtime.
//
// A tag is a (time, microstep) pair. Tags are totally ordered
// lexicographically and only ever advance. Time is a logical nanosecond
// offset from the start of the run; it is never read from a wall clock.
package tag

import (
	"fmt"
	"math"
	"time"
)

// Tag is a logical-time coordinate.
type Tag struct {
	Time      int64  `json:"time"`
	Microstep uint32 `json:"microstep"`
}

// Zero is the start tag of every run.
var Zero = Tag{}

// Forever is greater than every reachable tag.
var Forever = Tag{Time: math.MaxInt64, Microstep: math.MaxUint32}

// Compare returns -1, 0 or +1 depending on whether t is before, equal to, or
// after u.
func (t Tag) Compare(u Tag) int {
	switch {
	case t.Time < u.Time:
		return -1
	case t.Time > u.Time:
		return 1
	case t.Microstep < u.Microstep:
		return -1
	case t.Microstep > u.Microstep:
		return 1
	}
	return 0
}

// Before reports whether t < u.
func (t Tag) Before(u Tag) bool { return t.Compare(u) < 0 }

// After reports whether t > u.
func (t Tag) After(u Tag) bool { return t.Compare(u) > 0 }

// Delay returns the tag d after t. A zero delay yields the next microstep at
// the same time; a positive delay yields microstep 0 at t.Time+d. Results
// saturate at Forever.
func (t Tag) Delay(d time.Duration) Tag {
	if d <= 0 {
		if t.Microstep == math.MaxUint32 {
			return Forever
		}
		return Tag{Time: t.Time, Microstep: t.Microstep + 1}
	}
	if t.Time > math.MaxInt64-int64(d) {
		return Forever
	}
	return Tag{Time: t.Time + int64(d)}
}

// Elapsed returns the logical time of t as a duration.
func (t Tag) Elapsed() time.Duration { return time.Duration(t.Time) }

func (t Tag) String() string {
	if t == Forever {
		return "(forever)"
	}
	return fmt.Sprintf("(%s, %d)", time.Duration(t.Time), t.Microstep)
}
