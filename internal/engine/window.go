package engine

import (
	"fmt"
	"time"

	"courtcast/internal/model"
)

// Upstream inventory for a local day is published up to the prior
// evening, so a "day" runs from 20:00 the evening before to 19:59:59.999.
// This is a fixed domain rule, not a tunable.
const (
	windowStartHour = 20
	windowEndHour   = 19
	windowEndMin    = 59
	windowEndSec    = 59
	windowEndNanos  = 999 * int(time.Millisecond)
)

// ResolveWindow turns the schedule's target selector into an absolute
// [start, end) UTC fetch window. An explicit UTC override wins verbatim;
// otherwise the evening-cutoff window is computed in the schedule's zone
// and converted to UTC, which keeps DST shifts correct.
func ResolveWindow(sched model.Schedule, now time.Time) (time.Time, time.Time, error) {
	if sched.WindowStart != nil && sched.WindowEnd != nil {
		return sched.WindowStart.UTC(), sched.WindowEnd.UTC(), nil
	}

	loc, err := time.LoadLocation(sched.Timezone)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("schedule %s: timezone %q: %w", sched.ID, sched.Timezone, err)
	}

	shift := 0
	if sched.TargetDay == model.TargetTomorrow {
		shift = 1
	}

	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day()-1+shift, windowStartHour, 0, 0, 0, loc)
	end := time.Date(local.Year(), local.Month(), local.Day()+shift, windowEndHour, windowEndMin, windowEndSec, windowEndNanos, loc)
	return start.UTC(), end.UTC(), nil
}
