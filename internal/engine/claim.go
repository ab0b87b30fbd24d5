package engine

import (
	"time"

	"courtcast/internal/model"
)

// NextRun returns the schedule's wall-clock send time one calendar day
// after now, computed in the schedule's named zone and converted to UTC.
// Computing the next day in local time keeps the send at the same local
// hour across DST transitions.
//
// One-off schedules advance exactly the same way: they are retried
// daily until a successful send marks them COMPLETE.
func NextRun(sched model.Schedule, now time.Time) time.Time {
	loc := scheduleLocation(sched)
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day()+1,
		sched.SendHour, sched.SendMinute, 0, 0, loc)
	return next.UTC()
}

func scheduleLocation(sched model.Schedule) *time.Location {
	loc, err := time.LoadLocation(sched.Timezone)
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}
