package summary

import (
	"fmt"
	"strconv"
	"time"
)

const minutesPerDay = 24 * 60

// wrapMinute normalizes a minute-of-day value into [0, 1440).
func wrapMinute(m int) int {
	m %= minutesPerDay
	if m < 0 {
		m += minutesPerDay
	}
	return m
}

// clock12 renders a minute-of-day in compact 12-hour form: no ":00"
// suffix, no space before the am/pm marker. 0 -> "12am", 720 -> "12pm",
// 780 -> "1pm", 390 -> "6:30am".
func clock12(m int) string {
	m = wrapMinute(m)
	h := m / 60
	min := m % 60

	ap := "am"
	if h >= 12 {
		ap = "pm"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	if min == 0 {
		return strconv.Itoa(h12) + ap
	}
	return fmt.Sprintf("%d:%02d%s", h12, min, ap)
}

// clock12Time renders the wall clock of t in compact 12-hour form.
func clock12Time(t time.Time) string {
	return clock12(t.Hour()*60 + t.Minute())
}

// timeRange renders "6pm – 7:30pm".
func timeRange(start, end time.Time) string {
	return clock12Time(start) + " – " + clock12Time(end)
}

// dateShort renders "Mon 2 Jan".
func dateShort(t time.Time) string {
	return t.Format("Mon 2 Jan")
}

// parseStamp decodes the upstream timestamp flavors: RFC3339 or a naive
// local "2006-01-02T15:04:05" (with or without seconds). Naive stamps
// are interpreted in loc.
func parseStamp(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// minuteOfDay extracts the local minute-of-day from an upstream slot
// start, which may be a bare clock ("14:00", "14:00:00") or a full stamp.
func minuteOfDay(s string, loc *time.Location) (int, bool) {
	if t, ok := parseStamp(s, loc); ok {
		return t.Hour()*60 + t.Minute(), true
	}
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute(), true
		}
	}
	return 0, false
}
