package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"courtcast/internal/fetch"
)

// Day-part buckets in minutes since local midnight. Non-overlapping;
// a slot belongs to the bucket containing its corrected start.
var dayParts = [3]struct {
	label  string
	lo, hi int
}{
	{"Morning", 6 * 60, 12 * 60},
	{"Afternoon", 12 * 60, 17 * 60},
	{"Evening", 17 * 60, 23 * 60},
}

// rawCourt is one upstream availability item: a bookable resource with
// its nested slot list.
type rawCourt struct {
	ResourceID   string    `json:"resource_id"`
	ResourceName string    `json:"resource_name"`
	Venue        rawVenue  `json:"venue"`
	Slots        []rawSlot `json:"slots"`
}

// rawVenue carries the per-venue minute offset correcting a known
// upstream timezone-reporting quirk.
type rawVenue struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	City         string `json:"city"`
	MinuteOffset int    `json:"minute_offset"`
}

type rawSlot struct {
	StartTime string `json:"start_time"`
	Duration  int    `json:"duration_minutes"`
}

// Availability summarizes court slot inventory into day-part lines like
// "Morning: 6:30am – 12:00pm x2".
type Availability struct {
	f Fetcher
}

func NewAvailability(f Fetcher) *Availability { return &Availability{f: f} }

func (a *Availability) Summarize(ctx context.Context, req Request) (Result, error) {
	items, err := a.f.Fetch(ctx, fetch.Query{
		ClubID: req.ClubID,
		Kind:   fetch.KindAvailability,
		Sport:  req.Sport,
		Start:  req.Start,
		End:    req.End,
	})
	if err != nil {
		return Result{}, err
	}

	loc := req.location()

	type span struct{ start, end int }
	var spans []span
	for _, raw := range items {
		var court rawCourt
		if err := json.Unmarshal(raw, &court); err != nil {
			continue
		}
		for _, sl := range court.Slots {
			m, ok := minuteOfDay(sl.StartTime, loc)
			if !ok {
				continue
			}
			dur := sl.Duration
			if dur <= 0 {
				dur = 60
			}
			start := wrapMinute(m + court.Venue.MinuteOffset)
			spans = append(spans, span{start: start, end: start + dur})
		}
	}

	type bucketAgg struct {
		count    int
		minStart int
		maxEnd   int
	}
	var agg [len(dayParts)]bucketAgg

	total := 0
	outside := 0
	for _, sp := range spans {
		placed := false
		for i, dp := range dayParts {
			if sp.start < dp.lo || sp.start >= dp.hi {
				continue
			}
			// A slot may run past its bucket boundary; the displayed end
			// is clamped to the boundary.
			end := sp.end
			if end > dp.hi {
				end = dp.hi
			}
			b := &agg[i]
			if b.count == 0 || sp.start < b.minStart {
				b.minStart = sp.start
			}
			if b.count == 0 || end > b.maxEnd {
				b.maxEnd = end
			}
			b.count++
			total++
			placed = true
			break
		}
		if !placed {
			outside++
		}
	}

	if total == 0 {
		return Result{
			Text: fmt.Sprintf("No bookable slots between 6am and 11pm (%d outside this window)", outside),
		}, nil
	}

	var lines []string
	for i, dp := range dayParts {
		b := agg[i]
		if b.count == 0 {
			continue
		}
		line := fmt.Sprintf("%s: %s – %s", dp.label, clock12(b.minStart), clock12(b.maxEnd))
		// Small buckets show the exact slot count.
		if b.count < 5 {
			line += fmt.Sprintf(" x%d", b.count)
		}
		lines = append(lines, line)
	}

	return Result{Text: strings.Join(lines, "\n"), Count: total}, nil
}
