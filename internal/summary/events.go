package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"courtcast/internal/fetch"
)

// blockSeparator joins event blocks in the rendered digest.
const blockSeparator = "\n\n—\n\n"

// wideWindow is how far around the schedule window we look when a pinned
// event is not inside it. A pinned event may legitimately start weeks out.
const wideWindow = 30 * 24 * time.Hour

type rawEvent struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	StartTime  string   `json:"start_time"`
	EndTime    string   `json:"end_time"`
	Venue      rawVenue `json:"venue"`
	Capacity   int      `json:"capacity"`
	Registered int      `json:"registered"`
	Cancelled  bool     `json:"cancelled"`
	JoinLink   string   `json:"join_link"`
}

// event is the normalized, source-tagged shape.
type event struct {
	id         string
	kind       string
	name       string
	start, end time.Time
	spacesLeft int
	cancelled  bool
	link       string
}

var eventSources = []struct {
	kind  fetch.Kind
	label string
}{
	{fetch.KindTournaments, "Tournament"},
	{fetch.KindLessons, "Lesson"},
	{fetch.KindClasses, "Class"},
}

// Events summarizes tournaments, lessons and classes into one digest.
type Events struct {
	f Fetcher
}

func NewEvents(f Fetcher) *Events { return &Events{f: f} }

func (e *Events) Summarize(ctx context.Context, req Request) (Result, error) {
	events, err := e.fetchAll(ctx, req, req.Start, req.End)
	if err != nil {
		return Result{}, err
	}

	if req.EventID != "" {
		pinned := filterByID(events, req.EventID)
		if len(pinned) == 0 {
			// The pinned event may fall outside the schedule's normal
			// window; widen the search specifically to locate it.
			wide, err := e.fetchAll(ctx, req, req.Start.Add(-wideWindow), req.End.Add(wideWindow))
			if err != nil {
				return Result{}, err
			}
			pinned = filterByID(wide, req.EventID)
		}
		events = pinned
	}

	var kept []event
	for _, ev := range events {
		// Full events are not worth announcing; cancelled ones still are.
		if !ev.cancelled && ev.spacesLeft <= 0 {
			continue
		}
		kept = append(kept, ev)
	}

	if len(kept) == 0 {
		return Result{Text: "No upcoming events or academy sessions"}, nil
	}

	blocks := make([]string, 0, len(kept))
	for _, ev := range kept {
		blocks = append(blocks, renderEvent(ev))
	}
	return Result{Text: strings.Join(blocks, blockSeparator), Count: len(kept)}, nil
}

// fetchAll queries the three event sources concurrently and tags each
// item by its source type. Any single source failure fails the whole
// fetch; a digest with a silently missing source would read as "nothing
// scheduled".
func (e *Events) fetchAll(ctx context.Context, req Request, start, end time.Time) ([]event, error) {
	loc := req.location()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		merged = make([][]event, len(eventSources))
		errs   = make([]error, len(eventSources))
	)
	for i, src := range eventSources {
		wg.Add(1)
		go func(i int, kind fetch.Kind, label string) {
			defer wg.Done()
			items, err := e.f.Fetch(ctx, fetch.Query{
				ClubID: req.ClubID,
				Kind:   kind,
				Sport:  req.Sport,
				Start:  start,
				End:    end,
			})
			if err != nil {
				mu.Lock()
				errs[i] = err
				mu.Unlock()
				return
			}
			decoded := decodeEvents(items, label, loc)
			mu.Lock()
			merged[i] = decoded
			mu.Unlock()
		}(i, src.kind, src.label)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	// Stable source order: tournaments, then lessons, then classes.
	var out []event
	for _, part := range merged {
		out = append(out, part...)
	}
	return out, nil
}

func decodeEvents(items []json.RawMessage, label string, loc *time.Location) []event {
	var out []event
	for _, raw := range items {
		var re rawEvent
		if err := json.Unmarshal(raw, &re); err != nil {
			continue
		}
		name := strings.TrimSpace(re.Name)
		// Upstream drafts surface as unnamed or literally "Untitled".
		if name == "" || name == "Untitled" {
			continue
		}
		start, ok := parseStamp(re.StartTime, loc)
		if !ok {
			continue
		}
		off := time.Duration(re.Venue.MinuteOffset) * time.Minute
		start = start.Add(off)
		end, ok := parseStamp(re.EndTime, loc)
		if ok {
			end = end.Add(off)
		} else {
			end = start.Add(time.Hour)
		}
		out = append(out, event{
			id:         re.ID,
			kind:       label,
			name:       name,
			start:      start,
			end:        end,
			spacesLeft: re.Capacity - re.Registered,
			cancelled:  re.Cancelled,
			link:       re.JoinLink,
		})
	}
	return out
}

func filterByID(events []event, id string) []event {
	var out []event
	for _, ev := range events {
		if ev.id == id {
			out = append(out, ev)
		}
	}
	return out
}

func renderEvent(ev event) string {
	var b strings.Builder
	b.WriteString(ev.kind + " · " + ev.name)
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s, %s", dateShort(ev.start), timeRange(ev.start, ev.end))
	b.WriteString("\n")
	switch {
	case ev.cancelled:
		b.WriteString("Cancelled")
	case ev.spacesLeft == 1:
		b.WriteString("1 space left")
	default:
		fmt.Fprintf(&b, "%d spaces left", ev.spacesLeft)
	}
	if ev.link != "" {
		b.WriteString("\n")
		b.WriteString(ev.link)
	}
	return b.String()
}
