package summary

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"courtcast/internal/fetch"
)

func eventItem(overrides map[string]any) map[string]any {
	e := map[string]any{
		"id":         "e1",
		"name":       "Spring Open",
		"start_time": "2026-03-02T10:00:00",
		"end_time":   "2026-03-02T12:00:00",
		"venue":      map[string]any{"name": "Hub", "minute_offset": 0},
		"capacity":   8,
		"registered": 6,
		"cancelled":  false,
		"join_link":  "https://club.example/e1",
	}
	for k, v := range overrides {
		e[k] = v
	}
	return e
}

func eventRequest(eventID string) Request {
	return Request{
		ClubID:  "club-1",
		Sport:   "PADEL",
		Start:   time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC),
		End:     time.Date(2026, 3, 2, 18, 59, 59, 0, time.UTC),
		EventID: eventID,
	}
}

func TestEventsRendering(t *testing.T) {
	f := newFake()
	f.items[fetch.KindTournaments] = rawItems(eventItem(nil))
	f.items[fetch.KindLessons] = rawItems(eventItem(map[string]any{
		"id": "l1", "name": "Junior Academy", "capacity": 10, "registered": 9,
	}))

	res, err := NewEvents(f).Summarize(context.Background(), eventRequest(""))
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 2 {
		t.Fatalf("count = %d, want 2", res.Count)
	}

	blocks := strings.Split(res.Text, "\n\n—\n\n")
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d:\n%s", len(blocks), res.Text)
	}
	// Source order is fixed: tournaments before lessons.
	wantFirst := "Tournament · Spring Open\nMon 2 Mar, 10am – 12pm\n2 spaces left\nhttps://club.example/e1"
	if blocks[0] != wantFirst {
		t.Errorf("first block =\n%q\nwant\n%q", blocks[0], wantFirst)
	}
	if !strings.Contains(blocks[1], "Lesson · Junior Academy") || !strings.Contains(blocks[1], "1 space left") {
		t.Errorf("second block wrong:\n%s", blocks[1])
	}
}

func TestEventsDropsDraftsAndFull(t *testing.T) {
	f := newFake()
	f.items[fetch.KindClasses] = rawItems(
		eventItem(map[string]any{"id": "untitled", "name": "Untitled"}),
		eventItem(map[string]any{"id": "blank", "name": "   "}),
		eventItem(map[string]any{"id": "full", "name": "Full House", "capacity": 4, "registered": 4}),
		eventItem(map[string]any{"id": "cxl", "name": "Rained Off", "capacity": 4, "registered": 4, "cancelled": true}),
	)

	res, err := NewEvents(f).Summarize(context.Background(), eventRequest(""))
	if err != nil {
		t.Fatal(err)
	}
	// Only the cancelled one survives: drafts are dropped even before the
	// capacity check, full events are not announced, cancelled ones are.
	if res.Count != 1 || !strings.Contains(res.Text, "Rained Off") || !strings.Contains(res.Text, "Cancelled") {
		t.Errorf("count=%d text:\n%s", res.Count, res.Text)
	}
}

func TestEventsEmptySentinel(t *testing.T) {
	f := newFake()
	res, err := NewEvents(f).Summarize(context.Background(), eventRequest(""))
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "No upcoming events or academy sessions" || res.Count != 0 {
		t.Errorf("got %q count=%d", res.Text, res.Count)
	}
	if !IsEmpty(res.Text) {
		t.Error("empty events text not recognized by IsEmpty")
	}
}

func TestEventsSourceFailureFailsFetch(t *testing.T) {
	f := newFake()
	f.err = errors.New("lessons endpoint down")
	if _, err := NewEvents(f).Summarize(context.Background(), eventRequest("")); err == nil {
		t.Fatal("expected error")
	}
}

// windowedFetcher serves a different item set when queried with a
// widened window.
type windowedFetcher struct {
	mu         sync.Mutex
	narrow     map[fetch.Kind][]json.RawMessage
	wide       map[fetch.Kind][]json.RawMessage
	narrowFrom time.Time
	wideCalls  int
}

func (f *windowedFetcher) Fetch(_ context.Context, q fetch.Query) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if q.Start.Before(f.narrowFrom) {
		f.wideCalls++
		return f.wide[q.Kind], nil
	}
	return f.narrow[q.Kind], nil
}

func TestEventsPinnedWideRefetch(t *testing.T) {
	req := eventRequest("far-away")
	f := &windowedFetcher{
		narrowFrom: req.Start,
		narrow: map[fetch.Kind][]json.RawMessage{
			fetch.KindTournaments: rawItems(eventItem(map[string]any{"id": "near", "name": "This Week Cup"})),
		},
		wide: map[fetch.Kind][]json.RawMessage{
			fetch.KindTournaments: rawItems(
				eventItem(map[string]any{"id": "near", "name": "This Week Cup"}),
				eventItem(map[string]any{"id": "far-away", "name": "Summer Slam", "start_time": "2026-03-20T10:00:00", "end_time": "2026-03-20T14:00:00"}),
			),
		},
	}

	res, err := NewEvents(f).Summarize(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if f.wideCalls == 0 {
		t.Fatal("pinned event missing from the window should trigger a wide refetch")
	}
	if res.Count != 1 || !strings.Contains(res.Text, "Summer Slam") || strings.Contains(res.Text, "This Week Cup") {
		t.Errorf("pinned digest wrong (count=%d):\n%s", res.Count, res.Text)
	}
}
