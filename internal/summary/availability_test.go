package summary

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"courtcast/internal/fetch"
)

func availRequest() Request {
	return Request{
		ClubID: "club-1",
		Sport:  "PADEL",
		Start:  time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC),
		End:    time.Date(2026, 3, 2, 18, 59, 59, 0, time.UTC),
	}
}

func TestAvailabilityBuckets(t *testing.T) {
	f := newFake()
	f.items[fetch.KindAvailability] = rawItems(
		map[string]any{
			"resource_id":   "c1",
			"resource_name": "Court 1",
			"venue":         map[string]any{"id": "v1", "name": "Hub", "minute_offset": 0},
			"slots": []map[string]any{
				{"start_time": "06:30", "duration_minutes": 90},
				{"start_time": "11:40", "duration_minutes": 60}, // runs past noon, clamped
				{"start_time": "18:00", "duration_minutes": 60},
			},
		},
		map[string]any{
			"resource_id":   "c2",
			"resource_name": "Court 2",
			"venue":         map[string]any{"id": "v1", "name": "Hub", "minute_offset": 0},
			"slots": []map[string]any{
				{"start_time": "05:00", "duration_minutes": 60}, // before 6am
			},
		},
	)

	res, err := NewAvailability(f).Summarize(context.Background(), availRequest())
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 3 {
		t.Errorf("count = %d, want 3", res.Count)
	}
	want := "Morning: 6:30am – 12pm x2\nEvening: 6pm – 7pm x1"
	if res.Text != want {
		t.Errorf("text = %q, want %q", res.Text, want)
	}
}

func TestAvailabilityVenueOffset(t *testing.T) {
	f := newFake()
	f.items[fetch.KindAvailability] = rawItems(map[string]any{
		"venue": map[string]any{"minute_offset": 60},
		"slots": []map[string]any{
			// Raw 5am; the venue offset corrects it into the morning bucket.
			{"start_time": "05:00", "duration_minutes": 60},
		},
	})

	res, err := NewAvailability(f).Summarize(context.Background(), availRequest())
	if err != nil {
		t.Fatal(err)
	}
	if want := "Morning: 6am – 7am x1"; res.Text != want {
		t.Errorf("text = %q, want %q", res.Text, want)
	}
}

func TestAvailabilityEmpty(t *testing.T) {
	f := newFake()
	f.items[fetch.KindAvailability] = rawItems(map[string]any{
		"venue": map[string]any{"minute_offset": 0},
		"slots": []map[string]any{
			{"start_time": "05:00", "duration_minutes": 60},
		},
	})

	res, err := NewAvailability(f).Summarize(context.Background(), availRequest())
	if err != nil {
		t.Fatal(err)
	}
	want := "No bookable slots between 6am and 11pm (1 outside this window)"
	if res.Text != want {
		t.Errorf("text = %q, want %q", res.Text, want)
	}
	if res.Count != 0 {
		t.Errorf("count = %d, want 0", res.Count)
	}
	if !IsEmpty(res.Text) {
		t.Error("empty availability text not recognized by IsEmpty")
	}
}

func TestAvailabilityLargeBucketOmitsCount(t *testing.T) {
	slots := make([]map[string]any, 0, 5)
	for i := 0; i < 5; i++ {
		slots = append(slots, map[string]any{"start_time": "07:00", "duration_minutes": 60})
	}
	f := newFake()
	f.items[fetch.KindAvailability] = rawItems(map[string]any{
		"venue": map[string]any{"minute_offset": 0},
		"slots": slots,
	})

	res, err := NewAvailability(f).Summarize(context.Background(), availRequest())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(res.Text, " x") {
		t.Errorf("bucket with 5 slots should omit the count suffix: %q", res.Text)
	}
}

func TestAvailabilityFetchError(t *testing.T) {
	f := &fakeFetcher{err: errors.New("upstream down")}
	if _, err := NewAvailability(f).Summarize(context.Background(), availRequest()); err == nil {
		t.Fatal("expected error")
	}
}
