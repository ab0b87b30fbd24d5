package engine

import (
	"testing"
	"time"

	"courtcast/internal/model"
)

func TestResolveWindowToday(t *testing.T) {
	t.Parallel()

	sched := model.Schedule{Timezone: "Europe/Madrid", TargetDay: model.TargetToday}
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	start, end, err := ResolveWindow(sched, now)
	if err != nil {
		t.Fatal(err)
	}
	// 20:00 CET yesterday .. 19:59:59.999 CET today, in UTC.
	wantStart := time.Date(2026, 1, 14, 19, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, 1, 15, 18, 59, 59, 999000000, time.UTC)
	if !start.Equal(wantStart) || !end.Equal(wantEnd) {
		t.Errorf("window = [%v, %v], want [%v, %v]", start, end, wantStart, wantEnd)
	}
}

func TestResolveWindowTomorrow(t *testing.T) {
	t.Parallel()

	sched := model.Schedule{Timezone: "Europe/Madrid", TargetDay: model.TargetTomorrow}
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	start, end, err := ResolveWindow(sched, now)
	if err != nil {
		t.Fatal(err)
	}
	wantStart := time.Date(2026, 1, 15, 19, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, 1, 16, 18, 59, 59, 999000000, time.UTC)
	if !start.Equal(wantStart) || !end.Equal(wantEnd) {
		t.Errorf("window = [%v, %v], want [%v, %v]", start, end, wantStart, wantEnd)
	}
}

func TestResolveWindowAcrossSpringForward(t *testing.T) {
	t.Parallel()

	// On the DST switch day the local window is 23 wall-clock hours; both
	// edges still land on the right local times.
	sched := model.Schedule{Timezone: "Europe/Madrid", TargetDay: model.TargetToday}
	now := time.Date(2026, 3, 29, 10, 0, 0, 0, time.UTC)

	start, end, err := ResolveWindow(sched, now)
	if err != nil {
		t.Fatal(err)
	}
	wantStart := time.Date(2026, 3, 28, 19, 0, 0, 0, time.UTC)         // 20:00 CET
	wantEnd := time.Date(2026, 3, 29, 17, 59, 59, 999000000, time.UTC) // 19:59:59.999 CEST
	if !start.Equal(wantStart) || !end.Equal(wantEnd) {
		t.Errorf("window = [%v, %v], want [%v, %v]", start, end, wantStart, wantEnd)
	}
}

func TestResolveWindowExplicitOverride(t *testing.T) {
	t.Parallel()

	ws := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	we := time.Date(2026, 2, 7, 23, 59, 59, 0, time.UTC)
	sched := model.Schedule{
		Timezone:    "Europe/Madrid",
		TargetDay:   model.TargetToday,
		WindowStart: &ws,
		WindowEnd:   &we,
	}

	start, end, err := ResolveWindow(sched, time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if !start.Equal(ws) || !end.Equal(we) {
		t.Errorf("override not verbatim: [%v, %v]", start, end)
	}
}

func TestResolveWindowBadZone(t *testing.T) {
	t.Parallel()

	sched := model.Schedule{ID: "s1", Timezone: "Mars/Olympus"}
	if _, _, err := ResolveWindow(sched, time.Now()); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}
