package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"courtcast/internal/deliver"
	"courtcast/internal/fetch"
	"courtcast/internal/model"
	"courtcast/internal/storage"
	logx "courtcast/pkg/logx"
)

// recorder keeps a cross-fake ordering trace.
type recorder struct {
	mu  sync.Mutex
	ops []string
}

func (r *recorder) add(op string) {
	r.mu.Lock()
	r.ops = append(r.ops, op)
	r.mu.Unlock()
}

type claimRec struct {
	id                string
	observed, nextDue time.Time
}

type outcomeRec struct {
	id      string
	outcome model.Outcome
	lastErr string
}

type fakeStore struct {
	mu        sync.Mutex
	rec       *recorder
	due       []model.Schedule
	listErr   error
	claimErr  map[string]error
	claims    []claimRec
	outcomes  []outcomeRec
	runlog    []model.RunLogEntry
	completed []string
}

func (s *fakeStore) ListDue(context.Context, time.Time, int) ([]model.Schedule, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.due, nil
}

func (s *fakeStore) Claim(_ context.Context, id string, observed, nextDue, _ time.Time) error {
	if s.rec != nil {
		s.rec.add("claim")
	}
	if err := s.claimErr[id]; err != nil {
		return err
	}
	s.mu.Lock()
	s.claims = append(s.claims, claimRec{id: id, observed: observed, nextDue: nextDue})
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) RecordOutcome(_ context.Context, id string, outcome model.Outcome, lastErr string) error {
	s.mu.Lock()
	s.outcomes = append(s.outcomes, outcomeRec{id: id, outcome: outcome, lastErr: lastErr})
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) MarkComplete(_ context.Context, id string) error {
	s.mu.Lock()
	s.completed = append(s.completed, id)
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) AppendRunLog(_ context.Context, e model.RunLogEntry) error {
	s.mu.Lock()
	s.runlog = append(s.runlog, e)
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) ListRunLog(context.Context, string, int) ([]model.RunLogEntry, error) {
	return s.runlog, nil
}

func (s *fakeStore) UpsertSchedule(context.Context, model.Schedule) error { return nil }
func (s *fakeStore) GetSchedule(context.Context, string) (model.Schedule, error) {
	return model.Schedule{}, storage.ErrNotFound
}
func (s *fakeStore) Close() error { return nil }

type fakeFetcher struct {
	mu    sync.Mutex
	rec   *recorder
	items map[fetch.Kind][]json.RawMessage
	err   error
	calls []fetch.Query
}

func (f *fakeFetcher) Fetch(_ context.Context, q fetch.Query) ([]json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	f.mu.Unlock()
	if f.rec != nil {
		f.rec.add("fetch")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.items[q.Kind], nil
}

type fakeSender struct {
	mu      sync.Mutex
	rec     *recorder
	failFor map[string]bool
	sent    []deliver.Message
}

func (s *fakeSender) Send(_ context.Context, m deliver.Message) (deliver.Response, error) {
	if s.rec != nil {
		s.rec.add("send")
	}
	s.mu.Lock()
	s.sent = append(s.sent, m)
	s.mu.Unlock()
	if s.failFor[m.Destination] {
		return deliver.Response{}, errors.New("gateway unreachable")
	}
	return deliver.Response{Status: "ok", Result: "message_id=1"}, nil
}

// testNow: a Monday; 08:00 in Madrid (CET).
var testNow = time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

func testSchedule(id string) model.Schedule {
	return model.Schedule{
		ID:          id,
		ClubID:      "club-1",
		ClubName:    "Padel Hub",
		Sport:       "PADEL",
		Name:        "morning digest",
		Category:    model.CategoryAvailability,
		SendHour:    8,
		SendMinute:  0,
		Timezone:    "Europe/Madrid",
		TargetDay:   model.TargetToday,
		Destination: "channel-1",
		Status:      model.StatusActive,
		NextDue:     testNow,
		LastStatus:  model.OutcomeOK,
	}
}

func morningSlots() []json.RawMessage {
	b, _ := json.Marshal(map[string]any{
		"venue": map[string]any{"minute_offset": 0},
		"slots": []map[string]any{
			{"start_time": "09:00", "duration_minutes": 60},
		},
	})
	return []json.RawMessage{b}
}

func newTestService(st *fakeStore, f *fakeFetcher, snd *fakeSender) *Service {
	s := New(Config{}, st, f, &deliver.Deliverer{
		S:   snd,
		P:   deliver.Policy{MaxAttempts: 1, Delay: time.Millisecond, AttemptTimeout: time.Second},
		Log: logx.Nop(),
	}, nil, logx.Nop())
	s.now = func() time.Time { return testNow }
	return s
}

func TestRunClaimHappensBeforeFetch(t *testing.T) {
	rec := &recorder{}
	st := &fakeStore{rec: rec, due: []model.Schedule{testSchedule("s1")}}
	f := &fakeFetcher{rec: rec, items: map[fetch.Kind][]json.RawMessage{fetch.KindAvailability: morningSlots()}}
	snd := &fakeSender{rec: rec}

	if _, err := newTestService(st, f, snd).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(rec.ops) < 3 || rec.ops[0] != "claim" || rec.ops[1] != "fetch" || rec.ops[2] != "send" {
		t.Errorf("ops = %v, want claim before fetch before send", rec.ops)
	}
}

func TestRunDeliversAndRecords(t *testing.T) {
	st := &fakeStore{due: []model.Schedule{testSchedule("s1")}}
	f := &fakeFetcher{items: map[fetch.Kind][]json.RawMessage{fetch.KindAvailability: morningSlots()}}
	snd := &fakeSender{}

	res, err := newTestService(st, f, snd).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 1 || len(res.Results) != 1 {
		t.Fatalf("processed=%d results=%d", res.Processed, len(res.Results))
	}

	r := res.Results[0]
	if r.Status != model.OutcomeOK || r.ScheduleID != "s1" {
		t.Errorf("result = %+v", r)
	}
	wantNext := time.Date(2026, 3, 3, 7, 0, 0, 0, time.UTC) // 08:00 CET next day
	if !r.NextRun.Equal(wantNext) {
		t.Errorf("next_run = %v, want %v", r.NextRun, wantNext)
	}
	if r.EmulatorResponse != "message_id=1" {
		t.Errorf("response = %q", r.EmulatorResponse)
	}

	if len(st.claims) != 1 {
		t.Fatalf("claims = %+v", st.claims)
	}
	if !st.claims[0].observed.Equal(testNow) || !st.claims[0].nextDue.Equal(wantNext) {
		t.Errorf("claim = %+v", st.claims[0])
	}

	if len(snd.sent) != 1 || !strings.Contains(snd.sent[0].Text, "Morning: 9am – 10am") {
		t.Errorf("sent = %+v", snd.sent)
	}
	if len(st.runlog) != 1 || st.runlog[0].Outcome != model.OutcomeOK {
		t.Errorf("runlog = %+v", st.runlog)
	}
	if len(st.outcomes) != 1 || st.outcomes[0].outcome != model.OutcomeOK {
		t.Errorf("outcomes = %+v", st.outcomes)
	}
	if len(st.completed) != 0 {
		t.Errorf("recurring schedule must not be completed: %v", st.completed)
	}
}

func TestRunTemplateRendering(t *testing.T) {
	sched := testSchedule("s1")
	sched.TemplateText = "{club_name} · {date_display_short}\n{summary}"
	st := &fakeStore{due: []model.Schedule{sched}}
	f := &fakeFetcher{items: map[fetch.Kind][]json.RawMessage{fetch.KindAvailability: morningSlots()}}
	snd := &fakeSender{}

	if _, err := newTestService(st, f, snd).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := "Padel Hub · Mon 2 Mar\nMorning: 9am – 10am x1"
	if len(snd.sent) != 1 || snd.sent[0].Text != want {
		t.Errorf("sent = %q, want %q", snd.sent[0].Text, want)
	}
}

func TestRunSkipTransitionLogsOnce(t *testing.T) {
	// First skip after an OK run: one run log entry.
	st := &fakeStore{due: []model.Schedule{testSchedule("s1")}}
	f := &fakeFetcher{items: map[fetch.Kind][]json.RawMessage{}}
	snd := &fakeSender{}

	res, err := newTestService(st, f, snd).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Results[0].Status != model.OutcomeSkipped {
		t.Fatalf("status = %v", res.Results[0].Status)
	}
	if len(st.runlog) != 1 || st.runlog[0].Outcome != model.OutcomeSkipped {
		t.Errorf("runlog = %+v", st.runlog)
	}
	if len(snd.sent) != 0 {
		t.Errorf("skip must not send: %+v", snd.sent)
	}

	// Consecutive skip: outcome still recorded, but no new run log entry.
	repeat := testSchedule("s1")
	repeat.LastStatus = model.OutcomeSkipped
	st2 := &fakeStore{due: []model.Schedule{repeat}}
	if _, err := newTestService(st2, f, snd).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(st2.runlog) != 0 {
		t.Errorf("consecutive skip appended run log: %+v", st2.runlog)
	}
	if len(st2.outcomes) != 1 || st2.outcomes[0].outcome != model.OutcomeSkipped {
		t.Errorf("outcomes = %+v", st2.outcomes)
	}
}

func TestRunClaimLostIsNotAnError(t *testing.T) {
	st := &fakeStore{
		due:      []model.Schedule{testSchedule("s1")},
		claimErr: map[string]error{"s1": storage.ErrClaimLost},
	}
	f := &fakeFetcher{}
	snd := &fakeSender{}

	res, err := newTestService(st, f, snd).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 0 {
		t.Errorf("processed = %d, want 0", res.Processed)
	}
	if len(f.calls) != 0 {
		t.Errorf("lost claim must not fetch: %+v", f.calls)
	}
}

func TestRunClaimInfrastructureFailureAborts(t *testing.T) {
	st := &fakeStore{
		due:      []model.Schedule{testSchedule("s1")},
		claimErr: map[string]error{"s1": errors.New("database locked")},
	}
	if _, err := newTestService(st, &fakeFetcher{}, &fakeSender{}).Run(context.Background()); err == nil {
		t.Fatal("expected invocation error")
	}
}

func TestRunListDueFailureAborts(t *testing.T) {
	st := &fakeStore{listErr: errors.New("disk gone")}
	if _, err := newTestService(st, &fakeFetcher{}, &fakeSender{}).Run(context.Background()); err == nil {
		t.Fatal("expected invocation error")
	}
}

func TestRunOneOffCompletesAfterSuccess(t *testing.T) {
	sched := testSchedule("once")
	sched.OneOff = true
	st := &fakeStore{due: []model.Schedule{sched}}
	f := &fakeFetcher{items: map[fetch.Kind][]json.RawMessage{fetch.KindAvailability: morningSlots()}}

	if _, err := newTestService(st, f, &fakeSender{}).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(st.completed) != 1 || st.completed[0] != "once" {
		t.Errorf("completed = %v", st.completed)
	}
	// next_due advanced anyway, so a crash between send and complete
	// retries tomorrow rather than immediately.
	if len(st.claims) != 1 {
		t.Errorf("claims = %+v", st.claims)
	}
}

func TestRunOneOffErrorStaysActive(t *testing.T) {
	sched := testSchedule("once")
	sched.OneOff = true
	st := &fakeStore{due: []model.Schedule{sched}}
	f := &fakeFetcher{items: map[fetch.Kind][]json.RawMessage{fetch.KindAvailability: morningSlots()}}
	snd := &fakeSender{failFor: map[string]bool{"channel-1": true}}

	res, err := newTestService(st, f, snd).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Results[0].Status != model.OutcomeError {
		t.Errorf("status = %v", res.Results[0].Status)
	}
	if len(st.completed) != 0 {
		t.Errorf("failed one-off must stay active: %v", st.completed)
	}
	if st.outcomes[0].lastErr == "" {
		t.Error("last error not recorded")
	}
}

func TestRunFetchErrorStillSends(t *testing.T) {
	st := &fakeStore{due: []model.Schedule{testSchedule("s1")}}
	f := &fakeFetcher{err: errors.New("inventory api 502")}
	snd := &fakeSender{}

	res, err := newTestService(st, f, snd).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(snd.sent) != 1 || !strings.Contains(snd.sent[0].Text, "Data unavailable") {
		t.Errorf("sent = %+v", snd.sent)
	}
	if res.Results[0].Status != model.OutcomeOK {
		t.Errorf("status = %v (delivery itself succeeded)", res.Results[0].Status)
	}
}

func TestRunBatchIsolation(t *testing.T) {
	a := testSchedule("a")
	b := testSchedule("b")
	b.Destination = "channel-2"
	st := &fakeStore{due: []model.Schedule{a, b}}
	f := &fakeFetcher{items: map[fetch.Kind][]json.RawMessage{fetch.KindAvailability: morningSlots()}}
	snd := &fakeSender{failFor: map[string]bool{"channel-1": true}}

	res, err := newTestService(st, f, snd).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 2 {
		t.Fatalf("processed = %d, want 2", res.Processed)
	}
	if res.Results[0].Status != model.OutcomeError || res.Results[1].Status != model.OutcomeOK {
		t.Errorf("results = %+v", res.Results)
	}
}

func TestExcerpt(t *testing.T) {
	long := strings.Repeat("x", excerptLen+10)
	got := excerpt(long, excerptLen)
	if len([]rune(got)) != excerptLen+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("excerpt length %d", len([]rune(got)))
	}
	if excerpt("short", excerptLen) != "short" {
		t.Error("short strings must pass through")
	}
}
