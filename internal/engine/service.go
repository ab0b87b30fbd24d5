package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"courtcast/internal/deliver"
	"courtcast/internal/metrics"
	"courtcast/internal/model"
	"courtcast/internal/render"
	"courtcast/internal/storage"
	"courtcast/internal/summary"
	logx "courtcast/pkg/logx"
)

const (
	defaultBatchSize = 50
	excerptLen       = 200

	// Schedules without a stored template send the bare summary.
	defaultTemplate = "{summary}"

	dayDisplayLayout = "Mon 2 Jan"
)

// Config tunes one engine instance.
type Config struct {
	// BatchSize caps how many due schedules one invocation picks up.
	BatchSize int
}

// Service runs the scan / claim / summarize / deliver pipeline.
type Service struct {
	cfg   Config
	store storage.Store
	sums  map[model.Category]summary.Summarizer
	dlv   *deliver.Deliverer
	sink  *metrics.Sink
	log   logx.Logger

	now func() time.Time // test hook
}

func New(cfg Config, store storage.Store, f summary.Fetcher, dlv *deliver.Deliverer, sink *metrics.Sink, log logx.Logger) *Service {
	return &Service{
		cfg:   cfg,
		store: store,
		sums: map[model.Category]summary.Summarizer{
			model.CategoryAvailability: summary.NewAvailability(f),
			model.CategoryMatches:      summary.NewMatches(f),
			model.CategoryEvents:       summary.NewEvents(f),
		},
		dlv:  dlv,
		sink: sink,
		log:  log,
		now:  time.Now,
	}
}

// runContext is the per-schedule state threaded through the pipeline.
// Nothing in it is shared between schedules.
type runContext struct {
	sched   model.Schedule
	now     time.Time
	nextRun time.Time
	loc     *time.Location
}

// runOutcome is everything one schedule run produced for recording.
type runOutcome struct {
	outcome  model.Outcome
	message  string
	response string
	lastErr  string

	// skipRepeat marks a SKIPPED run whose previous run was also
	// SKIPPED; those append no run log entry.
	skipRepeat bool
}

// Run executes one scan invocation: list due schedules, then process
// each sequentially. Per-schedule failures are recorded against the
// schedule and never abort the batch; only a persistence failure in the
// scan/claim step itself returns an invocation-level error.
func (s *Service) Run(ctx context.Context) (model.InvocationResult, error) {
	started := s.now()
	now := started.UTC()
	res := model.InvocationResult{
		InvocationID: uuid.NewString(),
		Results:      []model.ScheduleResult{},
	}
	defer func() {
		s.sink.ObserveInvocation(time.Since(started).Seconds())
	}()

	limit := s.cfg.BatchSize
	if limit <= 0 {
		limit = defaultBatchSize
	}
	due, err := s.store.ListDue(ctx, now, limit)
	if err != nil {
		return res, fmt.Errorf("list due schedules: %w", err)
	}
	s.log.Debug("scan started",
		logx.String("invocation", res.InvocationID),
		logx.Int("due", len(due)),
	)

	for _, sched := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		r, err := s.runOne(ctx, sched, now)
		if err != nil {
			if errors.Is(err, storage.ErrClaimLost) {
				// Another invocation got there first; not our schedule.
				s.log.Debug("claim lost", logx.String("schedule", sched.ID))
				continue
			}
			return res, fmt.Errorf("claim schedule %s: %w", sched.ID, err)
		}
		res.Results = append(res.Results, r)
		res.Processed++
	}

	s.log.Info("scan finished",
		logx.String("invocation", res.InvocationID),
		logx.Int("processed", res.Processed),
	)
	return res, nil
}

// runOne claims the schedule, then performs the fetch/render/send work.
// The claim happens before any other side effect so a crash mid-run
// loses at most one send and never double-sends.
func (s *Service) runOne(ctx context.Context, sched model.Schedule, now time.Time) (model.ScheduleResult, error) {
	nextRun := NextRun(sched, now)
	if err := s.store.Claim(ctx, sched.ID, sched.NextDue, nextRun, now); err != nil {
		return model.ScheduleResult{}, err
	}

	rc := runContext{sched: sched, now: now, nextRun: nextRun, loc: scheduleLocation(sched)}
	out := s.execute(ctx, rc)
	s.sink.RecordRun(sched.Category, out.outcome)
	s.record(ctx, rc, out)

	return model.ScheduleResult{
		ScheduleID:       sched.ID,
		Name:             sched.Name,
		Status:           out.outcome,
		MessagePreview:   excerpt(out.message, excerptLen),
		NextRun:          nextRun,
		EmulatorResponse: out.response,
	}, nil
}

func (s *Service) execute(ctx context.Context, rc runContext) runOutcome {
	sum, fetchErr := s.summarize(ctx, rc)

	if fetchErr == nil && (sum.Count == 0 || summary.IsEmpty(sum.Text)) {
		repeat := rc.sched.LastStatus == model.OutcomeSkipped
		if !repeat {
			s.log.Info("nothing to send, skipping",
				logx.String("schedule", rc.sched.ID),
				logx.String("category", string(rc.sched.Category)),
			)
		}
		return runOutcome{outcome: model.OutcomeSkipped, message: sum.Text, skipRepeat: repeat}
	}

	text := sum.Text
	if fetchErr != nil {
		// A broken upstream still produces a send: subscribers get an
		// explicit notice instead of silence.
		s.sink.RecordFetchError()
		s.log.Warn("inventory fetch failed, sending placeholder",
			logx.String("schedule", rc.sched.ID),
			logx.Err(fetchErr),
		)
		text = fmt.Sprintf("Data unavailable: %v", fetchErr)
	}

	tpl := rc.sched.TemplateText
	if tpl == "" {
		tpl = defaultTemplate
	}
	msg := render.Render(tpl, render.Vars{
		Summary:          text,
		ClubName:         rc.sched.ClubName,
		DateDisplayShort: targetDate(rc.sched, rc.now).Format(dayDisplayLayout),
		Sport:            rc.sched.Sport,
		CountSlots:       sum.Count,
	})

	resp, err := s.dlv.Deliver(ctx, deliver.Message{
		ClubID:      rc.sched.ClubID,
		Category:    rc.sched.Category,
		Destination: rc.sched.Destination,
		Text:        msg,
	})
	if err != nil {
		s.log.Error("delivery failed",
			logx.String("schedule", rc.sched.ID),
			logx.String("destination", rc.sched.Destination),
			logx.Err(err),
		)
		return runOutcome{outcome: model.OutcomeError, message: msg, response: resp.Result, lastErr: err.Error()}
	}
	return runOutcome{outcome: model.OutcomeOK, message: msg, response: resp.Result}
}

func (s *Service) summarize(ctx context.Context, rc runContext) (summary.Result, error) {
	start, end, err := ResolveWindow(rc.sched, rc.now)
	if err != nil {
		return summary.Result{}, err
	}
	sum, ok := s.sums[rc.sched.Category]
	if !ok {
		return summary.Result{}, fmt.Errorf("unknown category %q", rc.sched.Category)
	}
	return sum.Summarize(ctx, summary.Request{
		ClubID:   rc.sched.ClubID,
		Sport:    rc.sched.Sport,
		Start:    start,
		End:      end,
		Variant:  rc.sched.EffectiveVariant(),
		EventID:  rc.sched.EffectiveEventID(),
		Location: rc.loc,
	})
}

// record persists the run: at most one run log entry, the last
// status/error on the schedule row, and the COMPLETE transition for
// one-off schedules that just delivered. Persistence errors here are
// logged, not propagated; the send already happened.
func (s *Service) record(ctx context.Context, rc runContext, out runOutcome) {
	if !out.skipRepeat {
		response := out.response
		if response == "" {
			response = out.lastErr
		}
		e := model.RunLogEntry{
			ScheduleID:     rc.sched.ID,
			Category:       rc.sched.Category,
			Outcome:        out.outcome,
			Destination:    rc.sched.Destination,
			MessageExcerpt: excerpt(out.message, excerptLen),
			Response:       response,
			At:             rc.now,
		}
		if err := s.store.AppendRunLog(ctx, e); err != nil {
			s.log.Error("append run log", logx.String("schedule", rc.sched.ID), logx.Err(err))
		}
	}
	if err := s.store.RecordOutcome(ctx, rc.sched.ID, out.outcome, out.lastErr); err != nil {
		s.log.Error("record outcome", logx.String("schedule", rc.sched.ID), logx.Err(err))
	}
	if out.outcome == model.OutcomeOK && rc.sched.OneOff {
		if err := s.store.MarkComplete(ctx, rc.sched.ID); err != nil {
			s.log.Error("mark complete", logx.String("schedule", rc.sched.ID), logx.Err(err))
		}
	}
}

// targetDate returns the local calendar day the schedule's window
// covers, for display purposes.
func targetDate(sched model.Schedule, now time.Time) time.Time {
	loc := scheduleLocation(sched)
	if sched.WindowEnd != nil && sched.WindowStart != nil {
		return sched.WindowEnd.In(loc)
	}
	local := now.In(loc)
	if sched.TargetDay == model.TargetTomorrow {
		local = local.AddDate(0, 0, 1)
	}
	return local
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
