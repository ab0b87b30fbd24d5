package model

import "time"

// Category selects which inventory summarizer a schedule runs.
type Category string

const (
	CategoryAvailability Category = "AVAILABILITY"
	CategoryMatches      Category = "PARTIAL_MATCHES"
	CategoryEvents       Category = "COMPETITIONS_ACADEMIES"
)

// Status is the schedule lifecycle state.
//
// ACTIVE <-> PAUSED transitions are owned by the external CRUD surface.
// COMPLETE is terminal and only ever set by the engine, for one-off
// schedules after a successful send.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusPaused   Status = "PAUSED"
	StatusComplete Status = "COMPLETE"
)

// Outcome is the result of one engine run for one schedule.
type Outcome string

const (
	OutcomeOK      Outcome = "OK"
	OutcomeError   Outcome = "ERROR"
	OutcomeSkipped Outcome = "SKIPPED"
)

// TargetDay selects which local calendar day the fetch window covers.
type TargetDay string

const (
	TargetToday    TargetDay = "TODAY"
	TargetTomorrow TargetDay = "TOMORROW"
)

// Schedule is a persisted send job.
//
// The engine only writes NextDue, LastRun, LastStatus, LastError and
// (one-off success path) Status. Cadence, template and destination are
// owned by the external CRUD surface.
type Schedule struct {
	ID       string
	ClubID   string
	ClubName string
	Sport    string
	Name     string
	Category Category

	// Local wall-clock cadence in the schedule's zone.
	SendHour   int
	SendMinute int
	Timezone   string
	TargetDay  TargetDay

	// Explicit UTC window override; when both are set they win over
	// the TargetDay-derived window.
	WindowStart *time.Time
	WindowEnd   *time.Time

	OneOff   bool
	OneOffAt *time.Time

	TemplateText string
	// Locked template selections; when set they override the schedule's
	// own Variant / EventID.
	TemplateVariant string
	TemplateEventID string

	Destination string
	Status      Status

	NextDue    time.Time
	LastRun    *time.Time
	LastStatus Outcome // empty until the first run
	LastError  string

	// Optional single linked source event (competitions category).
	EventID string
	// Optional summary variant selector (e.g. "two_players").
	Variant string
}

// EffectiveVariant returns the variant the summarizer should apply.
func (s Schedule) EffectiveVariant() string {
	if s.TemplateVariant != "" {
		return s.TemplateVariant
	}
	return s.Variant
}

// EffectiveEventID returns the pinned event id the summarizer should apply.
func (s Schedule) EffectiveEventID() string {
	if s.TemplateEventID != "" {
		return s.TemplateEventID
	}
	return s.EventID
}

// RunLogEntry is one append-only execution record. The engine never
// mutates or deletes entries.
type RunLogEntry struct {
	ID             int64
	ScheduleID     string
	Category       Category
	Outcome        Outcome
	Destination    string
	MessageExcerpt string
	Response       string
	At             time.Time
}

// ScheduleResult is the per-schedule part of an invocation response.
type ScheduleResult struct {
	ScheduleID       string    `json:"schedule_id"`
	Name             string    `json:"name"`
	Status           Outcome   `json:"status"`
	MessagePreview   string    `json:"message_preview"`
	NextRun          time.Time `json:"next_run"`
	EmulatorResponse string    `json:"emulator_response"`
}

// InvocationResult summarizes one engine scan.
type InvocationResult struct {
	InvocationID string           `json:"invocation_id"`
	Processed    int              `json:"processed"`
	Results      []ScheduleResult `json:"results"`
}
