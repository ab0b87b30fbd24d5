package storage

import (
	"context"
	"errors"
	"time"

	"courtcast/internal/model"
)

var (
	ErrDisabled = errors.New("storage disabled")
	// ErrClaimLost is returned when a claim update matched no row because
	// another invocation advanced next_due first (or the schedule left ACTIVE).
	ErrClaimLost = errors.New("schedule claim lost")
	ErrNotFound  = errors.New("schedule not found")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Store is the persistence API used by the engine and the HTTP surface.
type Store interface {
	// ListDue returns ACTIVE schedules with next_due <= now, oldest due
	// first, capped at limit. No side effects.
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.Schedule, error)

	// Claim advances next_due/last_run before any work happens for the
	// schedule. The update is conditional on the previously observed
	// next_due so two overlapping invocations cannot both claim the same
	// schedule; the loser gets ErrClaimLost.
	Claim(ctx context.Context, id string, observed, nextDue, lastRun time.Time) error

	// RecordOutcome updates last_status/last_error after a run.
	RecordOutcome(ctx context.Context, id string, outcome model.Outcome, lastErr string) error

	// MarkComplete transitions a one-off schedule to COMPLETE.
	MarkComplete(ctx context.Context, id string) error

	AppendRunLog(ctx context.Context, e model.RunLogEntry) error
	ListRunLog(ctx context.Context, scheduleID string, limit int) ([]model.RunLogEntry, error)

	// CRUD surface for the external collaborator (and tests).
	UpsertSchedule(ctx context.Context, s model.Schedule) error
	GetSchedule(ctx context.Context, id string) (model.Schedule, error)

	Close() error
}
