package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"courtcast/internal/model"
	logx "courtcast/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const scheduleCols = `id, club_id, club_name, sport, name, category,
	send_hour, send_minute, timezone, target_day,
	window_start, window_end, one_off, one_off_at,
	template_text, template_variant, template_event_id,
	destination, status, next_due, last_run, last_status, last_error,
	event_id, variant`

func (s *sqliteStore) ListDue(ctx context.Context, now time.Time, limit int) ([]model.Schedule, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleCols+` FROM schedules
		 WHERE status = ? AND next_due <= ?
		 ORDER BY next_due ASC
		 LIMIT ?`,
		string(model.StatusActive), now.UnixMilli(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Claim(ctx context.Context, id string, observed, nextDue, lastRun time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	// Optimistic condition on the observed next_due: an overlapping
	// invocation that claimed first already moved it, so we match no row.
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET next_due = ?, last_run = ?
		 WHERE id = ? AND next_due = ? AND status = ?`,
		nextDue.UnixMilli(), lastRun.UnixMilli(), id, observed.UnixMilli(), string(model.StatusActive),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrClaimLost
	}
	return nil
}

func (s *sqliteStore) RecordOutcome(ctx context.Context, id string, outcome model.Outcome, lastErr string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET last_status = ?, last_error = ? WHERE id = ?`,
		string(outcome), nullStr(lastErr), id,
	)
	return err
}

func (s *sqliteStore) MarkComplete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET status = ? WHERE id = ? AND one_off = 1`,
		string(model.StatusComplete), id,
	)
	return err
}

func (s *sqliteStore) AppendRunLog(ctx context.Context, e model.RunLogEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_log(schedule_id, category, outcome, destination, message_excerpt, response, at)
		 VALUES(?,?,?,?,?,?,?)`,
		e.ScheduleID, string(e.Category), string(e.Outcome), e.Destination,
		e.MessageExcerpt, nullStr(e.Response), e.At.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) ListRunLog(ctx context.Context, scheduleID string, limit int) ([]model.RunLogEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, schedule_id, category, outcome, destination, message_excerpt, response, at
		 FROM run_log WHERE schedule_id = ? ORDER BY id DESC LIMIT ?`,
		scheduleID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RunLogEntry
	for rows.Next() {
		var (
			e        model.RunLogEntry
			category string
			outcome  string
			response sql.NullString
			at       string
		)
		if err := rows.Scan(&e.ID, &e.ScheduleID, &category, &outcome, &e.Destination, &e.MessageExcerpt, &response, &at); err != nil {
			return nil, err
		}
		e.Category = model.Category(category)
		e.Outcome = model.Outcome(outcome)
		e.Response = response.String
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			e.At = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpsertSchedule(ctx context.Context, sc model.Schedule) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules(`+scheduleCols+`)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   club_id=excluded.club_id, club_name=excluded.club_name, sport=excluded.sport,
		   name=excluded.name, category=excluded.category,
		   send_hour=excluded.send_hour, send_minute=excluded.send_minute,
		   timezone=excluded.timezone, target_day=excluded.target_day,
		   window_start=excluded.window_start, window_end=excluded.window_end,
		   one_off=excluded.one_off, one_off_at=excluded.one_off_at,
		   template_text=excluded.template_text, template_variant=excluded.template_variant,
		   template_event_id=excluded.template_event_id,
		   destination=excluded.destination, status=excluded.status,
		   next_due=excluded.next_due, last_run=excluded.last_run,
		   last_status=excluded.last_status, last_error=excluded.last_error,
		   event_id=excluded.event_id, variant=excluded.variant`,
		sc.ID, sc.ClubID, sc.ClubName, sc.Sport, sc.Name, string(sc.Category),
		sc.SendHour, sc.SendMinute, sc.Timezone, string(sc.TargetDay),
		nullMilli(sc.WindowStart), nullMilli(sc.WindowEnd), boolInt(sc.OneOff), nullMilli(sc.OneOffAt),
		sc.TemplateText, sc.TemplateVariant, sc.TemplateEventID,
		sc.Destination, string(sc.Status), sc.NextDue.UnixMilli(), nullMilli(sc.LastRun),
		string(sc.LastStatus), nullStr(sc.LastError),
		sc.EventID, sc.Variant,
	)
	return err
}

func (s *sqliteStore) GetSchedule(ctx context.Context, id string) (model.Schedule, error) {
	if s == nil || s.db == nil {
		return model.Schedule{}, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleCols+` FROM schedules WHERE id = ?`, id)
	sched, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Schedule{}, ErrNotFound
	}
	return sched, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(r rowScanner) (model.Schedule, error) {
	var (
		sc          model.Schedule
		category    string
		targetDay   string
		windowStart sql.NullInt64
		windowEnd   sql.NullInt64
		oneOff      int
		oneOffAt    sql.NullInt64
		status      string
		nextDue     int64
		lastRun     sql.NullInt64
		lastStatus  string
		lastError   sql.NullString
	)
	err := r.Scan(
		&sc.ID, &sc.ClubID, &sc.ClubName, &sc.Sport, &sc.Name, &category,
		&sc.SendHour, &sc.SendMinute, &sc.Timezone, &targetDay,
		&windowStart, &windowEnd, &oneOff, &oneOffAt,
		&sc.TemplateText, &sc.TemplateVariant, &sc.TemplateEventID,
		&sc.Destination, &status, &nextDue, &lastRun, &lastStatus, &lastError,
		&sc.EventID, &sc.Variant,
	)
	if err != nil {
		return model.Schedule{}, err
	}
	sc.Category = model.Category(category)
	sc.TargetDay = model.TargetDay(targetDay)
	sc.WindowStart = milliPtr(windowStart)
	sc.WindowEnd = milliPtr(windowEnd)
	sc.OneOff = oneOff != 0
	sc.OneOffAt = milliPtr(oneOffAt)
	sc.Status = model.Status(status)
	sc.NextDue = time.UnixMilli(nextDue).UTC()
	sc.LastRun = milliPtr(lastRun)
	sc.LastStatus = model.Outcome(lastStatus)
	sc.LastError = lastError.String
	return sc, nil
}

func milliPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func nullMilli(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
