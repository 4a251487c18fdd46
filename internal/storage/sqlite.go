package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"swamptimers/internal/schedule"
	logx "swamptimers/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Fixed-width timestamps keep lexical order equal to time order.
const sqlTime = "2006-01-02T15:04:05.000000000Z07:00"

func openSQLite(path string, busyTimeout time.Duration) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer at a time; also serializes audit read-modify-write.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(context.Background(), string(b)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return db, nil
}

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

// sqlPayload is the variant part of a schedule row.
type sqlPayload struct {
	Duration  *schedule.DurationWindow `json:"duration,omitempty"`
	Range     *schedule.RangeWindow    `json:"time_range,omitempty"`
	Recurring *schedule.Recurrence     `json:"recurring,omitempty"`
}

const selectSchedule = `SELECT id, kind, name, description, enabled, created_at, modified_at, payload, binding FROM schedules`

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) List(ctx context.Context) ([]*schedule.Schedule, error) {
	return s.query(ctx, selectSchedule+` ORDER BY created_at DESC, id DESC`)
}

func (s *sqliteStore) ListEnabled(ctx context.Context) ([]*schedule.Schedule, error) {
	return s.query(ctx, selectSchedule+` WHERE enabled = 1 ORDER BY created_at DESC, id DESC`)
}

func (s *sqliteStore) ListByKind(ctx context.Context, kind schedule.Kind) ([]*schedule.Schedule, error) {
	return s.query(ctx, selectSchedule+` WHERE kind = ? ORDER BY created_at DESC, id DESC`, string(kind))
}

func (s *sqliteStore) query(ctx context.Context, q string, args ...any) ([]*schedule.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*schedule.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Get(ctx context.Context, id int64) (*schedule.Schedule, error) {
	sc, err := scanSchedule(s.db.QueryRowContext(ctx, selectSchedule+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sc, err
}

func (s *sqliteStore) Create(ctx context.Context, in *schedule.Schedule) (*schedule.Schedule, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	payload, binding, err := encodeRow(in)
	if err != nil {
		return nil, err
	}
	created := in.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules(kind, name, description, enabled, created_at, modified_at, payload, binding)
		 VALUES(?,?,?,?,?,NULL,?,?)`,
		string(in.Kind), in.Name, in.Description, boolInt(in.Enabled), created.UTC().Format(sqlTime), payload, binding,
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *sqliteStore) Update(ctx context.Context, in *schedule.Schedule) (*schedule.Schedule, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	payload, binding, err := encodeRow(in)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET kind=?, name=?, description=?, enabled=?, modified_at=?, payload=?, binding=? WHERE id=?`,
		string(in.Kind), in.Name, in.Description, boolInt(in.Enabled), s.now().UTC().Format(sqlTime), payload, binding, in.ID,
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, in.ID)
}

func (s *sqliteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) ToggleEnabled(ctx context.Context, id int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE schedules SET enabled = 1 - enabled, modified_at = ? WHERE id = ?`,
		s.now().UTC().Format(sqlTime), id)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, ErrNotFound
	}
	var enabled int
	if err := tx.QueryRowContext(ctx, `SELECT enabled FROM schedules WHERE id = ?`, id).Scan(&enabled); err != nil {
		return false, err
	}
	return enabled == 1, tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(r rowScanner) (*schedule.Schedule, error) {
	var (
		sc          schedule.Schedule
		kind        string
		enabled     int
		created     string
		modified    sql.NullString
		payload     string
		bindingJSON sql.NullString
	)
	if err := r.Scan(&sc.ID, &kind, &sc.Name, &sc.Description, &enabled, &created, &modified, &payload, &bindingJSON); err != nil {
		return nil, err
	}
	k, err := schedule.ParseKind(kind)
	if err != nil {
		return nil, fmt.Errorf("schedule %d: %w", sc.ID, err)
	}
	sc.Kind = k
	sc.Enabled = enabled == 1
	if sc.CreatedAt, err = time.Parse(sqlTime, created); err != nil {
		return nil, fmt.Errorf("schedule %d created_at: %w", sc.ID, err)
	}
	if modified.Valid && modified.String != "" {
		t, err := time.Parse(sqlTime, modified.String)
		if err != nil {
			return nil, fmt.Errorf("schedule %d modified_at: %w", sc.ID, err)
		}
		sc.ModifiedAt = &t
	}
	var p sqlPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("schedule %d payload: %w", sc.ID, err)
	}
	sc.Duration, sc.Range, sc.Recurring = p.Duration, p.Range, p.Recurring
	if bindingJSON.Valid && bindingJSON.String != "" {
		var b schedule.ActionBinding
		if err := json.Unmarshal([]byte(bindingJSON.String), &b); err != nil {
			return nil, fmt.Errorf("schedule %d binding: %w", sc.ID, err)
		}
		sc.Binding = &b
	}
	return &sc, nil
}

func encodeRow(in *schedule.Schedule) (payload string, binding any, err error) {
	p, err := json.Marshal(sqlPayload{Duration: in.Duration, Range: in.Range, Recurring: in.Recurring})
	if err != nil {
		return "", nil, err
	}
	if in.Binding == nil {
		return string(p), nil, nil
	}
	b, err := json.Marshal(in.Binding)
	if err != nil {
		return "", nil, err
	}
	return string(p), string(b), nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

type sqliteAudit struct {
	db       *sql.DB
	capacity int
}

func (a *sqliteAudit) Append(ctx context.Context, e Entry) error {
	e = stamp(e)
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO audit(id, at, schedule_id, schedule_name, event, entity_id, action, success, err)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.ID, e.At.Format(sqlTime), e.ScheduleID, e.ScheduleName, e.Event, nullStr(e.EntityID), e.Action, boolInt(e.Success), nullStr(e.Error),
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM audit WHERE seq NOT IN (SELECT seq FROM audit ORDER BY seq DESC LIMIT ?)`, a.capacity,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (a *sqliteAudit) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = -1
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, at, schedule_id, schedule_name, event, entity_id, action, success, err
		 FROM audit ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			at       string
			entityID sql.NullString
			success  int
			errText  sql.NullString
		)
		if err := rows.Scan(&e.ID, &at, &e.ScheduleID, &e.ScheduleName, &e.Event, &entityID, &e.Action, &success, &errText); err != nil {
			return nil, err
		}
		if e.At, err = time.Parse(sqlTime, at); err != nil {
			return nil, err
		}
		e.EntityID = entityID.String
		e.Success = success == 1
		e.Error = errText.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (a *sqliteAudit) Clear(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM audit`)
	return err
}

func (a *sqliteAudit) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
