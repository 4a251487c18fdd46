package storage

import (
	"context"
	"errors"
	"time"

	"swamptimers/internal/schedule"
)

var (
	ErrNotFound = errors.New("schedule not found")
	ErrClosed   = errors.New("store closed")
)

// DefaultAuditCap is the number of audit entries kept when none is configured.
const DefaultAuditCap = 100

// Config selects the schedule store.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditConfig selects the audit log backend.
type AuditConfig struct {
	Driver      string
	Path        string
	RedisURL    string
	RedisKey    string
	MaxEntries  int
	BusyTimeout time.Duration
}

// ScheduleStore is the persistence contract for schedules. Implementations
// return copies; callers may mutate what they get back.
type ScheduleStore interface {
	List(ctx context.Context) ([]*schedule.Schedule, error)
	ListEnabled(ctx context.Context) ([]*schedule.Schedule, error)
	ListByKind(ctx context.Context, kind schedule.Kind) ([]*schedule.Schedule, error)
	Get(ctx context.Context, id int64) (*schedule.Schedule, error)
	Create(ctx context.Context, s *schedule.Schedule) (*schedule.Schedule, error)
	Update(ctx context.Context, s *schedule.Schedule) (*schedule.Schedule, error)
	Delete(ctx context.Context, id int64) error
	ToggleEnabled(ctx context.Context, id int64) (enabled bool, err error)
	Close() error
}

// Transition names recorded in audit entries.
const (
	EventActivated   = "activated"
	EventDeactivated = "deactivated"
)

// Entry is one audit record: the outcome of a single action run for a
// schedule transition. Entries are never modified once appended.
type Entry struct {
	ID           string    `json:"id" yaml:"id"`
	At           time.Time `json:"at" yaml:"at"`
	ScheduleID   int64     `json:"schedule_id" yaml:"schedule_id"`
	ScheduleName string    `json:"schedule_name" yaml:"schedule_name"`
	Event        string    `json:"event" yaml:"event"`
	EntityID     string    `json:"entity_id,omitempty" yaml:"entity_id,omitempty"`
	Action       string    `json:"action" yaml:"action"`
	Success      bool      `json:"success" yaml:"success"`
	Error        string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// AuditLog is a bounded, newest-first record of action outcomes. Append must
// be safe for concurrent callers.
type AuditLog interface {
	Append(ctx context.Context, e Entry) error
	Recent(ctx context.Context, n int) ([]Entry, error)
	Clear(ctx context.Context) error
	Close() error
}
