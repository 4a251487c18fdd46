package storage

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	logx "swamptimers/pkg/logx"
)

// Open initializes the configured schedule store.
func Open(cfg Config, log logx.Logger) (ScheduleStore, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "yaml", "file":
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, errors.New("storage.path is required for the yaml driver")
		}
		return openYAMLStore(cfg.Path, log)
	case "sqlite", "sqlite3":
		db, err := openSQLite(cfg.Path, cfg.BusyTimeout)
		if err != nil {
			return nil, err
		}
		return &sqliteStore{db: db, log: log, now: time.Now}, nil
	case "memory":
		return openYAMLStore("", log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// OpenAudit initializes the configured audit log.
func OpenAudit(cfg AuditConfig, log logx.Logger) (AuditLog, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	capacity := cfg.MaxEntries
	if capacity <= 0 {
		capacity = DefaultAuditCap
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "yaml", "file":
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, errors.New("audit.path is required for the yaml driver")
		}
		return openYAMLAudit(cfg.Path, capacity, log)
	case "sqlite", "sqlite3":
		db, err := openSQLite(cfg.Path, cfg.BusyTimeout)
		if err != nil {
			return nil, err
		}
		return &sqliteAudit{db: db, capacity: capacity}, nil
	case "redis":
		return openRedisAudit(cfg.RedisURL, cfg.RedisKey, capacity)
	case "memory":
		return openYAMLAudit("", capacity, log)
	default:
		return nil, errors.New("unknown audit driver: " + driver)
	}
}

// stamp fills the id and timestamp of an entry about to be appended.
func stamp(e Entry) Entry {
	if strings.TrimSpace(e.ID) == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	e.At = e.At.UTC()
	return e
}
