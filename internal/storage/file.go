package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"

	"swamptimers/internal/schedule"
	logx "swamptimers/pkg/logx"
)

// yamlStore keeps every schedule in memory and rewrites the whole document
// on each mutation. An empty path makes it a purely in-memory store.
type yamlStore struct {
	log  logx.Logger
	path string
	now  func() time.Time

	mu    sync.Mutex
	items []*schedule.Schedule

	// nextID only grows, so a deleted id is never handed out again while
	// the process runs.
	nextID int64
	closed bool
}

type scheduleDocument struct {
	Schedules []*schedule.Schedule `yaml:"schedules"`
}

func openYAMLStore(path string, log logx.Logger) (*yamlStore, error) {
	st := &yamlStore{log: log, path: strings.TrimSpace(path), now: time.Now, nextID: 1}
	if st.path == "" {
		return st, nil
	}
	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return nil, err
	}
	var doc scheduleDocument
	if err := readYAML(st.path, &doc); err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	for _, s := range doc.Schedules {
		if s == nil {
			continue
		}
		if err := s.Validate(); err != nil {
			log.Warn("stored schedule is invalid", logx.Int64("id", s.ID), logx.Err(err))
		}
		st.items = append(st.items, s)
		if s.ID >= st.nextID {
			st.nextID = s.ID + 1
		}
	}
	return st, nil
}

func (s *yamlStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *yamlStore) List(ctx context.Context) ([]*schedule.Schedule, error) {
	return s.filter(func(*schedule.Schedule) bool { return true })
}

func (s *yamlStore) ListEnabled(ctx context.Context) ([]*schedule.Schedule, error) {
	return s.filter(func(x *schedule.Schedule) bool { return x.Enabled })
}

func (s *yamlStore) ListByKind(ctx context.Context, kind schedule.Kind) ([]*schedule.Schedule, error) {
	return s.filter(func(x *schedule.Schedule) bool { return x.Kind == kind })
}

func (s *yamlStore) filter(keep func(*schedule.Schedule) bool) ([]*schedule.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]*schedule.Schedule, 0, len(s.items))
	for _, x := range s.items {
		if keep(x) {
			out = append(out, x.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *yamlStore) Get(ctx context.Context, id int64) (*schedule.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	i := s.indexLocked(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	return s.items[i].Clone(), nil
}

func (s *yamlStore) Create(ctx context.Context, in *schedule.Schedule) (*schedule.Schedule, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	cp := in.Clone()
	cp.ID = s.nextID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now().UTC()
	}
	cp.ModifiedAt = nil
	next := append(append([]*schedule.Schedule(nil), s.items...), cp)
	if err := s.saveLocked(next); err != nil {
		return nil, err
	}
	s.items = next
	s.nextID++
	return cp.Clone(), nil
}

func (s *yamlStore) Update(ctx context.Context, in *schedule.Schedule) (*schedule.Schedule, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	i := s.indexLocked(in.ID)
	if i < 0 {
		return nil, ErrNotFound
	}
	cp := in.Clone()
	cp.CreatedAt = s.items[i].CreatedAt
	now := s.now().UTC()
	cp.ModifiedAt = &now

	next := append([]*schedule.Schedule(nil), s.items...)
	next[i] = cp
	if err := s.saveLocked(next); err != nil {
		return nil, err
	}
	s.items = next
	return cp.Clone(), nil
}

func (s *yamlStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	i := s.indexLocked(id)
	if i < 0 {
		return ErrNotFound
	}
	next := append(append([]*schedule.Schedule(nil), s.items[:i]...), s.items[i+1:]...)
	if err := s.saveLocked(next); err != nil {
		return err
	}
	s.items = next
	return nil
}

func (s *yamlStore) ToggleEnabled(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	i := s.indexLocked(id)
	if i < 0 {
		return false, ErrNotFound
	}
	cp := s.items[i].Clone()
	cp.Enabled = !cp.Enabled
	now := s.now().UTC()
	cp.ModifiedAt = &now

	next := append([]*schedule.Schedule(nil), s.items...)
	next[i] = cp
	if err := s.saveLocked(next); err != nil {
		return false, err
	}
	s.items = next
	return cp.Enabled, nil
}

func (s *yamlStore) indexLocked(id int64) int {
	for i, x := range s.items {
		if x.ID == id {
			return i
		}
	}
	return -1
}

func (s *yamlStore) saveLocked(items []*schedule.Schedule) error {
	if s.path == "" {
		return nil
	}
	return writeYAML(s.path, scheduleDocument{Schedules: items})
}

func sortNewestFirst(items []*schedule.Schedule) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
}

// yamlAudit keeps the newest entries first and drops the oldest beyond
// capacity. An empty path keeps entries in memory only.
type yamlAudit struct {
	log      logx.Logger
	path     string
	capacity int

	mu      sync.Mutex
	entries []Entry
}

type auditDocument struct {
	Entries []Entry `yaml:"entries"`
}

func openYAMLAudit(path string, capacity int, log logx.Logger) (*yamlAudit, error) {
	a := &yamlAudit{log: log, path: strings.TrimSpace(path), capacity: capacity}
	if a.path == "" {
		return a, nil
	}
	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return nil, err
	}
	var doc auditDocument
	if err := readYAML(a.path, &doc); err != nil {
		return nil, fmt.Errorf("load audit log: %w", err)
	}
	a.entries = doc.Entries
	if len(a.entries) > capacity {
		a.entries = a.entries[:capacity]
	}
	return a, nil
}

func (a *yamlAudit) Append(ctx context.Context, e Entry) error {
	e = stamp(e)
	a.mu.Lock()
	defer a.mu.Unlock()
	next := make([]Entry, 0, min(len(a.entries)+1, a.capacity))
	next = append(next, e)
	for _, old := range a.entries {
		if len(next) >= a.capacity {
			break
		}
		next = append(next, old)
	}
	if err := a.saveLocked(next); err != nil {
		return err
	}
	a.entries = next
	return nil
}

func (a *yamlAudit) Recent(ctx context.Context, n int) ([]Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n <= 0 || n > len(a.entries) {
		n = len(a.entries)
	}
	return append([]Entry(nil), a.entries[:n]...), nil
}

func (a *yamlAudit) Clear(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.saveLocked(nil); err != nil {
		return err
	}
	a.entries = nil
	return nil
}

func (a *yamlAudit) Close() error { return nil }

func (a *yamlAudit) saveLocked(entries []Entry) error {
	if a.path == "" {
		return nil
	}
	if entries == nil {
		entries = []Entry{}
	}
	return writeYAML(a.path, auditDocument{Entries: entries})
}

// readYAML decodes path into out. A missing or empty file leaves out untouched.
func readYAML(path string, out any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	return yaml.Unmarshal(b, out)
}

// writeYAML replaces path atomically via a temp file and rename.
func writeYAML(path string, v any) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
