package storage

import (
	"context"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
)

// memoryStore keeps records in process memory. Used for tests and throwaway deployments.
type memoryStore struct {
	mu              sync.RWMutex
	records         map[string]domain.ArticleRecord
	retention       time.Duration
	cleanupInterval time.Duration
	lastCleanup     time.Time
	now             func() time.Time
}

func newMemoryStore(opts Options) *memoryStore {
	opts = normalizeOptions(opts)
	return &memoryStore{
		records:         make(map[string]domain.ArticleRecord),
		retention:       opts.Retention,
		cleanupInterval: opts.CleanupInterval,
		lastCleanup:     opts.Now(),
		now:             opts.Now,
	}
}

// NewMemoryStore returns an in-memory Store.
func NewMemoryStore(opts Options) Store {
	return newMemoryStore(opts)
}

func (m *memoryStore) Upsert(_ context.Context, rec domain.ArticleRecord) (bool, error) {
	if err := validateRecord(rec); err != nil {
		return false, err
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(now)

	existing, ok := m.records[rec.ID]
	if ok {
		m.records[rec.ID] = merge(&existing, rec, now)
		return false, nil
	}
	m.records[rec.ID] = merge(nil, rec, now)
	return true, nil
}

func (m *memoryStore) Query(_ context.Context, f domain.Filter, limit int) ([]domain.ArticleRecord, error) {
	m.mu.RLock()
	out := make([]domain.ArticleRecord, 0, len(m.records))
	for _, rec := range m.records {
		if f.Matches(rec) {
			out = append(out, rec)
		}
	}
	m.mu.RUnlock()

	sortByRecency(out)
	return applyLimit(out, limit), nil
}

func (m *memoryStore) MostRecentFetch(_ context.Context, f domain.Filter) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest time.Time
	found := false
	for _, rec := range m.records {
		if !f.Matches(rec) || rec.LastFetchedAt.IsZero() {
			continue
		}
		if !found || rec.LastFetchedAt.After(latest) {
			latest = rec.LastFetchedAt
			found = true
		}
	}
	return latest, found, nil
}

func (m *memoryStore) Count(_ context.Context, f domain.Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if f.IsZero() {
		return len(m.records), nil
	}
	n := 0
	for _, rec := range m.records {
		if f.Matches(rec) {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) Ping(context.Context) error { return nil }
func (m *memoryStore) Close() error               { return nil }

// pruneLocked drops records outside the retention window on a fixed cadence.
func (m *memoryStore) pruneLocked(now time.Time) {
	if m.retention <= 0 || now.Sub(m.lastCleanup) < m.cleanupInterval {
		return
	}
	for id, rec := range m.records {
		if expired(rec, m.retention, now) {
			delete(m.records, id)
		}
	}
	m.lastCleanup = now
}
