// Package memory is the in-memory store adapter. It backs tests and runs
// the service without any database configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sitewatch/internal/domain"
	"sitewatch/internal/repo"
	"sitewatch/internal/urlutil"
)

type Store struct {
	mu        sync.RWMutex
	targets   map[string]*domain.Target // key: ownerID + "\x00" + url
	history   map[domain.TargetID][]*domain.CheckRecord
	snapshots map[domain.TargetID]*domain.Snapshot
	nextRecID int64
}

var _ repo.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		targets:   make(map[string]*domain.Target),
		history:   make(map[domain.TargetID][]*domain.CheckRecord),
		snapshots: make(map[domain.TargetID]*domain.Snapshot),
	}
}

func key(ownerID, url string) string { return ownerID + "\x00" + url }

// ---- ProfileStore ----

func (m *Store) Upsert(ctx context.Context, ownerID, url string, meta *domain.Metadata) (*domain.Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if t, ok := m.targets[key(ownerID, url)]; ok {
		if meta != nil {
			t.Meta.Merge(*meta)
		}
		t.LastChecked = now
		cp := *t
		return &cp, nil
	}

	t := &domain.Target{
		ID:          domain.TargetID(uuid.NewString()),
		OwnerID:     ownerID,
		URL:         url,
		Domain:      urlutil.Host(url),
		FirstSeen:   now,
		LastChecked: now,
		Active:      true,
	}
	if meta != nil {
		t.Meta.Merge(*meta)
	}
	m.targets[key(ownerID, url)] = t
	cp := *t
	return &cp, nil
}

func (m *Store) Get(ctx context.Context, ownerID, url string) (*domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.targets[key(ownerID, url)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Store) List(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list(func(t *domain.Target) bool { return t.OwnerID == ownerID && t.Active }, limit, offset), nil
}

func (m *Store) ListAll(ctx context.Context, limit, offset int) ([]*domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list(func(t *domain.Target) bool { return t.Active }, limit, offset), nil
}

func (m *Store) list(keep func(*domain.Target) bool, limit, offset int) []*domain.Target {
	out := make([]*domain.Target, 0, len(m.targets))
	for _, t := range m.targets {
		if keep(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastChecked.Equal(out[j].LastChecked) {
			return out[i].LastChecked.After(out[j].LastChecked)
		}
		return out[i].ID < out[j].ID
	})
	if offset >= len(out) {
		return []*domain.Target{}
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

func (m *Store) Delete(ctx context.Context, ownerID, url string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[key(ownerID, url)]
	if !ok {
		return 0, domain.ErrNotFound
	}
	n := len(m.history[t.ID])
	delete(m.history, t.ID)
	delete(m.snapshots, t.ID)
	delete(m.targets, key(ownerID, url))
	return n, nil
}

// ---- HistoryStore ----

func (m *Store) Append(ctx context.Context, rec *domain.CheckRecord) error {
	if _, err := domain.ParseStatus(string(rec.Status)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRecID++
	rec.ID = m.nextRecID
	if rec.CheckedAt.IsZero() {
		rec.CheckedAt = time.Now().UTC()
	}
	cp := *rec
	m.history[rec.TargetID] = append(m.history[rec.TargetID], &cp)
	return nil
}

func (m *Store) Query(ctx context.Context, q repo.HistoryQuery) ([]*domain.CheckRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.history[q.TargetID]
	out := make([]*domain.CheckRecord, 0, len(recs))
	for _, r := range recs {
		if q.Since != nil && r.CheckedAt.Before(*q.Since) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	// Ledger slices are already in (CheckedAt, ID) insertion order.
	if q.Desc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Store) CountByStatus(ctx context.Context, id domain.TargetID, status domain.Status) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.history[id] {
		if r.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *Store) ResponseTimeAvg(ctx context.Context, id domain.TargetID) (*float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum float64
	var n int
	for _, r := range m.history[id] {
		if r.ResponseTime != nil {
			sum += *r.ResponseTime
			n++
		}
	}
	if n == 0 {
		return nil, nil
	}
	avg := sum / float64(n)
	return &avg, nil
}

func (m *Store) Prune(ctx context.Context, id domain.TargetID, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.history[id]
	kept := recs[:0]
	dropped := 0
	for _, r := range recs {
		if r.CheckedAt.Before(before) {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	m.history[id] = kept
	return dropped, nil
}

// ---- AnalyticsStore ----

func (m *Store) GetSnapshot(ctx context.Context, id domain.TargetID) (*domain.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Store) PutSnapshot(ctx context.Context, s *domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.snapshots[s.TargetID] = &cp
	return nil
}
