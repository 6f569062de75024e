package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/spirits-cli/internal/model"
)

// MemoryStore is an in-process Store for dry runs and tests. It enforces the
// same case-insensitive (name, brand) uniqueness as the SQL stores.
type MemoryStore struct {
	mu       sync.RWMutex
	spirits  map[string]model.StoredSpirit
	identity map[string]string // identityKey -> id
	failures map[string]model.FailureRecord

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		spirits:  make(map[string]model.StoredSpirit),
		identity: make(map[string]string),
		failures: make(map[string]model.FailureRecord),
		nowFunc:  time.Now,
	}
}

func identityKey(name, brand string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "\x00" + strings.ToLower(strings.TrimSpace(brand))
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Query(_ context.Context, c model.Criteria) ([]model.StoredSpirit, error) {
	name := strings.ToLower(strings.TrimSpace(c.Name))
	brand := strings.ToLower(strings.TrimSpace(c.Brand))
	if !c.Exact && name == "" && brand == "" {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if c.Exact {
		id, ok := m.identity[identityKey(name, brand)]
		if !ok {
			return nil, nil
		}
		return []model.StoredSpirit{m.spirits[id]}, nil
	}

	var out []model.StoredSpirit
	for _, sp := range m.spirits {
		n := strings.ToLower(sp.Name)
		b := strings.ToLower(sp.Brand)
		if (name != "" && strings.Contains(n, name)) || (brand != "" && strings.Contains(b, brand)) {
			out = append(out, sp)
		}
	}
	sortByUpdatedDesc(out)
	if limit := c.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Insert(_ context.Context, sp model.Spirit) (string, error) {
	sp.Name = strings.TrimSpace(sp.Name)
	sp.Brand = strings.TrimSpace(sp.Brand)
	key := identityKey(sp.Name, sp.Brand)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.identity[key]; ok {
		return "", ErrDuplicate
	}
	now := m.nowFunc().UTC()
	id := uuid.New().String()
	m.spirits[id] = model.StoredSpirit{Spirit: sp, ID: id, CreatedAt: now, UpdatedAt: now}
	m.identity[key] = id
	return id, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, sp model.Spirit) error {
	sp.Name = strings.TrimSpace(sp.Name)
	sp.Brand = strings.TrimSpace(sp.Brand)
	key := identityKey(sp.Name, sp.Brand)

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.spirits[id]
	if !ok {
		return eris.Wrapf(ErrNotFound, "memory: update spirit %s", id)
	}
	if other, ok := m.identity[key]; ok && other != id {
		return ErrDuplicate
	}
	delete(m.identity, identityKey(cur.Name, cur.Brand))
	cur.Spirit = sp
	cur.UpdatedAt = m.nowFunc().UTC()
	m.spirits[id] = cur
	m.identity[key] = id
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*model.StoredSpirit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sp, ok := m.spirits[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: get spirit %s", id)
	}
	return &sp, nil
}

func (m *MemoryStore) ListNeedingEnrichment(_ context.Context, limit int) ([]model.StoredSpirit, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.StoredSpirit
	for _, sp := range m.spirits {
		if sp.NeedsEnrichment() {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Stats(context.Context) (*model.CatalogStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &model.CatalogStats{Total: len(m.spirits), ByType: make(map[string]int)}
	for _, sp := range m.spirits {
		if sp.NeedsEnrichment() {
			stats.NeedsEnrichment++
		}
		stats.ByType[typeKey(sp.Type)]++
	}
	now := m.nowFunc()
	for _, rec := range m.failures {
		if rec.ExpiresAt.After(now) {
			stats.ActiveFailures++
		}
	}
	return stats, nil
}

func (m *MemoryStore) GetFailure(_ context.Context, key string) (*model.FailureRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.failures[key]
	if !ok || !rec.ExpiresAt.After(m.nowFunc()) {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) SetFailure(_ context.Context, rec model.FailureRecord, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc().UTC()
	attempts := 1
	if prev, ok := m.failures[rec.Key]; ok {
		attempts = prev.Attempts + 1
	}
	m.failures[rec.Key] = model.FailureRecord{
		Key:        rec.Key,
		Reason:     rec.Reason,
		Attempts:   attempts,
		RecordedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	return nil
}

func (m *MemoryStore) DeleteExpiredFailures(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	n := 0
	for k, rec := range m.failures {
		if !rec.ExpiresAt.After(now) {
			delete(m.failures, k)
			n++
		}
	}
	return n, nil
}

func sortByUpdatedDesc(out []model.StoredSpirit) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
}
