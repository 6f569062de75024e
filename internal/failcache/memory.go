package failcache

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/spirits-cli/internal/model"
)

// MemoryBackend is a process-local Backend.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]model.FailureRecord

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]model.FailureRecord),
		nowFunc: time.Now,
	}
}

func (m *MemoryBackend) GetFailure(_ context.Context, key string) (*model.FailureRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	if !rec.ExpiresAt.After(m.nowFunc()) {
		delete(m.entries, key)
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryBackend) SetFailure(_ context.Context, rec model.FailureRecord, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	rec.Attempts = 1
	if prev, ok := m.entries[rec.Key]; ok && prev.ExpiresAt.After(now) {
		rec.Attempts = prev.Attempts + 1
	}
	rec.RecordedAt = now
	rec.ExpiresAt = now.Add(ttl)
	m.entries[rec.Key] = rec
	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
