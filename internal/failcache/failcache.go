// Package failcache records inputs that failed terminally so that later
// batches can skip them for a while. It is a cost-avoidance hint only: a miss
// never proves an input was not attempted, and backend errors are swallowed.
package failcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/spirits-cli/internal/model"
)

// DefaultTTL is how long a failed attempt suppresses retries of the same input.
const DefaultTTL = 4 * time.Hour

// Backend is the TTL key/value store behind a Cache. store.Store satisfies it.
type Backend interface {
	GetFailure(ctx context.Context, key string) (*model.FailureRecord, error)
	SetFailure(ctx context.Context, rec model.FailureRecord, ttl time.Duration) error
}

// Key returns the stable cache key for a (brand, name) pair.
func Key(brand, name string) string {
	raw := strings.ToLower(strings.TrimSpace(brand)) + "\x00" + strings.ToLower(strings.TrimSpace(name))
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ItemKey is Key for a work item.
func ItemKey(item model.WorkItem) string {
	return Key(item.Brand, item.Name)
}

// Cache is safe for concurrent use when its Backend is.
type Cache struct {
	backend Backend
	ttl     time.Duration
}

// New returns a Cache over backend. A non-positive ttl means DefaultTTL.
func New(backend Backend, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{backend: backend, ttl: ttl}
}

// TTL returns the entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// IsFailedAttempt reports whether key has an unexpired failure entry. Backend
// errors are logged and reported as a miss.
func (c *Cache) IsFailedAttempt(ctx context.Context, key string) bool {
	rec, err := c.backend.GetFailure(ctx, key)
	if err != nil {
		zap.L().Warn("failcache: lookup failed, treating as miss",
			zap.String("key", key),
			zap.Error(err),
		)
		return false
	}
	return rec != nil
}

// Lookup returns the unexpired failure entry for key, or nil.
func (c *Cache) Lookup(ctx context.Context, key string) *model.FailureRecord {
	rec, err := c.backend.GetFailure(ctx, key)
	if err != nil {
		zap.L().Warn("failcache: lookup failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	return rec
}

// MarkFailedAttempt records reason under key. Backend errors are logged and
// dropped.
func (c *Cache) MarkFailedAttempt(ctx context.Context, key, reason string) {
	err := c.backend.SetFailure(ctx, model.FailureRecord{Key: key, Reason: reason}, c.ttl)
	if err != nil {
		zap.L().Warn("failcache: record failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}
