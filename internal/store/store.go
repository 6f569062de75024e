// Package store persists extracted spirits and the failed-attempt ledger.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spirits-cli/internal/model"
)

var (
	// ErrDuplicate is returned when a write collides with an existing
	// (name, brand) pair.
	ErrDuplicate = eris.New("store: duplicate spirit")
	// ErrNotFound is returned when an update or lookup targets a missing ID.
	ErrNotFound = eris.New("store: spirit not found")
)

// Store defines the persistence interface for the ingestion pipeline.
type Store interface {
	// Spirits
	Query(ctx context.Context, c model.Criteria) ([]model.StoredSpirit, error)
	Insert(ctx context.Context, s model.Spirit) (string, error)
	Update(ctx context.Context, id string, s model.Spirit) error
	Get(ctx context.Context, id string) (*model.StoredSpirit, error)
	ListNeedingEnrichment(ctx context.Context, limit int) ([]model.StoredSpirit, error)
	Stats(ctx context.Context) (*model.CatalogStats, error)

	// Failed attempts
	GetFailure(ctx context.Context, key string) (*model.FailureRecord, error)
	SetFailure(ctx context.Context, rec model.FailureRecord, ttl time.Duration) error
	DeleteExpiredFailures(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Open returns the Store for driver. dsn is a connection string for postgres
// and a file path for sqlite; it is ignored for memory.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case DriverPostgres:
		return NewPostgres(ctx, dsn, poolCfg)
	case DriverSQLite:
		return NewSQLite(dsn)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

const defaultListLimit = 100

// likePattern escapes LIKE metacharacters in s and wraps it in %...%.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(s)) + "%"
}

func typeKey(t string) string {
	if t = strings.TrimSpace(t); t == "" {
		return "unknown"
	}
	return t
}
