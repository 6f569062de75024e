package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/spirits-cli/internal/db"
	"github.com/sells-group/spirits-cli/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return eris.Wrap(db.Migrate(ctx, s.pool, migrationsFS, "migrations"), "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const spiritColumns = `id, record, created_at, updated_at`

func (s *PostgresStore) Query(ctx context.Context, c model.Criteria) ([]model.StoredSpirit, error) {
	name := strings.TrimSpace(c.Name)
	brand := strings.TrimSpace(c.Brand)

	var (
		query string
		args  []any
	)
	switch {
	case c.Exact:
		query = `SELECT ` + spiritColumns + ` FROM spirits WHERE lower(name) = lower($1) AND lower(brand) = lower($2) LIMIT $3`
		args = []any{name, brand, c.EffectiveLimit()}
	case name == "" && brand == "":
		return nil, nil
	default:
		var clauses []string
		if name != "" {
			args = append(args, likePattern(name))
			clauses = append(clauses, fmt.Sprintf(`name ILIKE $%d ESCAPE '\'`, len(args)))
		}
		if brand != "" {
			args = append(args, likePattern(brand))
			clauses = append(clauses, fmt.Sprintf(`brand ILIKE $%d ESCAPE '\'`, len(args)))
		}
		args = append(args, c.EffectiveLimit())
		query = fmt.Sprintf(`SELECT %s FROM spirits WHERE %s ORDER BY updated_at DESC LIMIT $%d`,
			spiritColumns, strings.Join(clauses, " OR "), len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query spirits")
	}
	return collectSpirits(rows)
}

func (s *PostgresStore) Insert(ctx context.Context, sp model.Spirit) (string, error) {
	recordJSON, err := json.Marshal(sp)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal spirit")
	}
	now := time.Now().UTC()

	var id string
	err = s.pool.QueryRow(ctx,
		`INSERT INTO spirits (id, name, brand, type, record, needs_enrichment, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT DO NOTHING RETURNING id`,
		uuid.New().String(), strings.TrimSpace(sp.Name), strings.TrimSpace(sp.Brand), sp.Type,
		recordJSON, sp.NeedsEnrichment(), now, now,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrDuplicate
		}
		return "", eris.Wrap(err, "postgres: insert spirit")
	}
	return id, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, sp model.Spirit) error {
	recordJSON, err := json.Marshal(sp)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal spirit")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE spirits SET name = $1, brand = $2, type = $3, record = $4, needs_enrichment = $5, updated_at = $6
		 WHERE id = $7`,
		strings.TrimSpace(sp.Name), strings.TrimSpace(sp.Brand), sp.Type,
		recordJSON, sp.NeedsEnrichment(), time.Now().UTC(), id,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicate
		}
		return eris.Wrapf(err, "postgres: update spirit %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update spirit %s", id)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.StoredSpirit, error) {
	sp, err := scanSpirit(s.pool.QueryRow(ctx,
		`SELECT `+spiritColumns+` FROM spirits WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: get spirit %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get spirit %s", id)
	}
	return sp, nil
}

func (s *PostgresStore) ListNeedingEnrichment(ctx context.Context, limit int) ([]model.StoredSpirit, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+spiritColumns+` FROM spirits WHERE needs_enrichment ORDER BY updated_at ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list spirits needing enrichment")
	}
	return collectSpirits(rows)
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.CatalogStats, error) {
	stats := &model.CatalogStats{ByType: make(map[string]int)}

	err := s.pool.QueryRow(ctx,
		`SELECT count(*), count(*) FILTER (WHERE needs_enrichment) FROM spirits`,
	).Scan(&stats.Total, &stats.NeedsEnrichment)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count spirits")
	}

	rows, err := s.pool.Query(ctx, `SELECT type, count(*) FROM spirits GROUP BY type`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count spirits by type")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			typ string
			n   int
		)
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan type count")
		}
		stats.ByType[typeKey(typ)] += n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: count spirits by type iterate")
	}

	err = s.pool.QueryRow(ctx,
		`SELECT count(*) FROM failed_attempts WHERE expires_at > now()`,
	).Scan(&stats.ActiveFailures)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count failed attempts")
	}
	return stats, nil
}

func (s *PostgresStore) GetFailure(ctx context.Context, key string) (*model.FailureRecord, error) {
	var rec model.FailureRecord
	err := s.pool.QueryRow(ctx,
		`SELECT key, reason, attempts, recorded_at, expires_at FROM failed_attempts
		 WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&rec.Key, &rec.Reason, &rec.Attempts, &rec.RecordedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get failed attempt")
	}
	return &rec, nil
}

func (s *PostgresStore) SetFailure(ctx context.Context, rec model.FailureRecord, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO failed_attempts (key, reason, attempts, recorded_at, expires_at) VALUES ($1, $2, 1, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET reason = $2, attempts = failed_attempts.attempts + 1, recorded_at = $3, expires_at = $4`,
		rec.Key, rec.Reason, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set failed attempt")
}

func (s *PostgresStore) DeleteExpiredFailures(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM failed_attempts WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired failed attempts")
	}
	return int(tag.RowsAffected()), nil
}

func collectSpirits(rows pgx.Rows) ([]model.StoredSpirit, error) {
	defer rows.Close()

	var out []model.StoredSpirit
	for rows.Next() {
		sp, err := scanSpirit(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan spirit")
		}
		out = append(out, *sp)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate spirits")
}

func scanSpirit(row pgx.Row) (*model.StoredSpirit, error) {
	var (
		sp         model.StoredSpirit
		recordJSON []byte
	)
	if err := row.Scan(&sp.ID, &recordJSON, &sp.CreatedAt, &sp.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(recordJSON, &sp.Spirit); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal spirit")
	}
	return &sp, nil
}
