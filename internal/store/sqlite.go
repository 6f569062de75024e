package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/spirits-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Timestamps are
// stored as unix milliseconds.
type SQLiteStore struct {
	db *sql.DB

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Single writer connection; pragmas are per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, nowFunc: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS spirits (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	brand            TEXT NOT NULL DEFAULT '',
	type             TEXT NOT NULL DEFAULT '',
	record           TEXT NOT NULL,
	needs_enrichment INTEGER NOT NULL DEFAULT 1,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_spirits_identity ON spirits(lower(name), lower(brand));
CREATE INDEX IF NOT EXISTS idx_spirits_needs_enrichment ON spirits(needs_enrichment, updated_at);

CREATE TABLE IF NOT EXISTS failed_attempts (
	key         TEXT PRIMARY KEY,
	reason      TEXT NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 1,
	recorded_at INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_failed_attempts_expires_at ON failed_attempts(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) now() time.Time {
	return s.nowFunc().UTC()
}

func (s *SQLiteStore) Query(ctx context.Context, c model.Criteria) ([]model.StoredSpirit, error) {
	name := strings.TrimSpace(c.Name)
	brand := strings.TrimSpace(c.Brand)

	var (
		query string
		args  []any
	)
	switch {
	case c.Exact:
		query = `SELECT ` + spiritColumns + ` FROM spirits WHERE lower(name) = lower(?) AND lower(brand) = lower(?) LIMIT ?`
		args = []any{name, brand, c.EffectiveLimit()}
	case name == "" && brand == "":
		return nil, nil
	default:
		var clauses []string
		if name != "" {
			clauses = append(clauses, `lower(name) LIKE lower(?) ESCAPE '\'`)
			args = append(args, likePattern(name))
		}
		if brand != "" {
			clauses = append(clauses, `lower(brand) LIKE lower(?) ESCAPE '\'`)
			args = append(args, likePattern(brand))
		}
		query = `SELECT ` + spiritColumns + ` FROM spirits WHERE ` + strings.Join(clauses, " OR ") +
			` ORDER BY updated_at DESC LIMIT ?`
		args = append(args, c.EffectiveLimit())
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query spirits")
	}
	return collectSQLiteSpirits(rows)
}

func (s *SQLiteStore) Insert(ctx context.Context, sp model.Spirit) (string, error) {
	recordJSON, err := json.Marshal(sp)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal spirit")
	}
	id := uuid.New().String()
	now := s.now().UnixMilli()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO spirits (id, name, brand, type, record, needs_enrichment, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		id, strings.TrimSpace(sp.Name), strings.TrimSpace(sp.Brand), sp.Type,
		string(recordJSON), sp.NeedsEnrichment(), now, now,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert spirit")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return "", ErrDuplicate
	}
	return id, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, sp model.Spirit) error {
	recordJSON, err := json.Marshal(sp)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal spirit")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE spirits SET name = ?, brand = ?, type = ?, record = ?, needs_enrichment = ?, updated_at = ?
		 WHERE id = ?`,
		strings.TrimSpace(sp.Name), strings.TrimSpace(sp.Brand), sp.Type,
		string(recordJSON), sp.NeedsEnrichment(), s.now().UnixMilli(), id,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicate
		}
		return eris.Wrapf(err, "sqlite: update spirit %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.StoredSpirit, error) {
	sp, err := scanSQLiteSpirit(s.db.QueryRowContext(ctx,
		`SELECT `+spiritColumns+` FROM spirits WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: get spirit %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get spirit %s", id)
	}
	return sp, nil
}

func (s *SQLiteStore) ListNeedingEnrichment(ctx context.Context, limit int) ([]model.StoredSpirit, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+spiritColumns+` FROM spirits WHERE needs_enrichment = 1 ORDER BY updated_at ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list spirits needing enrichment")
	}
	return collectSQLiteSpirits(rows)
}

func (s *SQLiteStore) Stats(ctx context.Context) (*model.CatalogStats, error) {
	stats := &model.CatalogStats{ByType: make(map[string]int)}

	err := s.db.QueryRowContext(ctx,
		`SELECT count(*), COALESCE(SUM(needs_enrichment), 0) FROM spirits`,
	).Scan(&stats.Total, &stats.NeedsEnrichment)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count spirits")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT type, count(*) FROM spirits GROUP BY type`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count spirits by type")
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var (
			typ string
			n   int
		)
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan type count")
		}
		stats.ByType[typeKey(typ)] += n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: count spirits by type iterate")
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM failed_attempts WHERE expires_at > ?`, s.now().UnixMilli(),
	).Scan(&stats.ActiveFailures)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count failed attempts")
	}
	return stats, nil
}

func (s *SQLiteStore) GetFailure(ctx context.Context, key string) (*model.FailureRecord, error) {
	var (
		rec                   model.FailureRecord
		recordedAt, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT key, reason, attempts, recorded_at, expires_at FROM failed_attempts
		 WHERE key = ? AND expires_at > ?`,
		key, s.now().UnixMilli(),
	).Scan(&rec.Key, &rec.Reason, &rec.Attempts, &recordedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get failed attempt")
	}
	rec.RecordedAt = time.UnixMilli(recordedAt).UTC()
	rec.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return &rec, nil
}

func (s *SQLiteStore) SetFailure(ctx context.Context, rec model.FailureRecord, ttl time.Duration) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO failed_attempts (key, reason, attempts, recorded_at, expires_at) VALUES (?, ?, 1, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET reason = excluded.reason, attempts = failed_attempts.attempts + 1,
		 recorded_at = excluded.recorded_at, expires_at = excluded.expires_at`,
		rec.Key, rec.Reason, now.UnixMilli(), now.Add(ttl).UnixMilli(),
	)
	return eris.Wrap(err, "sqlite: set failed attempt")
}

func (s *SQLiteStore) DeleteExpiredFailures(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM failed_attempts WHERE expires_at <= ?`, s.now().UnixMilli(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired failed attempts")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "rows affected")
	}
	return int(n), nil
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: spirit %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func collectSQLiteSpirits(rows *sql.Rows) ([]model.StoredSpirit, error) {
	defer rows.Close() //nolint:errcheck

	var out []model.StoredSpirit
	for rows.Next() {
		sp, err := scanSQLiteSpirit(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan spirit")
		}
		out = append(out, *sp)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate spirits")
}

func scanSQLiteSpirit(row scannable) (*model.StoredSpirit, error) {
	var (
		sp                   model.StoredSpirit
		record               string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&sp.ID, &record, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(record), &sp.Spirit); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal spirit")
	}
	sp.CreatedAt = time.UnixMilli(createdAt).UTC()
	sp.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &sp, nil
}
