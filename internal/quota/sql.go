package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect selects placeholder style and driver name.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "pgx"
)

// SQLLedger stores one row per provider in quota_exhaustion. Dates are kept
// as YYYY-MM-DD text so the table reads the same from any SQL client.
type SQLLedger struct {
	db *sql.DB
	q  sqlQueries
}

type sqlQueries struct {
	create string
	get    string
	upsert string
	list   string
	prune  string
}

var queries = map[Dialect]sqlQueries{
	DialectSQLite: {
		create: `CREATE TABLE IF NOT EXISTS quota_exhaustion (
			provider_id  TEXT PRIMARY KEY,
			exhausted_on TEXT NOT NULL
		)`,
		get: `SELECT exhausted_on FROM quota_exhaustion WHERE provider_id = ?`,
		upsert: `INSERT INTO quota_exhaustion (provider_id, exhausted_on) VALUES (?, ?)
			ON CONFLICT (provider_id) DO UPDATE SET exhausted_on = excluded.exhausted_on
			WHERE quota_exhaustion.exhausted_on < excluded.exhausted_on`,
		list:  `SELECT provider_id, exhausted_on FROM quota_exhaustion`,
		prune: `DELETE FROM quota_exhaustion WHERE exhausted_on < ?`,
	},
	DialectPostgres: {
		create: `CREATE TABLE IF NOT EXISTS quota_exhaustion (
			provider_id  TEXT PRIMARY KEY,
			exhausted_on TEXT NOT NULL
		)`,
		get: `SELECT exhausted_on FROM quota_exhaustion WHERE provider_id = $1`,
		upsert: `INSERT INTO quota_exhaustion (provider_id, exhausted_on) VALUES ($1, $2)
			ON CONFLICT (provider_id) DO UPDATE SET exhausted_on = excluded.exhausted_on
			WHERE quota_exhaustion.exhausted_on < excluded.exhausted_on`,
		list:  `SELECT provider_id, exhausted_on FROM quota_exhaustion`,
		prune: `DELETE FROM quota_exhaustion WHERE exhausted_on < $1`,
	},
}

// OpenSQL opens dsn with the dialect's driver and ensures the table exists.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*SQLLedger, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s ledger: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// a single writer connection serialises upserts on the file
		db.SetMaxOpenConns(1)
	}
	l, err := NewSQL(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// NewSQL wraps an existing handle and runs the schema migration.
func NewSQL(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLLedger, error) {
	q, ok := queries[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported ledger dialect %q", dialect)
	}
	if _, err := db.ExecContext(ctx, q.create); err != nil {
		return nil, fmt.Errorf("create quota table: %w", err)
	}
	return &SQLLedger{db: db, q: q}, nil
}

func (l *SQLLedger) IsExhausted(ctx context.Context, providerID string, today Date) (bool, error) {
	var raw string
	err := l.db.QueryRowContext(ctx, l.q.get, providerID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read quota record %s: %w", providerID, err)
	}
	stored, err := ParseDate(raw)
	if err != nil {
		return false, err
	}
	return exhaustedOn(stored, today), nil
}

func (l *SQLLedger) MarkExhausted(ctx context.Context, providerID string, today Date) error {
	if _, err := l.db.ExecContext(ctx, l.q.upsert, providerID, today.String()); err != nil {
		return fmt.Errorf("upsert quota record %s: %w", providerID, err)
	}
	return nil
}

func (l *SQLLedger) List(ctx context.Context) (map[string]Date, error) {
	rows, err := l.db.QueryContext(ctx, l.q.list)
	if err != nil {
		return nil, fmt.Errorf("list quota records: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Date)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan quota record: %w", err)
		}
		d, err := ParseDate(raw)
		if err != nil {
			return nil, err
		}
		out[id] = d
	}
	return out, rows.Err()
}

func (l *SQLLedger) Prune(ctx context.Context, before Date) (int, error) {
	res, err := l.db.ExecContext(ctx, l.q.prune, before.String())
	if err != nil {
		return 0, fmt.Errorf("prune quota records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

func (l *SQLLedger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

func (l *SQLLedger) Close() error {
	return l.db.Close()
}
