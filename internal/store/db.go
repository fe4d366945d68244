// Package store persists the catalog, the sync job queue, POS credentials
// and the upload audit log. The same SQL runs on PostgreSQL (pgx) and on an
// embedded SQLite file (go-sqlite3), so queries stick to the common subset:
// $N placeholders numbered in order of first appearance, CAST for
// parameters in select lists, ON CONFLICT for upserts, and integer cents for
// money.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
)

// Dialect identifies the SQL backend behind a Store.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Rows is the subset of pgx.Rows and *sql.Rows the repository uses.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Row is a single-row result.
type Row interface {
	Scan(dest ...any) error
}

// DBTX is satisfied by a connection pool or an open transaction of either
// dialect.
type DBTX interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
}

type txConn interface {
	DBTX
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type conn interface {
	DBTX
	Begin(ctx context.Context) (txConn, error)
	Ping(ctx context.Context) error
	Close()
}

// PoolOptions sizes the PostgreSQL pool. SQLite always uses one connection.
type PoolOptions struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Store is the SQL-backed implementation of catalog.Store and jobs.Queue.
type Store struct {
	dialect Dialect
	db      conn
	now     func() time.Time
}

// Open connects to the database named by url. "postgres://" and
// "postgresql://" URLs use pgx; "sqlite:<path>" opens (or creates) a
// SQLite file.
func Open(ctx context.Context, url string, opts PoolOptions) (*Store, error) {
	var (
		c       conn
		dialect Dialect
		err     error
	)
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		dialect = Postgres
		c, err = openPostgres(ctx, url, opts)
	case strings.HasPrefix(url, "sqlite:"):
		dialect = SQLite
		c, err = openSQLite(strings.TrimPrefix(strings.TrimPrefix(url, "sqlite:"), "//"))
	default:
		return nil, fmt.Errorf("unsupported database url scheme in %q", redact(url))
	}
	if err != nil {
		return nil, err
	}

	if err := c.Ping(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{dialect: dialect, db: c, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Dialect reports the backend in use.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close releases all connections.
func (s *Store) Close() { s.db.Close() }

// SetClock replaces the store's time source. Tests use it to control lease
// expiry and retention.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// WithTx runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(catalog.Tx) error) error {
	return s.withTx(ctx, func(q DBTX) error {
		return fn(&catalogTx{q: q, now: s.now})
	})
}

func (s *Store) withTx(ctx context.Context, fn func(DBTX) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func openPostgres(ctx context.Context, url string, opts PoolOptions) (conn, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return pgxPool{pool}, nil
}

func openSQLite(path string) (conn, error) {
	if path == "" {
		return nil, errors.New("sqlite url has no path")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite has a single writer; one connection avoids SQLITE_BUSY and
	// keeps the pragmas below in effect.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return sqlDB{db}, nil
}

// pgx adapters. pgxpool.Pool and pgx.Tx share the same query methods.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgxDBTX struct{ q pgxQuerier }

func (d pgxDBTX) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := d.q.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (d pgxDBTX) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return d.q.Query(ctx, query, args...)
}

func (d pgxDBTX) QueryRow(ctx context.Context, query string, args ...any) Row {
	return d.q.QueryRow(ctx, query, args...)
}

type pgxPool struct{ pool *pgxpool.Pool }

func (p pgxPool) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return pgxDBTX{p.pool}.Exec(ctx, query, args...)
}

func (p pgxPool) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return pgxDBTX{p.pool}.Query(ctx, query, args...)
}

func (p pgxPool) QueryRow(ctx context.Context, query string, args ...any) Row {
	return pgxDBTX{p.pool}.QueryRow(ctx, query, args...)
}

func (p pgxPool) Begin(ctx context.Context) (txConn, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return pgxTx{pgxDBTX: pgxDBTX{tx}, tx: tx}, nil
}

func (p pgxPool) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }
func (p pgxPool) Close()                         { p.pool.Close() }

type pgxTx struct {
	pgxDBTX
	tx pgx.Tx
}

func (t pgxTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t pgxTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// database/sql adapters. *sql.DB and *sql.Tx share the same query methods.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlDBTX struct{ q sqlQuerier }

func (d sqlDBTX) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := d.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d sqlDBTX) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := d.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (d sqlDBTX) QueryRow(ctx context.Context, query string, args ...any) Row {
	return d.q.QueryRowContext(ctx, query, args...)
}

type sqlRows struct{ *sql.Rows }

func (r sqlRows) Close() { _ = r.Rows.Close() }

type sqlDB struct{ db *sql.DB }

func (d sqlDB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return sqlDBTX{d.db}.Exec(ctx, query, args...)
}

func (d sqlDB) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return sqlDBTX{d.db}.Query(ctx, query, args...)
}

func (d sqlDB) QueryRow(ctx context.Context, query string, args ...any) Row {
	return sqlDBTX{d.db}.QueryRow(ctx, query, args...)
}

func (d sqlDB) Begin(ctx context.Context) (txConn, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return sqlTx{sqlDBTX: sqlDBTX{tx}, tx: tx}, nil
}

func (d sqlDB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }
func (d sqlDB) Close()                         { _ = d.db.Close() }

type sqlTx struct {
	sqlDBTX
	tx *sql.Tx
}

func (t sqlTx) Commit(context.Context) error   { return t.tx.Commit() }
func (t sqlTx) Rollback(context.Context) error { return t.tx.Rollback() }

// isNoRows reports whether err is the no-rows error of either driver.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation reports whether err is a unique-constraint failure of
// either driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func redact(url string) string {
	if i := strings.Index(url, "@"); i >= 0 {
		if j := strings.Index(url, "://"); j >= 0 && j < i {
			return url[:j+3] + "***" + url[i:]
		}
	}
	return url
}
