// Package postgres provides the production RowStore. Row-level serialization
// comes from SELECT ... FOR UPDATE inside one transaction per mutation, so
// concurrent loaders on different hosts merge safely.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"biokb/internal/schema"
	"biokb/internal/store"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion.
var _ store.RowStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/biokb?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// insertRaces bounds retries when two transactions insert the same key
// concurrently and one loses the unique check.
const insertRaces = 3

// Store wraps one Postgres connection pool.
type Store struct {
	db     *sql.DB
	tables schema.Registry
}

// New opens a pool for dsn (falls back to defaultDSN), verifies the
// connection and applies the registry DDL.
func New(dsn string, tables schema.Registry) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, &store.StoreConnectionError{Backend: "postgres", Err: err}
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &store.StoreConnectionError{Backend: "postgres", Err: err}
	}
	for _, stmt := range schema.SplitStatements(schema.DDL(tables, schema.Postgres)) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute ddl: %w", err)
		}
	}
	return &Store{db: db, tables: tables}, nil
}

// Mutate locks the addressed row with FOR UPDATE, applies fn and writes the
// result. A lost insert race is retried so the loser observes the winner's
// committed row.
func (s *Store) Mutate(ctx context.Context, table string, key store.Key, fn store.MutateFunc) (store.Outcome, error) {
	t, err := s.tables.Lookup(table)
	if err != nil {
		return 0, err
	}
	for attempt := 0; ; attempt++ {
		outcome, err := s.mutateOnce(ctx, t, key, fn)
		if err != nil && attempt < insertRaces && isUniqueViolation(err) {
			continue
		}
		return outcome, err
	}
}

func (s *Store) mutateOnce(ctx context.Context, t schema.Table, key store.Key, fn store.MutateFunc) (store.Outcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify(t.Name, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	existing, found, err := selectForUpdate(ctx, tx, t, key)
	if err != nil {
		return 0, err
	}
	next, err := fn(existing, found)
	if err != nil {
		return 0, err
	}

	if found {
		err = updateRow(ctx, tx, t, key, next)
	} else {
		err = insertRow(ctx, tx, t, next)
	}
	if err != nil {
		return 0, classify(t.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, classify(t.Name, err)
	}
	committed = true
	if found {
		return store.Updated, nil
	}
	return store.Inserted, nil
}

// Get returns the stored row for key.
func (s *Store) Get(ctx context.Context, table string, key store.Key) (store.Row, bool, error) {
	t, err := s.tables.Lookup(table)
	if err != nil {
		return nil, false, err
	}
	where, args := store.KeyPredicate(t, key, dollar)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(t.ColumnNames(), ", "), t.Name, where)
	return scanOne(s.db.QueryRowContext(ctx, query, args...), t)
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying pool for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func dollar(ordinal int) string { return fmt.Sprintf("$%d", ordinal) }

func selectForUpdate(ctx context.Context, tx *sql.Tx, t schema.Table, key store.Key) (store.Row, bool, error) {
	where, args := store.KeyPredicate(t, key, dollar)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s FOR UPDATE",
		strings.Join(t.ColumnNames(), ", "), t.Name, where)
	return scanOne(tx.QueryRowContext(ctx, query, args...), t)
}

func scanOne(r *sql.Row, t schema.Table) (store.Row, bool, error) {
	dest := store.ScanTargets(t)
	err := r.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classify(t.Name, err)
	}
	row, err := store.RowFromScan(t, dest)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

func insertRow(ctx context.Context, tx *sql.Tx, t schema.Table, row store.Row) error {
	cols := t.ColumnNames()
	marks := make([]string, len(cols))
	for i := range marks {
		marks[i] = dollar(i + 1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.Name, strings.Join(cols, ", "), strings.Join(marks, ", "))
	_, err := tx.ExecContext(ctx, query, store.SQLValues(t, row)...)
	return err
}

func updateRow(ctx context.Context, tx *sql.Tx, t schema.Table, key store.Key, row store.Row) error {
	cols := t.ColumnNames()
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = " + dollar(i+1)
	}
	where, whereArgs := store.KeyPredicate(t, key, func(ordinal int) string {
		return dollar(len(cols) + ordinal)
	})
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", t.Name, strings.Join(sets, ", "), where)
	args := append(store.SQLValues(t, row), whereArgs...)
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// classify maps driver errors onto the store error taxonomy: foreign-key
// violations are row-scoped, anything non-SQL is a broken connection.
func classify(table string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23503" {
			return &store.ReferentialIntegrityError{Table: table, Column: pgErr.ConstraintName}
		}
		return fmt.Errorf("write %s: %w", table, err)
	}
	return &store.StoreConnectionError{Backend: "postgres", Err: err}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
