// Package sqlite provides a file-backed RowStore for single-host runs. The
// registry DDL is applied on open, so a fresh database file is usable
// immediately.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"biokb/internal/schema"
	"biokb/internal/store"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion.
var _ store.RowStore = (*Store)(nil)

// Store wraps one SQLite database. SQLite serializes writers at the file
// level anyway, so Mutate holds a process-wide mutex for its whole
// read-merge-write span rather than relying on busy retries.
type Store struct {
	db     *sql.DB
	tables schema.Registry
	mu     sync.Mutex
	path   string
}

// New opens (creating if needed) the database at path and applies the
// registry DDL.
func New(path string, tables schema.Registry) (*Store, error) {
	if path == "" {
		path = "biokb.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	// Pragmas go through the DSN so every pooled connection gets them.
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &store.StoreConnectionError{Backend: "sqlite", Err: err}
	}
	ctx := context.Background()
	for _, stmt := range schema.SplitStatements(schema.DDL(tables, schema.SQLite)) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute ddl: %w", err)
		}
	}
	return &Store{db: db, tables: tables, path: path}, nil
}

// Mutate reads the addressed row inside a transaction, applies fn and writes
// the result back.
func (s *Store) Mutate(ctx context.Context, table string, key store.Key, fn store.MutateFunc) (store.Outcome, error) {
	t, err := s.tables.Lookup(table)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &store.StoreConnectionError{Backend: "sqlite", Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	existing, found, err := selectRow(ctx, tx, t, key)
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
		return 0, &store.StoreConnectionError{Backend: "sqlite", Err: err}
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
	s.mu.Lock()
	defer s.mu.Unlock()
	return selectRowDB(ctx, s.db, t, key)
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

func placeholder(int) string { return "?" }

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func selectRow(ctx context.Context, tx *sql.Tx, t schema.Table, key store.Key) (store.Row, bool, error) {
	return selectRowDB(ctx, tx, t, key)
}

func selectRowDB(ctx context.Context, q querier, t schema.Table, key store.Key) (store.Row, bool, error) {
	where, args := store.KeyPredicate(t, key, placeholder)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(t.ColumnNames(), ", "), t.Name, where)
	dest := store.ScanTargets(t)
	err := q.QueryRowContext(ctx, query, args...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select %s: %w", t.Name, err)
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
		marks[i] = "?"
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.Name, strings.Join(cols, ", "), strings.Join(marks, ", "))
	_, err := tx.ExecContext(ctx, query, store.SQLValues(t, row)...)
	return err
}

func updateRow(ctx context.Context, tx *sql.Tx, t schema.Table, key store.Key, row store.Row) error {
	where, whereArgs := store.KeyPredicate(t, key, placeholder)
	cols := t.ColumnNames()
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", t.Name, strings.Join(sets, ", "), where)
	args := append(store.SQLValues(t, row), whereArgs...)
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// classify maps driver errors onto the store error taxonomy. modernc reports
// foreign key failures in the message text.
func classify(table string, err error) error {
	if strings.Contains(err.Error(), "FOREIGN KEY") {
		return &store.ReferentialIntegrityError{Table: table}
	}
	return fmt.Errorf("write %s: %w", table, err)
}
