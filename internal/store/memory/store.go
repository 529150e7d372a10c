// Package memory provides an in-process RowStore used by tests and dry runs.
// It enforces the same referential checks as the SQL backends so engine
// behavior does not depend on the chosen backend.
package memory

import (
	"context"
	"fmt"
	"sync"

	"biokb/internal/schema"
	"biokb/internal/store"
)

// Compile-time contract assertion.
var _ store.RowStore = (*Store)(nil)

// Store holds rows per table keyed by the rendered composite key. Mutations
// on one key serialize on a per-key mutex; the map structure itself is
// guarded separately.
type Store struct {
	tables schema.Registry

	mu    sync.Mutex
	rows  map[string]map[string]store.Row
	locks map[string]*sync.Mutex
}

// New returns an empty store validating against the given registry.
func New(tables schema.Registry) *Store {
	return &Store{
		tables: tables,
		rows:   make(map[string]map[string]store.Row),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Mutate locks the addressed key, reads the stored row, applies fn and
// persists the result. Referential checks run against the rows visible at
// write time.
func (s *Store) Mutate(ctx context.Context, table string, key store.Key, fn store.MutateFunc) (store.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t, err := s.tables.Lookup(table)
	if err != nil {
		return 0, err
	}

	ku := key.String()
	lock := s.keyLock(table, ku)
	lock.Lock()
	defer lock.Unlock()

	existing, found := s.read(table, ku)
	next, err := fn(existing, found)
	if err != nil {
		return 0, err
	}
	if err := s.checkReferences(t, next); err != nil {
		return 0, err
	}
	s.write(table, ku, next.Clone())
	if found {
		return store.Updated, nil
	}
	return store.Inserted, nil
}

// Get returns a copy of the stored row for key.
func (s *Store) Get(ctx context.Context, table string, key store.Key) (store.Row, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if _, err := s.tables.Lookup(table); err != nil {
		return nil, false, err
	}
	row, found := s.read(table, key.String())
	return row, found, nil
}

// Close releases nothing; it exists to satisfy the contract.
func (s *Store) Close() error { return nil }

// Count returns the number of stored rows in table.
func (s *Store) Count(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows[table])
}

func (s *Store) keyLock(table, key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := table + "\x1f" + key
	if l, ok := s.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[id] = l
	return l
}

func (s *Store) read(table, key string) (store.Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[table][key]
	if !ok {
		return nil, false
	}
	return row.Clone(), true
}

func (s *Store) write(table, key string, row store.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows[table] == nil {
		s.rows[table] = make(map[string]store.Row)
	}
	s.rows[table][key] = row
}

// checkReferences verifies every declared foreign key of row against the
// stored parent rows. Null reference values pass.
func (s *Store) checkReferences(t schema.Table, row store.Row) error {
	for _, ref := range t.Refs {
		v, ok := row[ref.Column]
		if !ok || v == nil {
			continue
		}
		value := fmt.Sprint(v)
		if value == "" {
			continue
		}
		if !s.parentExists(ref, value) {
			return &store.ReferentialIntegrityError{Table: t.Name, Column: ref.Column, Value: value}
		}
	}
	return nil
}

func (s *Store) parentExists(ref schema.Reference, value string) bool {
	parent, err := s.tables.Lookup(ref.ParentTable)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := parent.KeyColumns()
	if len(keys) == 1 && keys[0] == ref.ParentColumn {
		_, ok := s.rows[ref.ParentTable][store.Key{value}.String()]
		return ok
	}
	for _, row := range s.rows[ref.ParentTable] {
		if fmt.Sprint(row[ref.ParentColumn]) == value {
			return true
		}
	}
	return false
}
