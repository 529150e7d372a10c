// Package store defines the contract every relational backend fulfills for
// the merge-upsert engine: atomic per-key read-merge-write with row-level
// serialization, plus the error types row-scoped and fatal failures surface
// through.
package store

import (
	"context"
	"strings"
)

// Row is one table row as a column→value map. Scalar values are string,
// int64, float64 or bool; array-valued columns hold []string.
type Row map[string]any

// Clone returns a deep copy; array values are copied, not shared.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		if arr, ok := v.([]string); ok {
			cp := make([]string, len(arr))
			copy(cp, arr)
			out[k] = cp
			continue
		}
		out[k] = v
	}
	return out
}

// Key is the rendered composite key tuple in key-column declaration order.
// Null members render as the empty string (permitted only for tables whose
// declaration tolerates nullable keys).
type Key []string

// String returns a canonical representation usable as a map key. The unit
// separator cannot occur in identifier values.
func (k Key) String() string {
	return strings.Join(k, "\x1f")
}

// Outcome reports what a Mutate call did to the addressed row.
type Outcome int

const (
	// Inserted means no row existed for the key and a new one was written.
	Inserted Outcome = iota
	// Updated means an existing row was read, merged and rewritten.
	Updated
)

// MutateFunc receives the currently stored row (nil when absent) and returns
// the row to persist. Returning an error aborts the mutation without writing.
type MutateFunc func(existing Row, found bool) (Row, error)

// RowStore is the persistence contract consumed by the engine. Mutate
// executes as one atomic unit: acquire a lock scope for the key, read, apply
// fn, write, release. Two concurrent Mutate calls for the same key serialize
// so the second observes the first's committed write.
type RowStore interface {
	Mutate(ctx context.Context, table string, key Key, fn MutateFunc) (Outcome, error)
	Get(ctx context.Context, table string, key Key) (Row, bool, error)
	Close() error
}
