// Package engine implements the idempotent merge-upsert core. It consults
// the schema registry for table structure, derives composite keys, and
// applies each row through the store's atomic per-key read-merge-write
// primitive. Row-scoped failures are recovered locally and aggregated into a
// per-table summary; only store connectivity failures escalate.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"biokb/internal/metrics"
	"biokb/internal/schema"
	"biokb/internal/store"
)

// Logger is the minimal structured logging surface the engine needs.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Summary accumulates per-table row outcomes for one upsert batch.
type Summary struct {
	Table    string
	Inserted int
	Merged   int
	Skipped  int

	// Derived collects the association loads fanned out from the primary
	// table's array columns, one summary per child table.
	Derived []Summary
}

// Total returns the number of rows the batch attempted on the primary table.
func (s Summary) Total() int { return s.Inserted + s.Merged + s.Skipped }

// SkippedTotal counts skips across the primary table and its fan-out loads.
func (s Summary) SkippedTotal() int {
	n := s.Skipped
	for _, d := range s.Derived {
		n += d.SkippedTotal()
	}
	return n
}

func (s Summary) String() string {
	out := fmt.Sprintf("%s: inserted=%d merged=%d skipped=%d", s.Table, s.Inserted, s.Merged, s.Skipped)
	for _, d := range s.Derived {
		out += "; " + d.String()
	}
	return out
}

// Engine applies row batches against a RowStore.
type Engine struct {
	store   store.RowStore
	tables  schema.Registry
	log     Logger
	metrics metrics.Recorder
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger replaces the no-op default logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics replaces the no-op default recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.metrics = r
		}
	}
}

// New constructs an engine over the given store and registry.
func New(st store.RowStore, tables schema.Registry, opts ...Option) *Engine {
	e := &Engine{
		store:   st,
		tables:  tables,
		log:     noopLogger{},
		metrics: metrics.Noop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Upsert applies rows to tableName in order. Rows lacking a key column or
// violating a foreign key are skipped, logged and counted; any other store
// error aborts the batch and is returned alongside the partial summary.
func (e *Engine) Upsert(ctx context.Context, tableName string, rows []store.Row) (Summary, error) {
	table, err := e.tables.Lookup(tableName)
	if err != nil {
		return Summary{Table: tableName}, err
	}
	summary := Summary{Table: tableName}
	derived := make(map[string]*Summary)
	for _, row := range rows {
		if err := e.applyRow(ctx, table, row, &summary, derived); err != nil {
			return summary, err
		}
	}
	summary.Derived = derivedSummaries(table, derived)
	e.log.Info("upsert batch done",
		"table", summary.Table,
		"inserted", summary.Inserted,
		"merged", summary.Merged,
		"skipped", summary.Skipped)
	return summary, nil
}

// applyRow upserts one primary row and, when it was written, loads the
// association rows derived from its array columns.
func (e *Engine) applyRow(ctx context.Context, table schema.Table, row store.Row, summary *Summary, derived map[string]*Summary) error {
	applied, err := e.upsertOne(ctx, table, row, summary)
	if err != nil || !applied || len(table.FanOuts) == 0 {
		return err
	}
	return e.fanOutRow(ctx, table, row, derived)
}

// fanOutRow feeds each element of the declared array columns into its child
// association table, keyed by the parent's key value through the child's
// back-reference.
func (e *Engine) fanOutRow(ctx context.Context, parent schema.Table, row store.Row, sums map[string]*Summary) error {
	for _, fo := range parent.FanOuts {
		elems, _ := row[fo.Source].([]string)
		if len(elems) == 0 {
			continue
		}
		child, err := e.tables.Lookup(fo.Table)
		if err != nil {
			return err
		}
		ref, ok := referenceTo(child, parent.Name)
		if !ok {
			return fmt.Errorf("fan out %s.%s into %s: no reference back to %s",
				parent.Name, fo.Source, child.Name, parent.Name)
		}
		sum := sums[child.Name]
		if sum == nil {
			sum = &Summary{Table: child.Name}
			sums[child.Name] = sum
		}
		for _, elem := range elems {
			childRow := store.Row{ref.Column: row[ref.ParentColumn], fo.Column: elem}
			if _, err := e.upsertOne(ctx, child, childRow, sum); err != nil {
				return err
			}
		}
	}
	return nil
}

func referenceTo(child schema.Table, parent string) (schema.Reference, bool) {
	for _, ref := range child.Refs {
		if ref.ParentTable == parent {
			return ref, true
		}
	}
	return schema.Reference{}, false
}

// derivedSummaries orders the per-child summaries by fan-out declaration.
func derivedSummaries(table schema.Table, sums map[string]*Summary) []Summary {
	var out []Summary
	seen := make(map[string]bool, len(table.FanOuts))
	for _, fo := range table.FanOuts {
		if seen[fo.Table] {
			continue
		}
		seen[fo.Table] = true
		if sum := sums[fo.Table]; sum != nil {
			out = append(out, *sum)
		}
	}
	return out
}

// upsertOne applies a single row, reporting whether it was written. Skips
// are counted into summary and never surface as errors.
func (e *Engine) upsertOne(ctx context.Context, table schema.Table, row store.Row, summary *Summary) (bool, error) {
	start := time.Now()
	defer func() { e.metrics.Observe(table.Name, time.Since(start)) }()

	key, err := deriveKey(table, row)
	if err != nil {
		summary.Skipped++
		e.metrics.Record(table.Name, "skipped")
		e.log.Warn("row skipped", "table", table.Name, "reason", err.Error())
		return false, nil
	}

	outcome, err := e.store.Mutate(ctx, table.Name, key, func(existing store.Row, found bool) (store.Row, error) {
		if !found {
			return normalizeInsert(table, row), nil
		}
		if table.Association() {
			// Key-only table: nothing beyond the key to overwrite or union.
			return existing, nil
		}
		return mergeRow(table, existing, row), nil
	})
	if err != nil {
		var refErr *store.ReferentialIntegrityError
		if errors.As(err, &refErr) {
			summary.Skipped++
			e.metrics.Record(table.Name, "skipped")
			e.log.Warn("row skipped", "table", table.Name, "key", key.String(), "reason", refErr.Error())
			return false, nil
		}
		return false, fmt.Errorf("upsert %s key %v: %w", table.Name, key, err)
	}

	switch outcome {
	case store.Inserted:
		summary.Inserted++
		e.metrics.Record(table.Name, "inserted")
	default:
		summary.Merged++
		e.metrics.Record(table.Name, "merged")
	}
	return true, nil
}

// deriveKey renders the composite key tuple for row. Every key column must be
// present and non-null unless the table tolerates nullable key members, in
// which case at least one member must be non-null.
func deriveKey(table schema.Table, row store.Row) (store.Key, error) {
	keyCols := table.KeyColumns()
	key := make(store.Key, 0, len(keyCols))
	nonNull := false
	for _, col := range keyCols {
		v, ok := row[col]
		if !ok || v == nil {
			if !table.NullableKey {
				return nil, &MissingKeyError{Table: table.Name, Column: col}
			}
			key = append(key, "")
			continue
		}
		key = append(key, keyString(v))
		nonNull = true
	}
	if !nonNull {
		return nil, &MissingKeyError{Table: table.Name, Column: keyCols[0]}
	}
	return key, nil
}

func keyString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// normalizeInsert shapes a fresh row: supplied scalars as-is, declared array
// columns always present (empty when missing), unknown columns dropped.
func normalizeInsert(table schema.Table, row store.Row) store.Row {
	out := make(store.Row, len(table.Columns))
	for _, c := range table.Columns {
		v, ok := row[c.Name]
		if c.Array {
			if !ok || v == nil {
				out[c.Name] = []string{}
				continue
			}
			arr, _ := v.([]string)
			out[c.Name] = append([]string(nil), arr...)
			continue
		}
		if ok {
			out[c.Name] = v
		}
	}
	return out
}

// mergeRow merges incoming into existing per the declared structure: scalar
// columns present in incoming overwrite, array columns union with stored
// order preserved and unseen incoming elements appended, absent columns stay
// untouched.
func mergeRow(table schema.Table, existing, incoming store.Row) store.Row {
	out := existing.Clone()
	for _, c := range table.Columns {
		v, ok := incoming[c.Name]
		if !ok || v == nil {
			continue
		}
		if !c.Array {
			out[c.Name] = v
			continue
		}
		arr, _ := v.([]string)
		stored, _ := out[c.Name].([]string)
		out[c.Name] = unionArrays(stored, arr)
	}
	return out
}

// unionArrays keeps stored elements in order, then appends incoming elements
// not already present, in incoming order. The result is duplicate-free.
func unionArrays(stored, incoming []string) []string {
	out := make([]string, 0, len(stored)+len(incoming))
	seen := make(map[string]struct{}, len(stored)+len(incoming))
	for _, v := range stored {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, v := range incoming {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
