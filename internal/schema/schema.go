// Package schema declares the static structure of every knowledge-base table:
// key columns, scalar columns, array-valued columns and foreign-key
// references. The merge-upsert engine consults these declarations instead of
// inferring structure from incoming rows.
package schema

import (
	"fmt"
	"sort"
)

// Kind identifies how a scalar column value is parsed and rendered.
type Kind int

const (
	// String is the default column kind.
	String Kind = iota
	// Int columns parse as int64.
	Int
	// Float columns parse as float64; a decimal comma is accepted.
	Float
	// Bool columns parse as booleans.
	Bool
	// JSON columns hold a normalized JSON document as a string.
	JSON
)

// Column describes a single table column in wire (TSV) order.
type Column struct {
	Name  string
	Kind  Kind
	Key   bool // part of the composite primary key
	Array bool // ordered duplicate-free collection, merged by union
}

// Reference declares a foreign key from a column to a parent table column.
type Reference struct {
	Column       string
	ParentTable  string
	ParentColumn string
}

// FanOut declares a derived association load: at upsert time every element
// of the array column Source becomes one row of the child Table, carrying
// the declaring table's key value through the child's back-reference plus
// the element value in Column.
type FanOut struct {
	Source string
	Table  string
	Column string
}

// Table is the static declaration of one target table. Columns appear in the
// order the TSV extracts carry them; fixed columns supplied by the caller at
// load time (condition name, replicate number) come after the body columns.
type Table struct {
	Name    string
	Columns []Column
	Refs    []Reference

	// FanOuts name the association tables fed from this table's array
	// columns during a load.
	FanOuts []FanOut

	// NullableKey marks tables whose composite key tolerates null members
	// (uniqueness is enforced over the full tuple). At least one key column
	// must still be non-null per row.
	NullableKey bool
}

// KeyColumns returns the names of the key columns in declaration order.
func (t Table) KeyColumns() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Key {
			out = append(out, c.Name)
		}
	}
	return out
}

// ColumnNames returns all column names in declaration order.
func (t Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Column looks up a column declaration by name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// IsArray reports whether the named column is array-valued.
func (t Table) IsArray(name string) bool {
	c, ok := t.Column(name)
	return ok && c.Array
}

// Association reports whether the table consists of key columns only. For
// such tables a merge degrades to an existence check.
func (t Table) Association() bool {
	for _, c := range t.Columns {
		if !c.Key {
			return false
		}
	}
	return true
}

// Registry is a static name→table mapping.
type Registry map[string]Table

// Lookup returns the declaration for name.
func (r Registry) Lookup(name string) (Table, error) {
	t, ok := r[name]
	if !ok {
		return Table{}, fmt.Errorf("schema: unknown table %q", name)
	}
	return t, nil
}

// Names returns the registered table names parent-before-child, so DDL can
// be applied and extracts loaded without tripping foreign-key checks. The
// order is deterministic: lexicographic within each dependency tier.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	done := make(map[string]bool, len(names))
	var visit func(string)
	visit = func(n string) {
		if done[n] {
			return
		}
		done[n] = true
		for _, ref := range r[n].Refs {
			if ref.ParentTable == n {
				continue
			}
			if _, ok := r[ref.ParentTable]; ok {
				visit(ref.ParentTable)
			}
		}
		out = append(out, n)
	}
	for _, n := range names {
		visit(n)
	}
	return out
}

// Validate checks structural consistency of every declaration: at least one
// key column, no duplicate column names, references resolving to declared
// parent key columns. cmd/registry-check runs this against the built-in
// registry.
func (r Registry) Validate() error {
	for name, t := range r {
		if name != t.Name {
			return fmt.Errorf("schema: table registered as %q declares name %q", name, t.Name)
		}
		if len(t.KeyColumns()) == 0 {
			return fmt.Errorf("schema: table %q has no key columns", name)
		}
		seen := map[string]bool{}
		for _, c := range t.Columns {
			if seen[c.Name] {
				return fmt.Errorf("schema: table %q declares column %q twice", name, c.Name)
			}
			seen[c.Name] = true
			if c.Array && c.Key {
				return fmt.Errorf("schema: table %q column %q cannot be both key and array", name, c.Name)
			}
			if c.Array && c.Kind != String {
				return fmt.Errorf("schema: table %q array column %q must be string-kinded", name, c.Name)
			}
		}
		for _, ref := range t.Refs {
			if !seen[ref.Column] {
				return fmt.Errorf("schema: table %q references through undeclared column %q", name, ref.Column)
			}
			parent, ok := r[ref.ParentTable]
			if !ok {
				return fmt.Errorf("schema: table %q references unknown table %q", name, ref.ParentTable)
			}
			pc, ok := parent.Column(ref.ParentColumn)
			if !ok || !pc.Key {
				return fmt.Errorf("schema: table %q references %s.%s which is not a parent key column",
					name, ref.ParentTable, ref.ParentColumn)
			}
		}
		for _, fo := range t.FanOuts {
			src, ok := t.Column(fo.Source)
			if !ok || !src.Array {
				return fmt.Errorf("schema: table %q fans out non-array column %q", name, fo.Source)
			}
			child, ok := r[fo.Table]
			if !ok {
				return fmt.Errorf("schema: table %q fans out into unknown table %q", name, fo.Table)
			}
			cc, ok := child.Column(fo.Column)
			if !ok || !cc.Key {
				return fmt.Errorf("schema: table %q fans out into %s.%s which is not a child key column",
					name, fo.Table, fo.Column)
			}
			back := false
			for _, ref := range child.Refs {
				if ref.ParentTable == name {
					back = true
				}
			}
			if !back {
				return fmt.Errorf("schema: fan-out child %q lacks a reference back to %q", fo.Table, name)
			}
		}
	}
	return nil
}
