package store

import (
	"database/sql"
	"fmt"
	"strings"

	"biokb/internal/schema"
	"biokb/internal/tsv"
)

// SQLValues renders row into driver values in column declaration order.
// Absent columns become SQL NULL; array columns persist as a single
// list-separated TEXT cell.
func SQLValues(t schema.Table, row Row) []any {
	out := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		v, ok := row[c.Name]
		if !ok || v == nil {
			continue
		}
		if c.Array {
			arr, _ := v.([]string)
			if len(arr) == 0 {
				continue
			}
			out[i] = tsv.JoinList(arr)
			continue
		}
		if s, ok := v.(string); ok && s == "" && c.Key && t.NullableKey {
			continue
		}
		out[i] = v
	}
	return out
}

// ScanTargets returns scan destinations for one row of t's columns.
func ScanTargets(t schema.Table) []any {
	dest := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		if c.Array {
			dest[i] = new(sql.NullString)
			continue
		}
		switch c.Kind {
		case schema.Int:
			dest[i] = new(sql.NullInt64)
		case schema.Float:
			dest[i] = new(sql.NullFloat64)
		case schema.Bool:
			dest[i] = new(sql.NullBool)
		default:
			dest[i] = new(sql.NullString)
		}
	}
	return dest
}

// RowFromScan converts filled scan destinations back into a Row. SQL NULL
// cells stay absent; array cells split back into their elements.
func RowFromScan(t schema.Table, dest []any) (Row, error) {
	row := make(Row, len(t.Columns))
	for i, c := range t.Columns {
		switch v := dest[i].(type) {
		case *sql.NullString:
			if !v.Valid {
				continue
			}
			if c.Array {
				row[c.Name] = tsv.SplitList(v.String)
				continue
			}
			row[c.Name] = v.String
		case *sql.NullInt64:
			if v.Valid {
				row[c.Name] = v.Int64
			}
		case *sql.NullFloat64:
			if v.Valid {
				row[c.Name] = v.Float64
			}
		case *sql.NullBool:
			if v.Valid {
				row[c.Name] = v.Bool
			}
		default:
			return nil, fmt.Errorf("store: %s.%s: unsupported scan target %T", t.Name, c.Name, dest[i])
		}
	}
	return row, nil
}

// KeyPredicate builds a WHERE clause over t's key columns. Empty key members
// compare with IS NULL; placeholder renders each positional argument, fed
// the 1-based ordinal of non-null members.
func KeyPredicate(t schema.Table, key Key, placeholder func(ordinal int) string) (string, []any) {
	cols := t.KeyColumns()
	parts := make([]string, len(cols))
	args := make([]any, 0, len(cols))
	ordinal := 0
	for i, col := range cols {
		if i < len(key) && key[i] == "" {
			parts[i] = col + " IS NULL"
			continue
		}
		ordinal++
		parts[i] = col + " = " + placeholder(ordinal)
		args = append(args, key[i])
	}
	return strings.Join(parts, " AND "), args
}
