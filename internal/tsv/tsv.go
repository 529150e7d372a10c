// Package tsv implements the tab-separated wire format shared by every
// extract: one row per line, columns in declared order, "NULL" for absent
// values, semicolons separating list elements and JSON documents carried
// verbatim in a single column.
package tsv

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"biokb/internal/schema"
)

// Null is the sentinel for an absent value.
const Null = "NULL"

// ListSep separates elements of array-valued columns.
const ListSep = ";"

// ParseError reports a malformed line or cell. Line numbers are 1-based.
type ParseError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("tsv: line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("tsv: line %d: column %s value %q: %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseLine splits one tab-separated line into a column→value map following
// the given declarations. Absent cells, empty cells and the NULL sentinel all
// omit the column from the result. The field count must match the declared
// column count exactly.
func ParseLine(line string, lineNo int, cols []schema.Column) (map[string]any, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != len(cols) {
		return nil, &ParseError{
			Line: lineNo,
			Err:  fmt.Errorf("expected %d fields, got %d", len(cols), len(fields)),
		}
	}
	row := make(map[string]any, len(cols))
	for i, c := range cols {
		raw := strings.TrimSpace(fields[i])
		if raw == "" || raw == Null {
			continue
		}
		v, err := ParseValue(raw, c)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Column: c.Name, Value: raw, Err: err}
		}
		row[c.Name] = v
	}
	return row, nil
}

// ParseValue converts a single non-null cell according to the column kind.
// Array columns yield []string with NULL elements and duplicates dropped.
func ParseValue(raw string, c schema.Column) (any, error) {
	if c.Array {
		return SplitList(raw), nil
	}
	switch c.Kind {
	case schema.Int:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse int: %w", err)
		}
		return n, nil
	case schema.Float:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			// Some extracts carry a decimal comma.
			f, err = strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
			if err != nil {
				return nil, fmt.Errorf("parse float: %w", err)
			}
		}
		return f, nil
	case schema.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("parse bool: %w", err)
		}
		return b, nil
	case schema.JSON:
		normalized, err := normalizeJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		return normalized, nil
	default:
		return raw, nil
	}
}

// Render writes a row back into its tab-separated form, the inverse of
// ParseLine: absent columns render as NULL, arrays join with semicolons.
func Render(row map[string]any, cols []schema.Column) string {
	fields := make([]string, len(cols))
	for i, c := range cols {
		v, ok := row[c.Name]
		if !ok || v == nil {
			fields[i] = Null
			continue
		}
		fields[i] = FormatValue(v)
	}
	return strings.Join(fields, "\t")
}

// FormatValue renders a single value. Empty arrays render as NULL.
func FormatValue(v any) string {
	switch val := v.(type) {
	case []string:
		if len(val) == 0 {
			return Null
		}
		return JoinList(val)
	case string:
		if val == "" {
			return Null
		}
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

// SplitList splits a semicolon-separated cell, dropping empty and NULL
// elements and collapsing duplicates while preserving first-seen order.
func SplitList(raw string) []string {
	parts := strings.Split(raw, ListSep)
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || p == Null {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// JoinList renders list elements into a semicolon-separated cell.
func JoinList(vals []string) string {
	return strings.Join(vals, ListSep)
}

func normalizeJSON(raw string) (string, error) {
	// Extracts sometimes serialize JSON with single quotes.
	candidate := raw
	var doc any
	if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
		candidate = strings.ReplaceAll(raw, "'", "\"")
		if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
			return "", err
		}
	}
	normalized, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(normalized), nil
}
