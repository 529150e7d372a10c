package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"biokb/internal/schema"
	"biokb/internal/store"
	"biokb/internal/tsv"
)

// Load streams a TSV body into tableName. The body carries the table's
// declared columns in order, minus any columns named in fixed; fixed values
// are parsed per their declared kind and attached identically to every row
// (one file = one column value for all its rows). Malformed lines are
// skipped, logged and counted; they never abort the batch.
func (e *Engine) Load(ctx context.Context, tableName string, r io.Reader, fixed map[string]string) (Summary, error) {
	table, err := e.tables.Lookup(tableName)
	if err != nil {
		return Summary{Table: tableName}, err
	}

	bodyCols, fixedValues, err := splitColumns(table, fixed)
	if err != nil {
		return Summary{Table: tableName}, err
	}

	summary := Summary{Table: tableName}
	derived := make(map[string]*Summary)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		row, err := tsv.ParseLine(line, lineNo, bodyCols)
		if err != nil {
			var parseErr *tsv.ParseError
			if errors.As(err, &parseErr) {
				summary.Skipped++
				e.metrics.Record(table.Name, "skipped")
				e.log.Warn("line skipped", "table", table.Name, "reason", parseErr.Error())
				continue
			}
			return summary, err
		}
		for name, v := range fixedValues {
			row[name] = v
		}
		if err := e.applyRow(ctx, table, store.Row(row), &summary, derived); err != nil {
			return summary, err
		}
	}
	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("read %s body: %w", tableName, err)
	}
	summary.Derived = derivedSummaries(table, derived)
	e.log.Info("load done",
		"table", summary.Table,
		"inserted", summary.Inserted,
		"merged", summary.Merged,
		"skipped", summary.Skipped)
	return summary, nil
}

// splitColumns partitions the declared columns into the TSV body layout and
// the parsed fixed values. Every fixed name must be a declared column.
func splitColumns(table schema.Table, fixed map[string]string) ([]schema.Column, map[string]any, error) {
	values := make(map[string]any, len(fixed))
	body := make([]schema.Column, 0, len(table.Columns))
	for _, c := range table.Columns {
		raw, ok := fixed[c.Name]
		if !ok {
			body = append(body, c)
			continue
		}
		v, err := tsv.ParseValue(raw, c)
		if err != nil {
			return nil, nil, fmt.Errorf("fixed value for %s.%s: %w", table.Name, c.Name, err)
		}
		values[c.Name] = v
	}
	if len(values) != len(fixed) {
		for name := range fixed {
			if _, ok := table.Column(name); !ok {
				return nil, nil, fmt.Errorf("fixed value names undeclared column %s.%s", table.Name, name)
			}
		}
	}
	return body, values, nil
}
