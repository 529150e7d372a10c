// Package testutil provides a stub database/sql driver emulating enough of
// Postgres for store tests: per-table row storage, key-predicate matching
// and injectable SQLSTATE failures.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgconn"
)

var stubSeq atomic.Int64

// StubConn records executed statements and holds table contents for the
// postgres store during tests.
type StubConn struct {
	Execs  []string
	Tables map[string][]map[string]any

	FailPing   bool
	FailExec   bool
	FailCommit bool

	// FKViolations injects a SQLSTATE 23503 on inserts into the named table,
	// decremented per hit.
	FKViolations map[string]int
	// UniqueViolations injects a SQLSTATE 23505 on inserts into the named
	// table, decremented per hit.
	UniqueViolations map[string]int
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	upper := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(upper, "INSERT INTO"):
		return c.execInsert(query, args)
	case strings.HasPrefix(upper, "UPDATE "):
		return c.execUpdate(query, args)
	default:
		return driver.RowsAffected(0), nil
	}
}

func (c *StubConn) execInsert(query string, args []driver.NamedValue) (driver.Result, error) {
	table, cols, err := parseInsert(query)
	if err != nil {
		return nil, err
	}
	if n := c.UniqueViolations[table]; n > 0 {
		c.UniqueViolations[table] = n - 1
		return nil, &pgconn.PgError{Code: "23505", TableName: table}
	}
	if n := c.FKViolations[table]; n > 0 {
		c.FKViolations[table] = n - 1
		return nil, &pgconn.PgError{Code: "23503", TableName: table}
	}
	if len(cols) != len(args) {
		return nil, fmt.Errorf("column/arg mismatch for %s", table)
	}
	row := make(map[string]any, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	c.Tables[table] = append(c.Tables[table], row)
	return driver.RowsAffected(1), nil
}

func (c *StubConn) execUpdate(query string, args []driver.NamedValue) (driver.Result, error) {
	table, sets, where, err := parseUpdate(query)
	if err != nil {
		return nil, err
	}
	affected := int64(0)
	for _, row := range c.Tables[table] {
		if !matchWhere(row, where, args) {
			continue
		}
		for col, ref := range sets {
			row[col] = args[ref-1].Value
		}
		affected++
	}
	return driver.RowsAffected(affected), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	table, cols, where, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	var values [][]driver.Value
	for _, row := range c.Tables[table] {
		if where != "" && !matchWhere(row, where, args) {
			continue
		}
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: cols, rows: values}, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}

func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

// matchWhere evaluates an AND-joined predicate of "col = $n" and
// "col IS NULL" terms against one row. The parsers hand the clause over
// already lowercased.
func matchWhere(row map[string]any, where string, args []driver.NamedValue) bool {
	for _, part := range strings.Split(where, " and ") {
		part = strings.TrimSpace(part)
		if col, ok := strings.CutSuffix(part, " is null"); ok {
			if row[strings.TrimSpace(col)] != nil {
				return false
			}
			continue
		}
		col, ref, ok := strings.Cut(part, " = $")
		if !ok {
			return false
		}
		n, err := strconv.Atoi(strings.TrimSpace(ref))
		if err != nil || n < 1 || n > len(args) {
			return false
		}
		if row[strings.TrimSpace(col)] != args[n-1].Value {
			return false
		}
	}
	return true
}

func parseInsert(query string) (string, []string, error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	if intoIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[intoIdx+len("INTO "):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:open]))
	cols := splitColumns(rest[open+1 : closeIdx])
	return table, cols, nil
}

// parseUpdate returns the table, the set column → placeholder ordinal map
// and the raw WHERE clause.
func parseUpdate(query string) (string, map[string]int, string, error) {
	lower := strings.ToLower(query)
	rest, ok := strings.CutPrefix(lower, "update ")
	if !ok {
		return "", nil, "", fmt.Errorf("cannot parse update: %s", query)
	}
	table, rest, ok := strings.Cut(rest, " set ")
	if !ok {
		return "", nil, "", fmt.Errorf("cannot parse update: %s", query)
	}
	setPart, where, _ := strings.Cut(rest, " where ")
	sets := make(map[string]int)
	for _, assign := range strings.Split(setPart, ",") {
		col, ref, ok := strings.Cut(strings.TrimSpace(assign), " = $")
		if !ok {
			return "", nil, "", fmt.Errorf("cannot parse update assignment: %s", assign)
		}
		n, err := strconv.Atoi(strings.TrimSpace(ref))
		if err != nil {
			return "", nil, "", fmt.Errorf("cannot parse update ordinal: %s", assign)
		}
		sets[strings.TrimSpace(col)] = n
	}
	return strings.TrimSpace(table), sets, strings.TrimSpace(where), nil
}

// parseSelect returns the table, selected columns and the raw WHERE clause
// with any FOR UPDATE suffix removed.
func parseSelect(query string) (string, []string, string, error) {
	lower := strings.ToLower(query)
	rest, ok := strings.CutPrefix(lower, "select ")
	if !ok {
		return "", nil, "", fmt.Errorf("cannot parse select: %s", query)
	}
	colPart, rest, ok := strings.Cut(rest, " from ")
	if !ok {
		return "", nil, "", fmt.Errorf("cannot parse select: %s", query)
	}
	table, where, _ := strings.Cut(rest, " where ")
	where = strings.TrimSuffix(strings.TrimSpace(where), "for update")
	return strings.TrimSpace(strings.Fields(table)[0]), splitColumns(colPart), strings.TrimSpace(where), nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
