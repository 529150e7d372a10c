package schema

import (
	"bufio"
	"fmt"
	"strings"
)

// Dialect selects the SQL flavor for generated DDL.
type Dialect int

const (
	// Postgres DDL uses TEXT/BIGINT/DOUBLE PRECISION and NULLS NOT DISTINCT
	// unique indexes for nullable composite keys.
	Postgres Dialect = iota
	// SQLite DDL sticks to TEXT/INTEGER/REAL.
	SQLite
)

// DDL renders create-if-not-exists statements for every registered table in
// load order. Array columns are persisted as TEXT (semicolon-joined); the
// stores own that encoding.
func DDL(r Registry, d Dialect) string {
	var b strings.Builder
	for _, name := range r.Names() {
		t := r[name]
		writeTableDDL(&b, t, d)
	}
	return b.String()
}

func writeTableDDL(b *strings.Builder, t Table, d Dialect) {
	fmt.Fprintf(b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)
	for i, c := range t.Columns {
		fmt.Fprintf(b, "    %s %s", c.Name, sqlType(c, d))
		if c.Key && !t.NullableKey {
			b.WriteString(" NOT NULL")
		}
		if i < len(t.Columns)-1 || len(t.Refs) > 0 || !t.NullableKey {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	if !t.NullableKey {
		fmt.Fprintf(b, "    PRIMARY KEY (%s)", strings.Join(t.KeyColumns(), ", "))
		if len(t.Refs) > 0 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	for i, ref := range t.Refs {
		fmt.Fprintf(b, "    FOREIGN KEY (%s) REFERENCES %s (%s)", ref.Column, ref.ParentTable, ref.ParentColumn)
		if i < len(t.Refs)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(");\n")
	if t.NullableKey {
		// Uniqueness over the full tuple, null members included.
		switch d {
		case Postgres:
			fmt.Fprintf(b, "CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_key ON %s (%s) NULLS NOT DISTINCT;\n",
				t.Name, t.Name, strings.Join(t.KeyColumns(), ", "))
		case SQLite:
			cols := make([]string, len(t.KeyColumns()))
			for i, k := range t.KeyColumns() {
				cols[i] = fmt.Sprintf("coalesce(%s, '')", k)
			}
			fmt.Fprintf(b, "CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_key ON %s (%s);\n",
				t.Name, t.Name, strings.Join(cols, ", "))
		}
	}
}

func sqlType(c Column, d Dialect) string {
	if c.Array {
		return "TEXT"
	}
	switch c.Kind {
	case Int:
		if d == Postgres {
			return "BIGINT"
		}
		return "INTEGER"
	case Float:
		if d == Postgres {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case Bool:
		if d == Postgres {
			return "BOOLEAN"
		}
		return "INTEGER"
	default:
		return "TEXT"
	}
}

// SplitStatements splits a semicolon-terminated DDL script into executable
// statements, dropping blank lines and single-line comments.
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}
	return stmts
}
