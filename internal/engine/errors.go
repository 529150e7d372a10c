package engine

import "fmt"

// MissingKeyError reports an incoming row that lacks a required key column.
// The row is skipped; the batch continues.
type MissingKeyError struct {
	Table  string
	Column string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("engine: %s: missing key column %s", e.Table, e.Column)
}
