package store

import "fmt"

// ReferentialIntegrityError reports a write rejected because a declared
// foreign-key parent row does not exist yet. The engine skips the row and
// continues; populating parents first is the caller's responsibility.
type ReferentialIntegrityError struct {
	Table  string
	Column string
	Value  string
}

func (e *ReferentialIntegrityError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("store: %s: foreign key violation", e.Table)
	}
	return fmt.Sprintf("store: %s: no parent row for %s=%q", e.Table, e.Column, e.Value)
}

// StoreConnectionError reports an unreachable or broken backend. It is fatal
// to the run; no row-level recovery applies.
type StoreConnectionError struct {
	Backend string
	Err     error
}

func (e *StoreConnectionError) Error() string {
	return fmt.Sprintf("store: %s connection: %v", e.Backend, e.Err)
}

func (e *StoreConnectionError) Unwrap() error { return e.Err }
