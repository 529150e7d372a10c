package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"testing"

	"biokb/internal/schema"
	"biokb/internal/store"
	"biokb/internal/store/postgres"
	"biokb/internal/store/postgres/testutil"
)

func testRegistry() schema.Registry {
	return schema.Registry{
		"parent": {
			Name: "parent",
			Columns: []schema.Column{
				{Name: "id", Key: true},
				{Name: "label"},
				{Name: "tags", Array: true},
				{Name: "count", Kind: schema.Int},
			},
		},
		"child": {
			Name: "child",
			Columns: []schema.Column{
				{Name: "id", Key: true},
				{Name: "parent_id"},
			},
			Refs: []schema.Reference{
				{Column: "parent_id", ParentTable: "parent", ParentColumn: "id"},
			},
		},
	}
}

func newStubStore(t *testing.T) (*postgres.Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := postgres.OverrideSQLOpen(func(string, string) (*sql.DB, error) {
		return db, nil
	})
	t.Cleanup(restore)
	s, err := postgres.New("", testRegistry())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, conn
}

func TestNewAppliesRegistryDDL(t *testing.T) {
	_, conn := newStubStore(t)

	var creates int
	for _, q := range conn.Execs {
		if strings.HasPrefix(strings.TrimSpace(q), "CREATE TABLE IF NOT EXISTS") {
			creates++
		}
	}
	if creates != 2 {
		t.Fatalf("create table statements = %d, want 2", creates)
	}
}

func TestNewReportsConnectionError(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := postgres.OverrideSQLOpen(func(string, string) (*sql.DB, error) {
		return db, nil
	})
	defer restore()

	_, err := postgres.New("", testRegistry())
	var connErr *store.StoreConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("err = %v, want StoreConnectionError", err)
	}
	if connErr.Backend != "postgres" {
		t.Fatalf("backend = %q, want postgres", connErr.Backend)
	}
}

func TestMutateInsertsThenUpdates(t *testing.T) {
	s, _ := newStubStore(t)
	ctx := context.Background()
	key := store.Key{"p1"}

	outcome, err := s.Mutate(ctx, "parent", key, func(_ store.Row, found bool) (store.Row, error) {
		if found {
			t.Fatal("row reported present before first write")
		}
		return store.Row{"id": "p1", "label": "first", "tags": []string{"a", "b"}, "count": int64(1)}, nil
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if outcome != store.Inserted {
		t.Fatalf("outcome = %v, want Inserted", outcome)
	}

	outcome, err = s.Mutate(ctx, "parent", key, func(existing store.Row, found bool) (store.Row, error) {
		if !found {
			t.Fatal("row missing on second mutate")
		}
		if !reflect.DeepEqual(existing["tags"], []string{"a", "b"}) {
			t.Fatalf("tags round trip = %v", existing["tags"])
		}
		existing["label"] = "second"
		existing["tags"] = []string{"a", "b", "c"}
		return existing, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if outcome != store.Updated {
		t.Fatalf("outcome = %v, want Updated", outcome)
	}

	row, found, err := s.Get(ctx, "parent", key)
	if err != nil || !found {
		t.Fatalf("get: row=%v found=%v err=%v", row, found, err)
	}
	if row["label"] != "second" {
		t.Fatalf("label = %v, want second", row["label"])
	}
	if !reflect.DeepEqual(row["tags"], []string{"a", "b", "c"}) {
		t.Fatalf("tags = %v", row["tags"])
	}
}

func TestMutateMapsForeignKeyViolations(t *testing.T) {
	s, conn := newStubStore(t)
	conn.FKViolations = map[string]int{"child": 1}

	_, err := s.Mutate(context.Background(), "child", store.Key{"c1"}, func(_ store.Row, _ bool) (store.Row, error) {
		return store.Row{"id": "c1", "parent_id": "missing"}, nil
	})
	var refErr *store.ReferentialIntegrityError
	if !errors.As(err, &refErr) {
		t.Fatalf("err = %v, want ReferentialIntegrityError", err)
	}
	if refErr.Table != "child" {
		t.Fatalf("table = %q, want child", refErr.Table)
	}
}

func TestMutateRetriesLostInsertRace(t *testing.T) {
	s, conn := newStubStore(t)
	conn.UniqueViolations = map[string]int{"parent": 1}

	outcome, err := s.Mutate(context.Background(), "parent", store.Key{"p1"}, func(_ store.Row, _ bool) (store.Row, error) {
		return store.Row{"id": "p1", "label": "won"}, nil
	})
	if err != nil {
		t.Fatalf("mutate after race: %v", err)
	}
	if outcome != store.Inserted {
		t.Fatalf("outcome = %v, want Inserted", outcome)
	}
	if n := len(conn.Tables["parent"]); n != 1 {
		t.Fatalf("stored rows = %d, want 1", n)
	}
}

func TestNullableKeyMembersMatchWithIsNull(t *testing.T) {
	reg := schema.Registry{
		"xref": {
			Name:        "xref",
			NullableKey: true,
			Columns: []schema.Column{
				{Name: "a", Key: true},
				{Name: "b", Key: true},
			},
		},
	}
	db, _ := testutil.NewStubDB()
	restore := postgres.OverrideSQLOpen(func(string, string) (*sql.DB, error) {
		return db, nil
	})
	defer restore()
	s, err := postgres.New("", reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	key := store.Key{"a1", ""}

	if _, err := s.Mutate(ctx, "xref", key, func(_ store.Row, found bool) (store.Row, error) {
		if found {
			t.Fatal("row reported present before first write")
		}
		return store.Row{"a": "a1"}, nil
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	outcome, err := s.Mutate(ctx, "xref", key, func(existing store.Row, found bool) (store.Row, error) {
		if !found {
			t.Fatal("null key member did not address the stored row")
		}
		return existing, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if outcome != store.Updated {
		t.Fatalf("outcome = %v, want Updated", outcome)
	}
}
