package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"biokb/internal/schema"
	"biokb/internal/store"
)

func testRegistry() schema.Registry {
	return schema.Registry{
		"parent": {
			Name: "parent",
			Columns: []schema.Column{
				{Name: "id", Key: true},
				{Name: "label"},
				{Name: "tags", Array: true},
				{Name: "score", Kind: schema.Float},
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

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"), testRegistry())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMutateInsertsThenUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := store.Key{"p1"}

	outcome, err := s.Mutate(ctx, "parent", key, func(_ store.Row, found bool) (store.Row, error) {
		if found {
			t.Fatal("row reported present before first write")
		}
		return store.Row{"id": "p1", "label": "first", "tags": []string{"x", "y"}, "score": 1.5, "count": int64(2)}, nil
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
		if !reflect.DeepEqual(existing["tags"], []string{"x", "y"}) {
			t.Fatalf("tags round trip = %v", existing["tags"])
		}
		if existing["score"] != 1.5 || existing["count"] != int64(2) {
			t.Fatalf("scalar round trip = %v", existing)
		}
		existing["label"] = "second"
		existing["tags"] = []string{"x", "y", "z"}
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
	if !reflect.DeepEqual(row["tags"], []string{"x", "y", "z"}) {
		t.Fatalf("tags = %v", row["tags"])
	}
}

func TestMutateMapsForeignKeyViolations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Mutate(ctx, "child", store.Key{"c1"}, func(_ store.Row, _ bool) (store.Row, error) {
		return store.Row{"id": "c1", "parent_id": "missing"}, nil
	})
	var refErr *store.ReferentialIntegrityError
	if !errors.As(err, &refErr) {
		t.Fatalf("err = %v, want ReferentialIntegrityError", err)
	}

	if _, err := s.Mutate(ctx, "parent", store.Key{"missing"}, func(_ store.Row, _ bool) (store.Row, error) {
		return store.Row{"id": "missing"}, nil
	}); err != nil {
		t.Fatalf("insert parent: %v", err)
	}
	if _, err := s.Mutate(ctx, "child", store.Key{"c1"}, func(_ store.Row, _ bool) (store.Row, error) {
		return store.Row{"id": "c1", "parent_id": "missing"}, nil
	}); err != nil {
		t.Fatalf("insert child after parent: %v", err)
	}
}

func TestMutateErrorRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := store.Key{"p1"}
	if _, err := s.Mutate(ctx, "parent", key, func(_ store.Row, _ bool) (store.Row, error) {
		return store.Row{"id": "p1", "label": "kept"}, nil
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	boom := errors.New("boom")
	if _, err := s.Mutate(ctx, "parent", key, func(_ store.Row, _ bool) (store.Row, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	row, _, err := s.Get(ctx, "parent", key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row["label"] != "kept" {
		t.Fatalf("label = %v, want kept", row["label"])
	}
}

func TestConcurrentSameKeyMutationsSerialize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := store.Key{"p1"}
	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Mutate(ctx, "parent", key, func(existing store.Row, found bool) (store.Row, error) {
				if !found {
					return store.Row{"id": "p1", "count": int64(1)}, nil
				}
				existing["count"] = existing["count"].(int64) + 1
				return existing, nil
			})
			if err != nil {
				t.Errorf("mutate: %v", err)
			}
		}()
	}
	wg.Wait()

	row, _, err := s.Get(ctx, "parent", key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row["count"] != int64(workers) {
		t.Fatalf("count = %v, want %d", row["count"], workers)
	}
}

func TestReopenSeesPersistedRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	ctx := context.Background()

	s, err := New(path, testRegistry())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Mutate(ctx, "parent", store.Key{"p1"}, func(_ store.Row, _ bool) (store.Row, error) {
		return store.Row{"id": "p1", "label": "durable"}, nil
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	again, err := New(path, testRegistry())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = again.Close() }()
	row, found, err := again.Get(ctx, "parent", store.Key{"p1"})
	if err != nil || !found {
		t.Fatalf("get after reopen: row=%v found=%v err=%v", row, found, err)
	}
	if row["label"] != "durable" {
		t.Fatalf("label = %v, want durable", row["label"])
	}
}
