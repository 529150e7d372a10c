package memory

import (
	"context"
	"errors"
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
			},
		},
		"child": {
			Name: "child",
			Columns: []schema.Column{
				{Name: "id", Key: true},
				{Name: "parent_id"},
				{Name: "count", Kind: schema.Int},
			},
			Refs: []schema.Reference{
				{Column: "parent_id", ParentTable: "parent", ParentColumn: "id"},
			},
		},
	}
}

func TestMutateInsertsThenUpdates(t *testing.T) {
	s := New(testRegistry())
	ctx := context.Background()
	key := store.Key{"p1"}

	outcome, err := s.Mutate(ctx, "parent", key, func(_ store.Row, found bool) (store.Row, error) {
		if found {
			t.Fatal("row reported present before first write")
		}
		return store.Row{"id": "p1", "label": "first"}, nil
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if outcome != store.Inserted {
		t.Fatalf("outcome = %v, want Inserted", outcome)
	}

	outcome, err = s.Mutate(ctx, "parent", key, func(existing store.Row, found bool) (store.Row, error) {
		if !found || existing["label"] != "first" {
			t.Fatalf("existing = %v, found = %v", existing, found)
		}
		existing["label"] = "second"
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
}

func TestMutateRejectsMissingParent(t *testing.T) {
	s := New(testRegistry())
	ctx := context.Background()

	_, err := s.Mutate(ctx, "child", store.Key{"c1"}, func(_ store.Row, _ bool) (store.Row, error) {
		return store.Row{"id": "c1", "parent_id": "p1"}, nil
	})
	var refErr *store.ReferentialIntegrityError
	if !errors.As(err, &refErr) {
		t.Fatalf("err = %v, want ReferentialIntegrityError", err)
	}
	if refErr.Table != "child" || refErr.Column != "parent_id" || refErr.Value != "p1" {
		t.Fatalf("unexpected violation detail: %+v", refErr)
	}

	if _, err := s.Mutate(ctx, "parent", store.Key{"p1"}, func(_ store.Row, _ bool) (store.Row, error) {
		return store.Row{"id": "p1"}, nil
	}); err != nil {
		t.Fatalf("insert parent: %v", err)
	}
	if _, err := s.Mutate(ctx, "child", store.Key{"c1"}, func(_ store.Row, _ bool) (store.Row, error) {
		return store.Row{"id": "c1", "parent_id": "p1"}, nil
	}); err != nil {
		t.Fatalf("insert child after parent: %v", err)
	}
}

func TestMutateErrorLeavesRowUntouched(t *testing.T) {
	s := New(testRegistry())
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
	s := New(testRegistry())
	ctx := context.Background()
	if _, err := s.Mutate(ctx, "parent", store.Key{"p1"}, func(_ store.Row, _ bool) (store.Row, error) {
		return store.Row{"id": "p1"}, nil
	}); err != nil {
		t.Fatalf("insert parent: %v", err)
	}

	key := store.Key{"c1"}
	const workers = 64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Mutate(ctx, "child", key, func(existing store.Row, found bool) (store.Row, error) {
				if !found {
					return store.Row{"id": "c1", "parent_id": "p1", "count": int64(1)}, nil
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

	row, _, err := s.Get(ctx, "child", key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row["count"] != int64(workers) {
		t.Fatalf("count = %v, want %d", row["count"], workers)
	}
}

func TestMutateHonorsContextCancellation(t *testing.T) {
	s := New(testRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Mutate(ctx, "parent", store.Key{"p1"}, func(_ store.Row, _ bool) (store.Row, error) {
		return store.Row{"id": "p1"}, nil
	}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestGetReturnsCopies(t *testing.T) {
	s := New(testRegistry())
	ctx := context.Background()
	key := store.Key{"p1"}
	if _, err := s.Mutate(ctx, "parent", key, func(_ store.Row, _ bool) (store.Row, error) {
		return store.Row{"id": "p1", "label": "orig"}, nil
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	row, _, _ := s.Get(ctx, "parent", key)
	row["label"] = "mutated"

	again, _, _ := s.Get(ctx, "parent", key)
	if again["label"] != "orig" {
		t.Fatalf("stored row aliased by Get: %v", again)
	}
}
