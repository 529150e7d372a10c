package blob

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	return map[string]Store{
		"fs":     fsStore,
		"memory": NewMemory(),
	}
}

func TestPutGetHeadDeleteAcrossBackends(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			body := "g1\t1.5\n"
			info, err := s.Put(ctx, "extracts/expression/a.tsv", strings.NewReader(body), PutOptions{
				ContentType: "text/tab-separated-values",
				Metadata:    map[string]string{"table": "expression"},
			})
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if info.Size != int64(len(body)) || info.ETag == "" {
				t.Fatalf("info = %+v", info)
			}

			got, rc, err := s.Get(ctx, "extracts/expression/a.tsv")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			data, err := io.ReadAll(rc)
			_ = rc.Close()
			if err != nil || string(data) != body {
				t.Fatalf("read = %q err=%v", data, err)
			}
			if got.Metadata["table"] != "expression" {
				t.Fatalf("metadata = %v", got.Metadata)
			}

			head, err := s.Head(ctx, "extracts/expression/a.tsv")
			if err != nil || head.ETag != info.ETag {
				t.Fatalf("head = %+v err=%v", head, err)
			}

			existed, err := s.Delete(ctx, "extracts/expression/a.tsv")
			if err != nil || !existed {
				t.Fatalf("delete: existed=%v err=%v", existed, err)
			}
			existed, err = s.Delete(ctx, "extracts/expression/a.tsv")
			if err != nil || existed {
				t.Fatalf("second delete: existed=%v err=%v", existed, err)
			}
		})
	}
}

func TestPutIsCreateOnly(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Put(ctx, "k", strings.NewReader("one"), PutOptions{}); err != nil {
				t.Fatalf("put: %v", err)
			}
			if _, err := s.Put(ctx, "k", strings.NewReader("two"), PutOptions{}); err == nil {
				t.Fatal("second put should fail")
			}
		})
	}
}

func TestListFiltersByPrefix(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"extracts/uniprot/a", "extracts/kegg/b", "extracts/uniprot/c"} {
				if _, err := s.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err != nil {
					t.Fatalf("put %s: %v", key, err)
				}
			}
			infos, err := s.List(ctx, "extracts/uniprot/")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(infos) != 2 {
				t.Fatalf("list = %d entries, want 2", len(infos))
			}
			if infos[0].Key != "extracts/uniprot/a" || infos[1].Key != "extracts/uniprot/c" {
				t.Fatalf("keys = %v, %v", infos[0].Key, infos[1].Key)
			}
		})
	}
}

func TestFilesystemRejectsTraversalKeys(t *testing.T) {
	s, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	for _, key := range []string{"", "../escape", "/absolute"} {
		if _, err := s.Put(context.Background(), key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("key %q accepted", key)
		}
	}
}

func TestPresignOnlySupportsGet(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Put(ctx, "k", strings.NewReader("x"), PutOptions{}); err != nil {
				t.Fatalf("put: %v", err)
			}
			if _, err := s.PresignURL(ctx, "k", SignedURLOptions{Method: "PUT"}); err != ErrUnsupported {
				t.Fatalf("err = %v, want ErrUnsupported", err)
			}
			u, err := s.PresignURL(ctx, "k", SignedURLOptions{})
			if err != nil || u == "" {
				t.Fatalf("presign: url=%q err=%v", u, err)
			}
		})
	}
}

func TestArchiveKeyShape(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	got := ArchiveKey("uniprot", "/data/uniprot_ids.tsv", now)
	if want := "extracts/uniprot/20260304T050607Z-uniprot_ids.tsv"; got != want {
		t.Fatalf("key = %q, want %q", got, want)
	}
	if got := ArchiveKey("kegg", "-", now); got != "extracts/kegg/20260304T050607Z-stdin.tsv" {
		t.Fatalf("stdin key = %q", got)
	}
}

func TestArchiveStoresExtract(t *testing.T) {
	s := NewMemory()
	info, err := Archive(context.Background(), s, "kegg", "kegg_ids.tsv", strings.NewReader("sml:x\n"))
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !strings.HasPrefix(info.Key, "extracts/kegg/") || !strings.HasSuffix(info.Key, "-kegg_ids.tsv") {
		t.Fatalf("key = %q", info.Key)
	}
	if info.ContentType != "text/tab-separated-values" {
		t.Fatalf("content type = %q", info.ContentType)
	}
}
