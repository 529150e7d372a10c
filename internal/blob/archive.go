package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"
)

// ArchiveKey derives the object key for an archived extract:
// extracts/<table>/<UTC timestamp>-<basename>.
func ArchiveKey(table, filename string, now time.Time) string {
	base := path.Base(filename)
	if base == "." || base == "/" || base == "-" {
		base = "stdin.tsv"
	}
	return fmt.Sprintf("extracts/%s/%s-%s", table, now.UTC().Format("20060102T150405Z"), base)
}

// Archive stores one extract body under its derived key and returns the
// blob info.
func Archive(ctx context.Context, s Store, table, filename string, r io.Reader) (Info, error) {
	key := ArchiveKey(table, filename, time.Now())
	return s.Put(ctx, key, r, PutOptions{
		ContentType: "text/tab-separated-values",
		Metadata:    map[string]string{"table": table, "source": path.Base(filename)},
	})
}
