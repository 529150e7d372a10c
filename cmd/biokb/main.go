// Command biokb builds and maintains the knowledge base: match-ids
// reconciles identifier extracts into the cross-reference table, upsert
// merges table extracts into the configured database.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"

	"biokb/internal/blob"
	"biokb/internal/engine"
	"biokb/internal/ident"
	"biokb/internal/metrics"
	"biokb/internal/schema"
	"biokb/internal/store"
	"biokb/internal/store/postgres"
	"biokb/internal/store/sqlite"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const envDSN = "BIOKB_DB_DSN"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "match-ids":
		return runMatchIDs(args[1:], stdin, stdout, stderr)
	case "upsert":
		return runUpsert(args[1:], stdin, stdout, stderr)
	case "tables":
		return runTables(stdout)
	case "-h", "--help", "help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `usage: biokb <command> [options]

Commands:
  match-ids <uniprot> <refseq> <kegg>  reconcile identifier extracts
  upsert <table> [file]                merge a TSV extract into a table
  tables                               list registered tables

Run "biokb <command> -h" for command options.
`)
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

func openStore(dsn string) (store.RowStore, error) {
	if dsn == "" {
		dsn = os.Getenv(envDSN)
	}
	if dsn == "" {
		return nil, fmt.Errorf("no database configured: pass -db or set %s", envDSN)
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return postgres.New(dsn, schema.Tables)
	}
	return sqlite.New(dsn, schema.Tables)
}

func openInput(path string, stdin io.Reader) (io.Reader, func() error, error) {
	if path == "" || path == "-" {
		return stdin, func() error { return nil }, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// serveMetrics exposes Prometheus and expvar endpoints for long-running
// loads. Errors only surface in logs; metrics must never fail a load.
func serveMetrics(addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("metrics listener stopped", "addr", addr, "error", err)
		}
	}()
}

func runMatchIDs(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("match-ids", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		dsn      = fs.String("db", "", "database DSN; when set, rows are upserted into id_mapper instead of printed")
		logLevel = fs.String("log", "info", "log level (debug|info|warn|error)")
		strict   = fs.Bool("strict", false, "exit non-zero when any row was skipped")
	)
	fs.Usage = func() {
		fmt.Fprint(stderr, "usage: biokb match-ids [options] <uniprot> <refseq> <kegg>\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 3 {
		fs.Usage()
		return 2
	}
	log, err := newLogger(stderr, *logLevel)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	m := ident.NewMatcher(ident.WithLogger(log))
	parsers := []struct {
		path  string
		parse func(io.Reader) error
	}{
		{fs.Arg(0), m.ParseUniprot},
		{fs.Arg(1), m.ParseRefseq},
		{fs.Arg(2), m.ParseKegg},
	}
	for _, p := range parsers {
		r, closeFn, err := openInput(p.path, stdin)
		if err != nil {
			log.Error("open extract", "path", p.path, "error", err)
			return 1
		}
		err = p.parse(r)
		_ = closeFn()
		if err != nil {
			log.Error("parse extract", "path", p.path, "error", err)
			return 1
		}
	}
	rows := m.Rows()

	if *dsn == "" && os.Getenv(envDSN) == "" {
		for _, row := range rows {
			fmt.Fprintln(stdout, row.TSV())
		}
		return 0
	}

	st, err := openStore(*dsn)
	if err != nil {
		log.Error("open store", "error", err)
		return 1
	}
	defer func() { _ = st.Close() }()

	e := engine.New(st, schema.Tables, engine.WithLogger(log), engine.WithMetrics(metrics.NewExpvarRecorder("")))
	batch := make([]store.Row, len(rows))
	for i, row := range rows {
		batch[i] = row.Row()
	}
	summary, err := e.Upsert(context.Background(), "id_mapper", batch)
	if err != nil {
		log.Error("upsert id_mapper", "error", err)
		return 1
	}
	fmt.Fprintln(stdout, summary.String())
	if *strict && summary.SkippedTotal() > 0 {
		return 1
	}
	return 0
}

// fixedValues collects repeated -fixed col=value flags.
type fixedValues map[string]string

func (f fixedValues) String() string {
	parts := make([]string, 0, len(f))
	for k, v := range f {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func (f fixedValues) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected col=value, got %q", s)
	}
	f[name] = value
	return nil
}

func runUpsert(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("upsert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fixed := fixedValues{}
	var (
		dsn         = fs.String("db", "", "database DSN (default $"+envDSN+"); postgres:// selects Postgres, anything else a SQLite path")
		logLevel    = fs.String("log", "info", "log level (debug|info|warn|error)")
		strict      = fs.Bool("strict", false, "exit non-zero when any row was skipped")
		archive     = fs.Bool("archive", false, "archive the extract to the blob store before loading")
		metricsAddr = fs.String("metrics-listen", "", "serve Prometheus metrics on this address during the load")
	)
	fs.Var(fixed, "fixed", "fixed column value col=value attached to every row (repeatable)")
	fs.Usage = func() {
		fmt.Fprint(stderr, "usage: biokb upsert [options] <table> [file]\n\nReads the TSV body from file or stdin.\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		return 2
	}
	tableName := fs.Arg(0)
	path := fs.Arg(1)

	log, err := newLogger(stderr, *logLevel)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	ctx := context.Background()

	var rec metrics.Recorder = metrics.NewExpvarRecorder("")
	if *metricsAddr != "" {
		rec = metrics.NewPrometheusRecorder(nil)
		serveMetrics(*metricsAddr, log)
	}

	input, closeFn, err := openInput(path, stdin)
	if err != nil {
		log.Error("open extract", "path", path, "error", err)
		return 1
	}
	defer func() { _ = closeFn() }()

	if *archive {
		arch, err := blob.Open(ctx)
		if err != nil {
			log.Error("open blob store", "error", err)
			return 1
		}
		// Archiving consumes the reader, so the body is buffered through
		// the blob store and read back for loading.
		info, err := blob.Archive(ctx, arch, tableName, path, input)
		if err != nil {
			log.Error("archive extract", "table", tableName, "error", err)
			return 1
		}
		log.Info("extract archived", "key", info.Key, "bytes", info.Size, "driver", arch.Driver())
		_, rc, err := arch.Get(ctx, info.Key)
		if err != nil {
			log.Error("read archived extract", "key", info.Key, "error", err)
			return 1
		}
		defer func() { _ = rc.Close() }()
		input = rc
	}

	st, err := openStore(*dsn)
	if err != nil {
		log.Error("open store", "error", err)
		return 1
	}
	defer func() { _ = st.Close() }()

	e := engine.New(st, schema.Tables, engine.WithLogger(log), engine.WithMetrics(rec))
	summary, err := e.Load(ctx, tableName, input, fixed)
	if err != nil {
		log.Error("load failed", "table", tableName, "error", err)
		return 1
	}
	fmt.Fprintln(stdout, summary.String())
	if *strict && summary.SkippedTotal() > 0 {
		return 1
	}
	return 0
}

func runTables(stdout io.Writer) int {
	for _, name := range schema.Tables.Names() {
		t := schema.Tables[name]
		fmt.Fprintf(stdout, "%s\tkey=%s\n", name, strings.Join(t.KeyColumns(), ","))
	}
	return 0
}
