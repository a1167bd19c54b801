// Package testutil gives store tests a disposable Postgres schema with the
// repo's migrations applied.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"adspot-auction/internal/config"
	"adspot-auction/internal/store"
)

var schemaNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// OpenTestStore opens a PGStore whose search_path points at a fresh schema
// holding every up migration. Skips when TEST_POSTGRES_DSN is unset.
func OpenTestStore(t *testing.T) (*store.PGStore, func()) {
	t.Helper()
	cfg, err := config.LoadTest()
	if err != nil {
		t.Skipf("skip postgres store: %v", err)
	}
	ctx := context.Background()
	schema := fmt.Sprintf("%s_%d", cfg.SchemaPrefix, time.Now().UnixNano())
	if err := execOnBase(ctx, cfg.TestPostgresDSN, "CREATE SCHEMA %s", schema); err != nil {
		t.Fatalf("create schema %s: %v", schema, err)
	}

	st, err := store.NewPGStore(ctx, withSearchPath(cfg.TestPostgresDSN, schema))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := migrateUp(ctx, st, cfg.MigrationsDir); err != nil {
		st.Close()
		t.Fatalf("migrate: %v", err)
	}

	cleanup := func() {
		st.Close()
		_ = execOnBase(context.Background(), cfg.TestPostgresDSN, "DROP SCHEMA %s CASCADE", schema)
	}
	return st, cleanup
}

type NamedStore struct {
	Name  string
	Store store.AuctionStore
}

// Stores returns the in-memory store and, when TEST_POSTGRES_DSN is set, a
// Postgres store, so one test body can check both implementations.
func Stores(t *testing.T) []NamedStore {
	t.Helper()
	out := []NamedStore{{Name: "memory", Store: store.NewMemoryStore()}}
	if _, err := config.LoadTest(); err != nil {
		return out
	}
	pg, cleanup := OpenTestStore(t)
	t.Cleanup(cleanup)
	return append(out, NamedStore{Name: "postgres", Store: pg})
}

func execOnBase(ctx context.Context, dsn, format, schema string) error {
	if !schemaNamePattern.MatchString(schema) {
		return fmt.Errorf("schema %q does not match required pattern", schema)
	}
	base, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return err
	}
	defer base.Close()
	_, err = base.Exec(ctx, fmt.Sprintf(format, pgx.Identifier{schema}.Sanitize()))
	return err
}

// migrateUp runs every *.up.sql in name order.
func migrateUp(ctx context.Context, st *store.PGStore, dir string) error {
	if dir == "" {
		found, err := findMigrationsDir()
		if err != nil {
			return err
		}
		dir = found
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no up migrations in %s", dir)
	}
	sort.Strings(files)
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		if _, err := st.Pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(f), err)
		}
	}
	return nil
}

func findMigrationsDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		p := filepath.Join(dir, "migrations")
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return p, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("migrations directory not found")
		}
		dir = parent
	}
}

func withSearchPath(dsn, schema string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "search_path=" + url.QueryEscape(schema)
}
