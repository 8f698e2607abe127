//go:build integration_pg
// +build integration_pg

package repokit

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	perr "libris/internal/platform/errors"
	"libris/internal/platform/store"

	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres launches a disposable Postgres and returns DSN + stop func
func startPostgres(t *testing.T) (dsn string, stop func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections"),
		).WithDeadline(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		cancel()
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get container host: %v", err)
	}
	mp, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get mapped port: %v", err)
	}

	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/postgres?sslmode=disable", host, mp.Port())
	stop = func() {
		_ = c.Terminate(context.Background())
		cancel()
	}
	return dsn, stop
}

func openTestStore(t *testing.T, ctx context.Context, dsn string) *store.Store {
	t.Helper()
	s, err := store.Open(ctx, store.Config{
		PG: store.PGConfig{Enabled: true, URL: dsn, MaxConns: 2},
	}, store.WithLogger(zerolog.New(io.Discard)))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func createAuthorsTable(t *testing.T, ctx context.Context, q Queryer) {
	t.Helper()
	if _, err := q.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS authors (
			id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
			name       TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`); err != nil {
		t.Fatalf("create authors table: %v", err)
	}
	if _, err := q.Exec(ctx, `TRUNCATE authors`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func TestSQLRepo_Integration_CRUDAndFilters(t *testing.T) {
	dsn, stop := startPostgres(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	s := openTestStore(t, ctx, dsn)
	createAuthorsTable(t, ctx, s.PG)

	r, err := NewSQL[author](s.PG, "authors")
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}

	agatha, err := r.Add(ctx, author{Name: "Agatha Christie"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if agatha.ID == "" || agatha.CreatedAt.IsZero() {
		t.Fatalf("server defaults not reflected: %+v", agatha)
	}

	if _, err := r.Add(ctx, author{Name: "Leo Tolstoy"}); err != nil {
		t.Fatalf("Add second: %v", err)
	}

	// unique violation maps to a duplicate key error
	_, err = r.Add(ctx, author{Name: "Agatha Christie"})
	if !perr.IsCode(err, perr.ErrorCodeDuplicateKey) {
		t.Fatalf("duplicate insert should conflict, got %v", err)
	}

	got, err := r.Get(ctx, agatha.ID, nil)
	if err != nil || got.Name != "Agatha Christie" {
		t.Fatalf("Get: %+v %v", got, err)
	}

	// case-insensitive search
	hits, err := r.List(ctx, nil, SearchFilter{Field: "name", Value: "GATH", IgnoreCase: true})
	if err != nil || len(hits) != 1 || hits[0].Name != "Agatha Christie" {
		t.Fatalf("search: %+v %v", hits, err)
	}
	misses, err := r.List(ctx, nil, SearchFilter{Field: "name", Value: "GATH"})
	if err != nil || len(misses) != 0 {
		t.Fatalf("case-sensitive search: %+v %v", misses, err)
	}

	// pagination excluded from count
	items, total, err := r.ListAndCount(ctx, nil, LimitOffset{Limit: 1, Offset: 0})
	if err != nil {
		t.Fatalf("ListAndCount: %v", err)
	}
	if len(items) != 1 || total != 2 {
		t.Fatalf("items=%d total=%d", len(items), total)
	}

	// update preserves created_at, restamps updated_at
	got.Name = "A. Christie"
	updated, err := r.Update(ctx, got)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !updated.CreatedAt.Equal(got.CreatedAt) {
		t.Fatalf("created_at changed: %v -> %v", got.CreatedAt, updated.CreatedAt)
	}
	if !updated.UpdatedAt.After(got.UpdatedAt) {
		t.Fatalf("updated_at did not advance: %v -> %v", got.UpdatedAt, updated.UpdatedAt)
	}

	// delete_many tolerates missing ids
	deleted, err := r.DeleteMany(ctx, []any{agatha.ID, "00000000-0000-0000-0000-000000000000"})
	if err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
	if len(deleted) != 1 {
		t.Fatalf("DeleteMany returned %d rows", len(deleted))
	}

	n, err := r.Count(ctx, nil)
	if err != nil || n != 1 {
		t.Fatalf("count after delete: %d %v", n, err)
	}
}
