// Package migrate wraps golang-migrate for the catalog schema
// it is parameterized by the same PG URL the store opens so there is one source of truth
package migrate

import (
	"errors"
	"strings"
	"time"

	gm "github.com/golang-migrate/migrate/v4"

	// pgx/v5 database driver and file source for golang-migrate
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	perr "libris/internal/platform/errors"
	"libris/internal/platform/logger"
)

// Config for the migrator
type Config struct {
	// URL is the postgres connection string (same value as SERVICE_PGSQL_DBURL)
	URL string
	// Dir is the directory holding the *.up.sql / *.down.sql files
	Dir string
	// LockTimeout bounds how long a single migration step may run; 0 means no bound
	LockTimeout time.Duration
}

// Migrator drives schema migrations up and down
type Migrator struct {
	m   *gm.Migrate
	log logger.Logger
}

// New opens the source dir and the database and returns a ready Migrator
func New(cfg Config, log logger.Logger) (*Migrator, error) {
	if cfg.URL == "" {
		return nil, perr.InvalidArgf("migrate: empty database url")
	}
	if cfg.Dir == "" {
		return nil, perr.InvalidArgf("migrate: empty migrations dir")
	}

	m, err := gm.New("file://"+cfg.Dir, PGXURL(cfg.URL))
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeDB, "migrate: open %q", cfg.Dir)
	}
	if cfg.LockTimeout > 0 {
		m.LockTimeout = cfg.LockTimeout
	}
	return &Migrator{m: m, log: log}, nil
}

// PGXURL rewrites a postgres scheme to the pgx5 scheme golang-migrate registers
// postgres:// and postgresql:// are both accepted; anything else passes through
func PGXURL(u string) string {
	switch {
	case strings.HasPrefix(u, "postgres://"):
		return "pgx5://" + strings.TrimPrefix(u, "postgres://")
	case strings.HasPrefix(u, "postgresql://"):
		return "pgx5://" + strings.TrimPrefix(u, "postgresql://")
	default:
		return u
	}
}

// Up applies all pending migrations; no pending migrations is not an error
func (g *Migrator) Up() error {
	if err := g.m.Up(); err != nil && !errors.Is(err, gm.ErrNoChange) {
		return perr.Wrapf(err, perr.ErrorCodeDB, "migrate up")
	}
	g.logVersion("up")
	return nil
}

// Down rolls back every applied migration
func (g *Migrator) Down() error {
	if err := g.m.Down(); err != nil && !errors.Is(err, gm.ErrNoChange) {
		return perr.Wrapf(err, perr.ErrorCodeDB, "migrate down")
	}
	g.logVersion("down")
	return nil
}

// Steps applies n migrations forward (n > 0) or backward (n < 0)
func (g *Migrator) Steps(n int) error {
	if n == 0 {
		return nil
	}
	if err := g.m.Steps(n); err != nil && !errors.Is(err, gm.ErrNoChange) {
		return perr.Wrapf(err, perr.ErrorCodeDB, "migrate steps %d", n)
	}
	g.logVersion("steps")
	return nil
}

// Version reports the current schema version and whether it is dirty
// a pristine database reports version 0, not an error
func (g *Migrator) Version() (uint, bool, error) {
	v, dirty, err := g.m.Version()
	if errors.Is(err, gm.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, perr.Wrapf(err, perr.ErrorCodeDB, "migrate version")
	}
	return v, dirty, nil
}

// Force stamps the schema version without running anything
// use only to recover from a dirty state
func (g *Migrator) Force(v int) error {
	if err := g.m.Force(v); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeDB, "migrate force %d", v)
	}
	return nil
}

// Close releases the source and database handles
func (g *Migrator) Close() error {
	srcErr, dbErr := g.m.Close()
	if srcErr != nil {
		return perr.Wrapf(srcErr, perr.ErrorCodeDB, "migrate close source")
	}
	if dbErr != nil {
		return perr.Wrapf(dbErr, perr.ErrorCodeDB, "migrate close db")
	}
	return nil
}

func (g *Migrator) logVersion(op string) {
	v, dirty, err := g.m.Version()
	if err != nil && !errors.Is(err, gm.ErrNilVersion) {
		return
	}
	g.log.Info().Str("op", op).Uint("version", v).Bool("dirty", dirty).Msg("schema migrated")
}
