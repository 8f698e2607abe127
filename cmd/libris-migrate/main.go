// Command libris-migrate applies schema migrations for the catalog database
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"libris/internal/platform/config"
	"libris/internal/platform/logger"
	"libris/internal/platform/migrate"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: libris-migrate [flags] <command>

commands:
  up              apply all pending migrations
  down            roll back all migrations
  steps <n>       apply n migrations (negative rolls back)
  version         print current schema version
  force <v>       stamp schema version without running migrations

flags:
`)
	flag.PrintDefaults()
}

func main() {
	dir := flag.String("dir", "migrations", "directory with *.sql migration files")
	timeout := flag.Duration("lock-timeout", 15*time.Second, "per-step lock timeout")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_") // same env var the API reads
	l := logger.Get()

	m, err := migrate.New(migrate.Config{
		URL:         pgCfg.MustString("DBURL"),
		Dir:         *dir,
		LockTimeout: *timeout,
	}, *l)
	if err != nil {
		l.Fatal().Err(err).Msg("migrate init failed")
	}
	defer func() {
		if err := m.Close(); err != nil {
			l.Error().Err(err).Msg("migrate close failed")
		}
	}()

	switch cmd := flag.Arg(0); cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		var n int
		n, err = strconv.Atoi(flag.Arg(1))
		if err != nil {
			l.Fatal().Str("arg", flag.Arg(1)).Msg("steps needs an integer argument")
		}
		err = m.Steps(n)
	case "version":
		v, dirty, verr := m.Version()
		if verr != nil {
			l.Fatal().Err(verr).Msg("version failed")
		}
		fmt.Printf("version=%d dirty=%v\n", v, dirty)
	case "force":
		var v int
		v, err = strconv.Atoi(flag.Arg(1))
		if err != nil {
			l.Fatal().Str("arg", flag.Arg(1)).Msg("force needs an integer argument")
		}
		err = m.Force(v)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		l.Fatal().Err(err).Msg("migration failed")
	}
}
