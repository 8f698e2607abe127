// @title         Libris API
// @version       0.1.0
// @description   Library catalog endpoints over the repository kit

package main

import (
	"context"

	"libris/internal/modkit/repokit"
	"libris/internal/platform/config"
	"libris/internal/platform/logger"
	phttp "libris/internal/platform/net/http"
	"libris/internal/platform/store"

	"libris/internal/services/api"
)

func main() {
	// service-scoped config for HTTP etc (CORE_API_*)
	root := config.New()
	apiCfg := root.Prefix("CORE_API_")

	pgCfg := root.Prefix("SERVICE_PGSQL_")   // pgCfg lives under SERVICE_PGSQL_*
	mgCfg := root.Prefix("SERVICE_MONGO_")   // mgCfg lives under SERVICE_MONGO_*
	mongoOn := mgCfg.MayBool("ENABLED", false)

	// bring up logging early
	l := logger.Get()

	// open the platform store (postgres always, mongo when enabled)
	st, err := store.Open(
		context.Background(),
		store.Config{
			PG: store.PGConfig{
				Enabled:     true,
				URL:         pgCfg.MustString("DBURL"),
				MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
				SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
				LogSQL:      pgCfg.MayBool("LOG_SQL", true),
			},
			Mongo: store.MongoConfig{
				Enabled:  mongoOn,
				URL:      mgCfg.MayString("DBURL", ""),
				Database: mgCfg.MayString("DATABASE", "libris"),
			},
		},
		store.WithLogger(*logger.Get()),
	)
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	// refuse to serve if a configured backend is unreachable
	repokit.MustGuard(context.Background(), st)

	// request-scoped transactions need the begin seam from the pg adapter
	var uow *store.Manager
	if b, ok := st.PG.(store.TxBeginner); ok {
		uow = store.NewManager(b)
	}

	// http server (reads CORE_API_PORT / CORE_API_ADDR)
	srv := phttp.NewServer(apiCfg)

	// mount our API
	api.Mount(
		srv.Router(),
		api.Options{
			Config:         apiCfg,
			Store:          st,
			UOW:            uow,
			Logger:         l,
			EnableSwagger:  apiCfg.MayBool("SWAGGER", true),
			EnableProfiler: apiCfg.MayBool("PROFILER", true),
		},
	)

	// run
	if err := srv.Run(context.Background()); err != nil {
		l.Panic().Err(err).Msg("http server stopped")
	}
}
