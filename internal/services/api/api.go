// Package api provides the HTTP API for the application
package api

import (
	"libris/internal/platform/config"
	"libris/internal/platform/logger"
	phttp "libris/internal/platform/net/http"
	"libris/internal/platform/net/middleware"
	"libris/internal/platform/store"

	"libris/internal/modkit"
	"libris/internal/modkit/httpkit"
	"libris/internal/modkit/module"
	"libris/internal/modkit/swaggerkit"

	metamod "libris/internal/services/api/meta/module"
	catalogmod "libris/internal/services/catalog/module"
)

// Options are the API options
type Options struct {
	Config         config.Conf
	Store          *store.Store
	UOW            *store.Manager
	Logger         *logger.Logger
	EnableSwagger  bool
	EnableProfiler bool
}

// Mount mounts the API service onto the given router
func Mount(r phttp.Router, opt Options) {
	// shared deps for modules
	deps := modkit.Deps{
		Cfg:   opt.Config,
		PG:    opt.Store.PG,
		Mongo: opt.Store.Mongo,
	}

	mods := []module.Module{
		metamod.New(deps),
		catalogmod.New(deps, opt.UOW),
	}

	// request transaction lifecycle: commit on 2xx, rollback otherwise
	stack := httpkit.CommonStack()
	if opt.UOW != nil {
		stack = append(stack, middleware.UnitOfWork(opt.UOW))
	}

	// versioned API with the common middleware stack
	httpkit.MountAPIV1(r, stack, func(api httpkit.Router) {
		// Swagger + profiler
		swaggerkit.Mount(r, opt.EnableSwagger)
		phttp.MountProfiler(r, "/debug", opt.EnableProfiler)

		for _, m := range mods {
			// register each module's ports under its own name (for cross-module lookups)
			module.Register(m.Name(), m.Ports())

			// mount module routes under its Prefix()
			m.MountRoutes(api)
		}
	})
}
