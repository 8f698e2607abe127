// Package module wires the catalog into the API using modkit
package module

import (
	"net/http"

	modkit "libris/internal/modkit"
	"libris/internal/modkit/httpkit"
	perr "libris/internal/platform/errors"
	"libris/internal/platform/store"
	str "libris/internal/platform/strings"
	"libris/internal/services/catalog/domain"
	cathttp "libris/internal/services/catalog/http"
	catrepo "libris/internal/services/catalog/repo"
	catsvc "libris/internal/services/catalog/service"
)

// Ports exposed by the catalog module
type Ports struct {
	Authors domain.AuthorsPort
	Books   domain.BooksPort
}

// Module implements the catalog module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws       []func(http.Handler) http.Handler
	ports     any
	swaggerOn bool

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	svc *catsvc.Service
}

// New constructs the catalog module
// uow may be nil; repositories then run on the pooled querier
func New(deps modkit.Deps, uow *store.Manager, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("catalog"), modkit.WithPrefix("/catalog")}, opts...)...)

	mopts := FromConfig(deps.Cfg)
	svc := catsvc.New(deps.PG, uow, catrepo.NewPG(), catsvc.Config{
		DefaultLimit: mopts.DefaultLimit,
		MaxLimit:     mopts.MaxLimit,
	})

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		swaggerOn: b.SwaggerOn,
		subrouter: b.Subrouter,
		svc:       svc,
	}
	m.ports = Ports{Authors: svc, Books: svc}

	external := b.Register
	m.register = func(r httpkit.Router) {
		cathttp.RegisterRead(r, m.svc)
		if mopts.AdminToken != "" {
			// mutating routes require the configured bearer token
			port := httpkit.NewPortFunc(func(raw string) (string, string, error) {
				if raw != mopts.AdminToken {
					return "", "", perr.Unauthorizedf("invalid bearer token")
				}
				return "admin", "", nil
			})
			httpkit.Protected(r, port, func(pr httpkit.Router) {
				cathttp.RegisterWrite(pr, m.svc)
			})
		} else {
			cathttp.RegisterWrite(r, m.svc)
		}
		if external != nil {
			external(r)
		}
	}
	return m
}

// MountRoutes mounts the module routes on the given router
func (m *Module) MountRoutes(r httpkit.Router) {
	r.Route(m.prefix, func(rr httpkit.Router) {
		for _, mw := range m.mws {
			rr.Use(mw)
		}
		if m.subrouter != nil {
			rr = m.subrouter(rr)
		}
		if m.register != nil {
			m.register(rr)
		}
	})
}

// Name returns the module name
func (m *Module) Name() string { return str.MustString(m.name, "module name") }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Middlewares returns the module middlewares
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return m.mws }

// Ports returns the module ports for cross module wiring
func (m *Module) Ports() any { return m.ports }
