package middleware

import (
	"net/http"

	"libris/internal/platform/logger"
	"libris/internal/platform/store"
)

// UnitOfWork binds a request-scoped transaction slot to the context and
// settles it when the response goes out: a success status commits, anything
// else rolls back. Handlers that never touch the database cost nothing
// because the transaction opens lazily on first Acquire.
// This is the only place transaction boundaries are decided; repositories
// never commit
func UnitOfWork(m *store.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := m.Bind(r.Context())
			cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				outcome := store.Rollback
				if p := recover(); p != nil {
					// settle before the panic continues to the recoverer
					if err := m.Release(ctx, store.Rollback); err != nil {
						logger.C(ctx).Error().Err(err).Msg("unit of work rollback failed")
					}
					panic(p)
				}
				if cw.status >= 200 && cw.status < 300 {
					outcome = store.Commit
				}
				if err := m.Release(ctx, outcome); err != nil {
					logger.C(ctx).Error().Err(err).Int("status", cw.status).Msg("unit of work release failed")
				}
			}()

			next.ServeHTTP(cw, r.WithContext(ctx))
		})
	}
}
