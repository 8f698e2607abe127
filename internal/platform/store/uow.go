package store

import (
	"context"
	"errors"
	"sync"
)

// Outcome is how a unit of work ends
type Outcome int

const (
	// Commit makes the unit's writes durable
	Commit Outcome = iota
	// Rollback discards the unit's writes
	Rollback
)

// ErrNoUnit is returned when Acquire is called on a context
// that was never passed through Manager.Bind
var ErrNoUnit = errors.New("store: no unit of work bound to context")

// Unit is one request-scoped transaction slot.
// The transaction is opened lazily on first Acquire and closed
// exactly once by Release; a released unit stays inert
type Unit struct {
	mu       sync.Mutex
	tx       TxHandle
	released bool
}

// Manager owns the begin seam and hands out request-scoped transactions.
// One Manager serves the whole process; each request gets its own Unit
// via Bind, so no state is shared across concurrent requests
type Manager struct {
	begin TxBeginner
}

// NewManager wires a Manager over any TxBeginner (the pg adapter in production)
func NewManager(b TxBeginner) *Manager {
	if b == nil {
		panic("store: nil TxBeginner")
	}
	return &Manager{begin: b}
}

// Bind installs a fresh Unit on the context. Call once per request
// before any Acquire
func (m *Manager) Bind(ctx context.Context) context.Context {
	return withUnit(ctx, &Unit{})
}

// Acquire returns the request's transaction, beginning it on first use.
// Subsequent calls within the same bound context return the same handle
func (m *Manager) Acquire(ctx context.Context) (RowQuerier, error) {
	u, ok := unitFrom(ctx)
	if !ok {
		return nil, ErrNoUnit
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.released {
		return nil, errors.New("store: unit of work already released")
	}
	if u.tx == nil {
		tx, err := m.begin.Begin(ctx)
		if err != nil {
			return nil, err
		}
		u.tx = tx
	}
	return u.tx, nil
}

// Release ends the unit of work with the given outcome.
// If no transaction was ever acquired, or the unit was already
// released, it is a no-op
func (m *Manager) Release(ctx context.Context, outcome Outcome) error {
	u, ok := unitFrom(ctx)
	if !ok {
		return nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.released || u.tx == nil {
		u.released = true
		return nil
	}
	tx := u.tx
	u.tx = nil
	u.released = true
	if outcome == Commit {
		return tx.Commit(ctx)
	}
	return tx.Rollback(ctx)
}

// Active reports whether a transaction is currently open on the context
func (m *Manager) Active(ctx context.Context) bool {
	u, ok := unitFrom(ctx)
	if !ok {
		return false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.tx != nil && !u.released
}
