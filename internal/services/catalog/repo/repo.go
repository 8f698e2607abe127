// Package repo provides repository wiring for the catalog
package repo

import (
	"libris/internal/modkit/repokit"
	"libris/internal/services/catalog/domain"
)

// Storage exposes the catalog's backing repositories
// each accessor is bound to the same unit of work
type Storage interface {
	Authors() repokit.Repository[domain.Author]
	Books() repokit.Repository[domain.Book]
}

type binder struct{}

// NewPG constructs a repo binder that backs Storage with postgres
func NewPG() repokit.Binder[Storage] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) Storage {
	return &pg{
		authors: mustSQL[domain.Author](q, "authors"),
		books:   mustSQL[domain.Book](q, "books"),
	}
}

type pg struct {
	authors *repokit.SQL[domain.Author]
	books   *repokit.SQL[domain.Book]
}

func (s *pg) Authors() repokit.Repository[domain.Author] { return s.authors }
func (s *pg) Books() repokit.Repository[domain.Book]     { return s.books }

// mustSQL panics on model metadata errors; those are programmer errors
// caught by the package tests, never runtime conditions
func mustSQL[T any](q repokit.Queryer, table string) *repokit.SQL[T] {
	r, err := repokit.NewSQL[T](q, table)
	if err != nil {
		panic(err)
	}
	return r
}

// MemoryStores holds the explicit state for the in-memory backing
// share one instance across binds to share data, or use fresh ones to isolate
type MemoryStores struct {
	Authors *repokit.MemStore[domain.Author]
	Books   *repokit.MemStore[domain.Book]
}

// NewMemoryStores allocates empty state for the in-memory backing
func NewMemoryStores() MemoryStores {
	return MemoryStores{
		Authors: repokit.NewMemStore[domain.Author](),
		Books:   repokit.NewMemStore[domain.Book](),
	}
}

type memBinder struct{ stores MemoryStores }

// NewMemory constructs a repo binder backed by in-memory state
// the Queryer passed to Bind is ignored
func NewMemory(stores MemoryStores) repokit.Binder[Storage] {
	return memBinder{stores: stores}
}

// Bind implements repokit.Binder
func (b memBinder) Bind(_ repokit.Queryer) Storage {
	return &mem{
		authors: mustMemory(b.stores.Authors),
		books:   mustMemory(b.stores.Books),
	}
}

type mem struct {
	authors *repokit.Memory[domain.Author]
	books   *repokit.Memory[domain.Book]
}

func (s *mem) Authors() repokit.Repository[domain.Author] { return s.authors }
func (s *mem) Books() repokit.Repository[domain.Book]     { return s.books }

func mustMemory[T any](store *repokit.MemStore[T]) *repokit.Memory[T] {
	r, err := repokit.NewMemory(store)
	if err != nil {
		panic(err)
	}
	return r
}
