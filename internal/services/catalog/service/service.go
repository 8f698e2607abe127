// Package service provides the catalog service implementation
package service

import (
	"context"
	"errors"
	"time"

	"libris/internal/modkit/repokit"
	perr "libris/internal/platform/errors"
	"libris/internal/platform/store"
	ptime "libris/internal/platform/time"
	"libris/internal/services/catalog/domain"
	"libris/internal/services/catalog/repo"
)

// Config for the catalog service
type Config struct {
	// DefaultLimit caps unbounded list calls; defaults to 100 if <=0
	DefaultLimit int
	// MaxLimit is the hard ceiling for a caller-provided limit; defaults to 500
	MaxLimit int
}

// Service implements domain.AuthorsPort and domain.BooksPort
type Service struct {
	DB     repokit.TxRunner
	UOW    *store.Manager
	Binder repokit.Binder[repo.Storage]
	Cfg    Config
}

// New constructs a new catalog service
func New(db repokit.TxRunner, uow *store.Manager, b repokit.Binder[repo.Storage], cfg Config) *Service {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 100
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 500
	}
	return &Service{DB: db, UOW: uow, Binder: b, Cfg: cfg}
}

// storage binds the repos to the request transaction when a unit of work is
// on the context, falling back to the pooled querier for callers outside a request
func (s *Service) storage(ctx context.Context) (repo.Storage, error) {
	if s.UOW != nil {
		h, err := s.UOW.Acquire(ctx)
		if err == nil {
			return s.Binder.Bind(h), nil
		}
		if !errors.Is(err, store.ErrNoUnit) {
			return nil, err
		}
	}
	return s.Binder.Bind(s.DB), nil
}

// CreateAuthor implements domain.AuthorsPort
func (s *Service) CreateAuthor(ctx context.Context, in domain.CreateAuthorInput) (domain.Author, error) {
	st, err := s.storage(ctx)
	if err != nil {
		return domain.Author{}, err
	}
	a := domain.Author{Name: in.Name}
	if in.DOB != "" {
		dob, err := parseDate(in.DOB)
		if err != nil {
			return domain.Author{}, err
		}
		a.DOB = ptime.Ptr(dob)
	}
	return st.Authors().Add(ctx, a)
}

// GetAuthor implements domain.AuthorsPort
func (s *Service) GetAuthor(ctx context.Context, id string) (domain.Author, error) {
	st, err := s.storage(ctx)
	if err != nil {
		return domain.Author{}, err
	}
	return st.Authors().Get(ctx, id, nil)
}

// ListAuthors implements domain.AuthorsPort
func (s *Service) ListAuthors(ctx context.Context, in domain.ListAuthorsInput) ([]domain.Author, int64, error) {
	st, err := s.storage(ctx)
	if err != nil {
		return nil, 0, err
	}

	filters, err := s.authorFilters(in)
	if err != nil {
		return nil, 0, err
	}
	return st.Authors().ListAndCount(ctx, nil, filters...)
}

// authorFilters compiles the list input into repository filters
func (s *Service) authorFilters(in domain.ListAuthorsInput) ([]repokit.Filter, error) {
	var filters []repokit.Filter

	if in.Search != "" {
		filters = append(filters, repokit.SearchFilter{Field: "name", Value: in.Search, IgnoreCase: true})
	}

	var before, after *time.Time
	if in.Before != "" {
		t, err := parseDate(in.Before)
		if err != nil {
			return nil, err
		}
		before = ptime.Ptr(t)
	}
	if in.After != "" {
		t, err := parseDate(in.After)
		if err != nil {
			return nil, err
		}
		after = ptime.Ptr(t)
	}
	if before != nil || after != nil {
		filters = append(filters, repokit.BeforeAfter{Field: "created_at", Before: before, After: after})
	}

	order := repokit.SortAsc
	if in.Order == "desc" {
		order = repokit.SortDesc
	}
	filters = append(filters, repokit.OrderBy{Field: "name", Order: order})

	limit := in.Limit
	if limit <= 0 {
		limit = s.Cfg.DefaultLimit
	}
	if limit > s.Cfg.MaxLimit {
		limit = s.Cfg.MaxLimit
	}
	filters = append(filters, repokit.LimitOffset{Limit: limit, Offset: in.Offset})
	return filters, nil
}

// UpdateAuthor implements domain.AuthorsPort
// unset input fields keep their stored values
func (s *Service) UpdateAuthor(ctx context.Context, id string, in domain.UpdateAuthorInput) (domain.Author, error) {
	st, err := s.storage(ctx)
	if err != nil {
		return domain.Author{}, err
	}

	a, err := st.Authors().Get(ctx, id, nil)
	if err != nil {
		return domain.Author{}, err
	}
	if in.Name != "" {
		a.Name = in.Name
	}
	if in.DOB != "" {
		dob, err := parseDate(in.DOB)
		if err != nil {
			return domain.Author{}, err
		}
		a.DOB = ptime.Ptr(dob)
	}
	return st.Authors().Update(ctx, a)
}

// DeleteAuthor implements domain.AuthorsPort
// the author's books go with it on every backend, not just the one with FK cascade
func (s *Service) DeleteAuthor(ctx context.Context, id string) (domain.Author, error) {
	st, err := s.storage(ctx)
	if err != nil {
		return domain.Author{}, err
	}

	books, err := st.Books().List(ctx, repokit.Where{"author_id": id})
	if err != nil {
		return domain.Author{}, err
	}
	if len(books) > 0 {
		ids := make([]any, len(books))
		for i, b := range books {
			ids[i] = b.ID
		}
		if _, err := st.Books().DeleteMany(ctx, ids); err != nil {
			return domain.Author{}, err
		}
	}
	return st.Authors().Delete(ctx, id)
}

// CreateBook implements domain.BooksPort
// the author must exist; a dangling author id is a not found, not an FK error
func (s *Service) CreateBook(ctx context.Context, authorID string, in domain.CreateBookInput) (domain.Book, error) {
	st, err := s.storage(ctx)
	if err != nil {
		return domain.Book{}, err
	}

	if _, err := st.Authors().Get(ctx, authorID, nil); err != nil {
		return domain.Book{}, err
	}
	return st.Books().Add(ctx, domain.Book{Title: in.Title, AuthorID: authorID})
}

// ListBooks implements domain.BooksPort
func (s *Service) ListBooks(ctx context.Context, authorID string) ([]domain.Book, error) {
	st, err := s.storage(ctx)
	if err != nil {
		return nil, err
	}
	return st.Books().List(ctx,
		repokit.Where{"author_id": authorID},
		repokit.OrderBy{Field: "title", Order: repokit.SortAsc},
	)
}

// DeleteBook implements domain.BooksPort
func (s *Service) DeleteBook(ctx context.Context, id string) (domain.Book, error) {
	st, err := s.storage(ctx)
	if err != nil {
		return domain.Book{}, err
	}
	return st.Books().Delete(ctx, id)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, perr.InvalidArgf("bad date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

var (
	_ domain.AuthorsPort = (*Service)(nil)
	_ domain.BooksPort   = (*Service)(nil)
)
