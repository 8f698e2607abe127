package repokit

import (
	"context"

	perr "libris/internal/platform/errors"
)

// Repository is the backend-independent CRUD+filter surface.
// One instance binds to one unit of work; mutating operations execute
// immediately but never commit. Commit and rollback belong to the caller
type Repository[T any] interface {
	Add(ctx context.Context, item T) (T, error)
	AddMany(ctx context.Context, items []T) ([]T, error)

	Get(ctx context.Context, id any, where Where) (T, error)
	GetOne(ctx context.Context, where Where) (T, error)
	GetOneOrNone(ctx context.Context, where Where) (*T, error)
	GetOrCreate(ctx context.Context, attrs Where, matchFields []string, upsert bool) (T, bool, error)

	Update(ctx context.Context, item T) (T, error)
	UpdateMany(ctx context.Context, items []T) ([]T, error)
	Upsert(ctx context.Context, item T) (T, error)

	Delete(ctx context.Context, id any) (T, error)
	DeleteMany(ctx context.Context, ids []any) ([]T, error)

	Exists(ctx context.Context, where Where, filters ...Filter) (bool, error)
	Count(ctx context.Context, where Where, filters ...Filter) (int64, error)
	List(ctx context.Context, where Where, filters ...Filter) ([]T, error)
	ListAndCount(ctx context.Context, where Where, filters ...Filter) ([]T, int64, error)
}

// CheckNotFound converts an absent item into the canonical not found error.
// Every single-item read funnels through this
func CheckNotFound[T any](item *T) (T, error) {
	if item == nil {
		var zero T
		return zero, perr.ErrNotFound
	}
	return *item, nil
}

// MatchAll restricts items to those whose fields equal every predicate entry.
// Unknown keys fail with a repository error. AND semantics, never OR
func MatchAll[T any](m *Model, items []T, where Where) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, it := range items {
		ok, err := matches(m, it, where)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func matches[T any](m *Model, item T, where Where) (bool, error) {
	for k, want := range where {
		got, ok := m.Value(item, k)
		if !ok {
			return false, perr.DBf("unknown field %q in predicate", k)
		}
		if !looseEqual(got, want) {
			return false, nil
		}
	}
	return true, nil
}
