package repokit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	perr "libris/internal/platform/errors"
	pstrings "libris/internal/platform/strings"
)

// MemStore is the backing map for a Memory repository. It is an explicit
// object so tests own their data instead of sharing hidden package state;
// two repositories share items only when handed the same store
type MemStore[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	order []string
}

// NewMemStore returns an empty store
func NewMemStore[T any]() *MemStore[T] {
	return &MemStore[T]{items: make(map[string]T)}
}

// Clear drops every item
func (s *MemStore[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T)
	s.order = nil
}

// Len returns the number of stored items
func (s *MemStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *MemStore[T]) get(key string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

func (s *MemStore[T]) put(key string, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		s.order = append(s.order, key)
	}
	s.items[key] = v
}

func (s *MemStore[T]) delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		return
	}
	delete(s.items, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// all returns items in insertion order
func (s *MemStore[T]) all() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.items))
	for _, k := range s.order {
		out = append(out, s.items[k])
	}
	return out
}

// Memory implements the repository protocol against a MemStore, mirroring
// the SQL backend's audit stamping and error mapping. Used as a test double
type Memory[T any] struct {
	store *MemStore[T]
	meta  *Model

	now   func() time.Time
	newID func() any

	// allowIDsOnAdd permits callers to supply their own ids on Add.
	// Off by default so tests can assert the repository assigns ids
	allowIDsOnAdd bool
}

// MemoryOption mutates a Memory repository during construction
type MemoryOption[T any] func(*Memory[T])

// WithMemClock overrides the audit timestamp source
func WithMemClock[T any](now func() time.Time) MemoryOption[T] {
	return func(r *Memory[T]) { r.now = now }
}

// WithIDFactory overrides id generation (default uuid strings)
func WithIDFactory[T any](f func() any) MemoryOption[T] {
	return func(r *Memory[T]) { r.newID = f }
}

// AllowIDsOnAdd lets Add accept items that already carry an id
func AllowIDsOnAdd[T any]() MemoryOption[T] {
	return func(r *Memory[T]) { r.allowIDsOnAdd = true }
}

// NewMemory builds an in-memory repository over the given store
func NewMemory[T any](store *MemStore[T], opts ...MemoryOption[T]) (*Memory[T], error) {
	if store == nil {
		return nil, perr.DBf("nil store")
	}
	r := &Memory[T]{
		store: store,
		now:   time.Now,
		newID: func() any { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	meta, err := ModelOf[T]("id")
	if err != nil {
		return nil, err
	}
	r.meta = meta
	return r, nil
}

// Model exposes the repository's field metadata
func (r *Memory[T]) Model() *Model { return r.meta }

func (r *Memory[T]) key(id any) string { return fmt.Sprint(id) }

// Add stores item, assigning an id and stamping audit timestamps.
// Items arriving with an id conflict unless AllowIDsOnAdd was set
func (r *Memory[T]) Add(ctx context.Context, item T) (T, error) {
	var zero T
	if !r.meta.IDIsZero(item) {
		if !r.allowIDsOnAdd {
			return zero, perr.Conflictf("item already has an id; the repository assigns ids")
		}
	} else {
		if err := r.meta.SetID(&item, r.newID()); err != nil {
			return zero, err
		}
	}
	key := r.key(r.meta.IDValue(item))
	if _, exists := r.store.get(key); exists {
		return zero, perr.DuplicateKeyf("duplicate id %s", key)
	}
	if r.meta.HasAudit() {
		r.meta.StampCreate(&item, r.now().UTC())
	}
	r.store.put(key, item)
	return item, nil
}

// AddMany stores all items sharing a single timestamp
func (r *Memory[T]) AddMany(ctx context.Context, items []T) ([]T, error) {
	now := r.now().UTC()
	out := make([]T, 0, len(items))
	for _, item := range items {
		if !r.meta.IDIsZero(item) {
			if !r.allowIDsOnAdd {
				return nil, perr.Conflictf("item already has an id; the repository assigns ids")
			}
		} else {
			if err := r.meta.SetID(&item, r.newID()); err != nil {
				return nil, err
			}
		}
		key := r.key(r.meta.IDValue(item))
		if _, exists := r.store.get(key); exists {
			return nil, perr.DuplicateKeyf("duplicate id %s", key)
		}
		if r.meta.HasAudit() {
			r.meta.StampCreate(&item, now)
		}
		r.store.put(key, item)
		out = append(out, item)
	}
	return out, nil
}

// Get fetches one item by id, optionally narrowed by where
func (r *Memory[T]) Get(ctx context.Context, id any, where Where) (T, error) {
	var zero T
	item, ok := r.store.get(r.key(id))
	if !ok {
		return zero, perr.NotFoundf("no item with id %v", id)
	}
	if len(where) > 0 {
		match, err := matches(r.meta, item, where)
		if err != nil {
			return zero, err
		}
		if !match {
			return zero, perr.NotFoundf("no item with id %v matching predicate", id)
		}
	}
	return item, nil
}

// GetOne fetches exactly one matching item; more than one is an error
func (r *Memory[T]) GetOne(ctx context.Context, where Where) (T, error) {
	var zero T
	found, err := MatchAll(r.meta, r.store.all(), where)
	if err != nil {
		return zero, err
	}
	switch len(found) {
	case 0:
		return zero, perr.ErrNotFound
	case 1:
		return found[0], nil
	default:
		return zero, perr.DBf("expected 1 item, got %d", len(found))
	}
}

// GetOneOrNone is GetOne with absence reported as nil instead of an error
func (r *Memory[T]) GetOneOrNone(ctx context.Context, where Where) (*T, error) {
	out, err := r.GetOne(ctx, where)
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// GetOrCreate looks an item up by matchFields (all attrs when nil) and
// creates it from attrs when absent; created is false on the found branch
func (r *Memory[T]) GetOrCreate(ctx context.Context, attrs Where, matchFields []string, upsert bool) (T, bool, error) {
	var zero T
	predicate := attrs
	if len(matchFields) > 0 {
		predicate = make(Where, len(matchFields))
		for _, f := range matchFields {
			v, ok := attrs[f]
			if !ok {
				return zero, false, perr.DBf("match field %q missing from attributes", f)
			}
			predicate[f] = v
		}
	}

	existing, err := r.GetOneOrNone(ctx, predicate)
	if err != nil {
		return zero, false, err
	}
	if existing == nil {
		var item T
		for k, v := range attrs {
			if err := r.meta.SetValue(&item, k, v); err != nil {
				return zero, false, err
			}
		}
		created, err := r.Add(ctx, item)
		if err != nil {
			return zero, false, err
		}
		return created, true, nil
	}

	if upsert {
		dirty := false
		for k, v := range attrs {
			cur, _ := r.meta.Value(*existing, k)
			if !looseEqual(cur, v) {
				if err := r.meta.SetValue(existing, k, v); err != nil {
					return zero, false, err
				}
				dirty = true
			}
		}
		if dirty {
			updated, err := r.Update(ctx, *existing)
			if err != nil {
				return zero, false, err
			}
			return updated, false, nil
		}
	}
	return *existing, false, nil
}

// Update overwrites the stored item with the same id. created_at is kept
// from the stored copy; updated_at is restamped
func (r *Memory[T]) Update(ctx context.Context, item T) (T, error) {
	var zero T
	key := r.key(r.meta.IDValue(item))
	stored, ok := r.store.get(key)
	if !ok {
		return zero, perr.NotFoundf("no item with id %v", r.meta.IDValue(item))
	}
	if r.meta.HasAudit() {
		if created, ok := r.meta.Value(stored, createdCol); ok {
			_ = r.meta.SetValue(&item, createdCol, created)
		}
		r.meta.StampUpdate(&item, r.now().UTC())
	}
	r.store.put(key, item)
	return item, nil
}

// UpdateMany updates each item by id; a missing id fails the whole call
func (r *Memory[T]) UpdateMany(ctx context.Context, items []T) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, item := range items {
		updated, err := r.Update(ctx, item)
		if err != nil {
			return nil, err
		}
		out = append(out, updated)
	}
	return out, nil
}

// Upsert updates when the id exists, inserts otherwise; never fails not found
func (r *Memory[T]) Upsert(ctx context.Context, item T) (T, error) {
	if r.meta.IDIsZero(item) {
		if err := r.meta.SetID(&item, r.newID()); err != nil {
			var zero T
			return zero, err
		}
	}
	key := r.key(r.meta.IDValue(item))
	if _, ok := r.store.get(key); ok {
		return r.Update(ctx, item)
	}
	if r.meta.HasAudit() {
		r.meta.StampCreate(&item, r.now().UTC())
	}
	r.store.put(key, item)
	return item, nil
}

// Delete removes the item by id and returns it
func (r *Memory[T]) Delete(ctx context.Context, id any) (T, error) {
	var zero T
	key := r.key(id)
	item, ok := r.store.get(key)
	if !ok {
		return zero, perr.NotFoundf("no item with id %v", id)
	}
	r.store.delete(key)
	return item, nil
}

// DeleteMany removes items by id, silently skipping missing ids
func (r *Memory[T]) DeleteMany(ctx context.Context, ids []any) ([]T, error) {
	var out []T
	for _, id := range ids {
		key := r.key(id)
		item, ok := r.store.get(key)
		if !ok {
			continue
		}
		r.store.delete(key)
		out = append(out, item)
	}
	return out, nil
}

// Exists reports whether any item matches
func (r *Memory[T]) Exists(ctx context.Context, where Where, filters ...Filter) (bool, error) {
	n, err := r.Count(ctx, where, filters...)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Count returns the number of matching items, ignoring pagination
func (r *Memory[T]) Count(ctx context.Context, where Where, filters ...Filter) (int64, error) {
	items, err := r.evaluate(where, filters, false)
	if err != nil {
		return 0, err
	}
	return int64(len(items)), nil
}

// List returns matching items with ordering and pagination applied
func (r *Memory[T]) List(ctx context.Context, where Where, filters ...Filter) ([]T, error) {
	return r.evaluate(where, filters, true)
}

// ListAndCount returns the page of matching items plus the unpaginated total
func (r *Memory[T]) ListAndCount(ctx context.Context, where Where, filters ...Filter) ([]T, int64, error) {
	total, err := r.Count(ctx, where, filters...)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.evaluate(where, filters, true)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// evaluate runs the filter pipeline in memory: predicates first, then
// ordering, then pagination (only when pagination is true)
func (r *Memory[T]) evaluate(where Where, filters []Filter, pagination bool) ([]T, error) {
	items := r.store.all()

	for _, f := range filters {
		var err error
		switch f := f.(type) {
		case BeforeAfter:
			items, err = r.keep(items, func(it T) (bool, error) {
				t, ok, err := r.timeField(it, f.Field)
				if err != nil || !ok {
					return false, err
				}
				if f.Before != nil && !t.Before(*f.Before) {
					return false, nil
				}
				if f.After != nil && !t.After(*f.After) {
					return false, nil
				}
				return true, nil
			})
		case OnBeforeAfter:
			items, err = r.keep(items, func(it T) (bool, error) {
				t, ok, err := r.timeField(it, f.Field)
				if err != nil || !ok {
					return false, err
				}
				if f.OnOrBefore != nil && t.After(*f.OnOrBefore) {
					return false, nil
				}
				if f.OnOrAfter != nil && t.Before(*f.OnOrAfter) {
					return false, nil
				}
				return true, nil
			})
		case CollectionFilter:
			if len(f.Values) == 0 {
				continue
			}
			items, err = r.keep(items, func(it T) (bool, error) {
				return r.valueIn(it, f.Field, f.Values)
			})
		case NotInCollectionFilter:
			if len(f.Values) == 0 {
				continue
			}
			items, err = r.keep(items, func(it T) (bool, error) {
				in, err := r.valueIn(it, f.Field, f.Values)
				return !in, err
			})
		case SearchFilter:
			items, err = r.keep(items, func(it T) (bool, error) {
				return r.contains(it, f.Field, f.Value, f.IgnoreCase)
			})
		case NotInSearchFilter:
			items, err = r.keep(items, func(it T) (bool, error) {
				in, err := r.contains(it, f.Field, f.Value, f.IgnoreCase)
				return !in, err
			})
		case OrderBy:
			if !r.meta.HasColumn(f.Field) {
				return nil, perr.DBf("unknown field %q in filter", f.Field)
			}
			field := f.Field
			desc := f.Order == SortDesc
			sort.SliceStable(items, func(i, j int) bool {
				a, _ := r.meta.Value(items[i], field)
				b, _ := r.meta.Value(items[j], field)
				less := lessThan(a, b)
				if desc {
					return lessThan(b, a)
				}
				return less
			})
		case LimitOffset:
			if !pagination {
				continue
			}
			if f.Offset >= len(items) {
				items = nil
				continue
			}
			items = items[f.Offset:]
			if f.Limit >= 0 && f.Limit < len(items) {
				items = items[:f.Limit]
			}
		default:
			return nil, perr.DBf("unsupported filter type %T", f)
		}
		if err != nil {
			return nil, err
		}
	}

	return MatchAll(r.meta, items, where)
}

func (r *Memory[T]) keep(items []T, pred func(T) (bool, error)) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, it := range items {
		ok, err := pred(it)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *Memory[T]) timeField(item T, field string) (time.Time, bool, error) {
	v, ok := r.meta.Value(item, field)
	if !ok {
		return time.Time{}, false, perr.DBf("unknown field %q in filter", field)
	}
	t, ok := asTime(v)
	return t, ok, nil
}

func (r *Memory[T]) valueIn(item T, field string, values []any) (bool, error) {
	v, ok := r.meta.Value(item, field)
	if !ok {
		return false, perr.DBf("unknown field %q in filter", field)
	}
	for _, want := range values {
		if looseEqual(v, want) {
			return true, nil
		}
	}
	return false, nil
}

func (r *Memory[T]) contains(item T, field, sub string, ignoreCase bool) (bool, error) {
	v, ok := r.meta.Value(item, field)
	if !ok {
		return false, perr.DBf("unknown field %q in filter", field)
	}
	s, ok := asString(v)
	if !ok {
		return false, nil
	}
	if ignoreCase {
		return pstrings.ContainsFold(s, sub), nil
	}
	return pstrings.Contains(s, sub), nil
}

// lessThan orders values for OrderBy: times by instant, numbers by value,
// strings lexically
func lessThan(a, b any) bool {
	if at, ok := asTime(a); ok {
		bt, _ := asTime(b)
		return at.Before(bt)
	}
	if ai, ok := asInt(a); ok {
		bi, _ := asInt(b)
		return ai < bi
	}
	if af, ok := asFloat(a); ok {
		bf, _ := asFloat(b)
		return af < bf
	}
	as, _ := asString(a)
	bs, _ := asString(b)
	return as < bs
}
