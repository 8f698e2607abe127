package repokit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	perr "libris/internal/platform/errors"
	"libris/internal/platform/store"
)

// deleteChunk bounds how many ids one bulk delete statement carries,
// to stay under dialect parameter-count limits
const deleteChunk = 450

// Dialect carries the capability flags bulk operations branch on
type Dialect struct {
	// DeleteReturning is true when DELETE ... RETURNING is supported
	DeleteReturning bool

	// UpdateReturning is true when UPDATE ... RETURNING is supported
	UpdateReturning bool
}

// PostgresDialect supports RETURNING on every statement kind
var PostgresDialect = Dialect{DeleteReturning: true, UpdateReturning: true}

// SQL is a generic repository over one table, bound to one Queryer.
// It never opens a connection or commits; both belong to the caller
type SQL[T any] struct {
	q       Queryer
	table   string
	idCol   string
	meta    *Model
	dialect Dialect
	now     func() time.Time
}

// SQLOption mutates a SQL repository during construction
type SQLOption[T any] func(*SQL[T])

// WithDialect overrides the capability flags (default PostgresDialect)
func WithDialect[T any](d Dialect) SQLOption[T] {
	return func(r *SQL[T]) { r.dialect = d }
}

// WithIDColumn overrides the id column (default "id")
func WithIDColumn[T any](col string) SQLOption[T] {
	return func(r *SQL[T]) { r.idCol = col }
}

// WithClock overrides the audit timestamp source
func WithClock[T any](now func() time.Time) SQLOption[T] {
	return func(r *SQL[T]) { r.now = now }
}

// NewSQL builds a repository for T over the given table
func NewSQL[T any](q Queryer, table string, opts ...SQLOption[T]) (*SQL[T], error) {
	r := &SQL[T]{
		q:       RequireQueryer(q),
		table:   table,
		dialect: PostgresDialect,
		now:     time.Now,
		idCol:   "id",
	}
	for _, opt := range opts {
		opt(r)
	}
	meta, err := ModelOf[T](r.idCol)
	if err != nil {
		return nil, err
	}
	r.meta = meta
	return r, nil
}

// Model exposes the repository's field metadata
func (r *SQL[T]) Model() *Model { return r.meta }

// Add inserts item and returns the stored row, server defaults included
func (r *SQL[T]) Add(ctx context.Context, item T) (T, error) {
	var zero T
	if r.meta.HasAudit() {
		r.meta.StampCreate(&item, r.now().UTC())
	}

	cols, args := r.insertColumns(item)
	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		r.table, strings.Join(cols, ", "), strings.Join(ph, ", "), r.selectList(),
	)
	out, err := store.StructByName[T](ctx, r.q, sql, args...)
	if err != nil {
		return zero, r.wrap(err, "add")
	}
	return out, nil
}

// AddMany inserts all items in one statement sharing a single timestamp
func (r *SQL[T]) AddMany(ctx context.Context, items []T) ([]T, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if r.meta.HasAudit() {
		now := r.now().UTC()
		for i := range items {
			r.meta.StampCreate(&items[i], now)
		}
	}

	cols, _ := r.insertColumns(items[0])
	var (
		rowsSQL []string
		args    []any
	)
	for _, it := range items {
		ph := make([]string, len(cols))
		for i, c := range cols {
			v, _ := r.meta.Value(it, c)
			args = append(args, v)
			ph[i] = fmt.Sprintf("$%d", len(args))
		}
		rowsSQL = append(rowsSQL, "("+strings.Join(ph, ", ")+")")
	}
	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s RETURNING %s",
		r.table, strings.Join(cols, ", "), strings.Join(rowsSQL, ", "), r.selectList(),
	)
	out, err := store.StructsByName[T](ctx, r.q, sql, args...)
	if err != nil {
		return nil, r.wrap(err, "add_many")
	}
	return out, nil
}

// Get fetches one row by id, optionally narrowed by where.
// Absent rows fail with a not found error
func (r *SQL[T]) Get(ctx context.Context, id any, where Where) (T, error) {
	var zero T
	b := &clauseBuilder{}
	b.cond(fmt.Sprintf("%s = %s", r.meta.IDColumn(), b.arg(id)))
	if err := r.applyWhere(b, where); err != nil {
		return zero, err
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s", r.selectList(), r.table, b.where())
	out, err := store.StructByName[T](ctx, r.q, sql, b.args...)
	if err != nil {
		return zero, r.wrap(err, "get")
	}
	return out, nil
}

// GetOne fetches exactly one row matching where.
// Zero rows fail not found; more than one row is an error, never a pick
func (r *SQL[T]) GetOne(ctx context.Context, where Where) (T, error) {
	var zero T
	b := &clauseBuilder{}
	if err := r.applyWhere(b, where); err != nil {
		return zero, err
	}
	sql := fmt.Sprintf("SELECT %s FROM %s", r.selectList(), r.table)
	if len(b.conds) > 0 {
		sql += " WHERE " + b.where()
	}
	out, err := store.StructByName[T](ctx, r.q, sql, b.args...)
	if err != nil {
		return zero, r.wrap(err, "get_one")
	}
	return out, nil
}

// GetOneOrNone is GetOne with absence reported as nil instead of an error
func (r *SQL[T]) GetOneOrNone(ctx context.Context, where Where) (*T, error) {
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
// creates it from attrs when absent. When found and upsert is true, attrs
// that differ are written back. created is false on the found branch even
// when a write-back occurred
func (r *SQL[T]) GetOrCreate(ctx context.Context, attrs Where, matchFields []string, upsert bool) (T, bool, error) {
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

// Update overwrites the stored row identified by item's id and returns the
// refreshed row. Absent ids fail with a not found error before any write
func (r *SQL[T]) Update(ctx context.Context, item T) (T, error) {
	var zero T
	id := r.meta.IDValue(item)
	if _, err := r.Get(ctx, id, nil); err != nil {
		return zero, err
	}
	if r.meta.HasAudit() {
		r.meta.StampUpdate(&item, r.now().UTC())
	}

	set, args := r.updateSet(item)
	args = append(args, id)
	sql := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = $%d RETURNING %s",
		r.table, set, r.meta.IDColumn(), len(args), r.selectList(),
	)
	out, err := store.StructByName[T](ctx, r.q, sql, args...)
	if err != nil {
		return zero, r.wrap(err, "update")
	}
	return out, nil
}

// UpdateMany updates each item by id. With RETURNING support the refreshed
// rows come back and ids with no match are skipped; without it the caller's
// items are returned unchanged, so server-computed columns are not reflected
func (r *SQL[T]) UpdateMany(ctx context.Context, items []T) ([]T, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if r.meta.HasAudit() {
		now := r.now().UTC()
		for i := range items {
			r.meta.StampUpdate(&items[i], now)
		}
	}

	var out []T
	for _, it := range items {
		set, args := r.updateSet(it)
		args = append(args, r.meta.IDValue(it))
		sql := fmt.Sprintf(
			"UPDATE %s SET %s WHERE %s = $%d",
			r.table, set, r.meta.IDColumn(), len(args),
		)
		if r.dialect.UpdateReturning {
			row, err := store.StructByName[T](ctx, r.q, sql+" RETURNING "+r.selectList(), args...)
			if err != nil {
				if perr.IsCode(err, perr.ErrorCodeNotFound) {
					continue
				}
				return nil, r.wrap(err, "update_many")
			}
			out = append(out, row)
			continue
		}
		if _, err := r.q.Exec(ctx, sql, args...); err != nil {
			return nil, r.wrap(err, "update_many")
		}
	}
	if !r.dialect.UpdateReturning {
		return items, nil
	}
	return out, nil
}

// Upsert inserts item or, when a row with its id exists, overwrites it.
// Unlike Update there is no existence check and no not found failure
func (r *SQL[T]) Upsert(ctx context.Context, item T) (T, error) {
	var zero T
	if r.meta.IDIsZero(item) {
		return r.Add(ctx, item)
	}
	if r.meta.HasAudit() {
		if cur, _ := r.meta.Value(item, createdCol); isZeroValue(cur) {
			r.meta.StampCreate(&item, r.now().UTC())
		} else {
			r.meta.StampUpdate(&item, r.now().UTC())
		}
	}

	cols, args := r.insertColumns(item)
	ph := make([]string, len(cols))
	var set []string
	for i, c := range cols {
		ph[i] = fmt.Sprintf("$%d", i+1)
		if c != r.meta.IDColumn() && c != createdCol {
			set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}
	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING %s",
		r.table, strings.Join(cols, ", "), strings.Join(ph, ", "),
		r.meta.IDColumn(), strings.Join(set, ", "), r.selectList(),
	)
	out, err := store.StructByName[T](ctx, r.q, sql, args...)
	if err != nil {
		return zero, r.wrap(err, "upsert")
	}
	return out, nil
}

// Delete removes the row by id and returns it.
// Absent ids fail with a not found error
func (r *SQL[T]) Delete(ctx context.Context, id any) (T, error) {
	var zero T
	if r.dialect.DeleteReturning {
		sql := fmt.Sprintf(
			"DELETE FROM %s WHERE %s = $1 RETURNING %s",
			r.table, r.meta.IDColumn(), r.selectList(),
		)
		out, err := store.StructByName[T](ctx, r.q, sql, id)
		if err != nil {
			return zero, r.wrap(err, "delete")
		}
		return out, nil
	}

	out, err := r.Get(ctx, id, nil)
	if err != nil {
		return zero, err
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", r.table, r.meta.IDColumn())
	if _, err := r.q.Exec(ctx, sql, id); err != nil {
		return zero, r.wrap(err, "delete")
	}
	return out, nil
}

// DeleteMany removes rows by id in chunks and returns the deleted rows.
// Ids with no row are skipped silently; an empty id list is a no-op
func (r *SQL[T]) DeleteMany(ctx context.Context, ids []any) ([]T, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var out []T
	for start := 0; start < len(ids); start += deleteChunk {
		end := start + deleteChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		ph := make([]string, len(chunk))
		for i := range chunk {
			ph[i] = fmt.Sprintf("$%d", i+1)
		}
		in := fmt.Sprintf("%s IN (%s)", r.meta.IDColumn(), strings.Join(ph, ", "))

		if r.dialect.DeleteReturning {
			sql := fmt.Sprintf("DELETE FROM %s WHERE %s RETURNING %s", r.table, in, r.selectList())
			rows, err := store.StructsByName[T](ctx, r.q, sql, chunk...)
			if err != nil {
				return nil, r.wrap(err, "delete_many")
			}
			out = append(out, rows...)
			continue
		}

		sel := fmt.Sprintf("SELECT %s FROM %s WHERE %s", r.selectList(), r.table, in)
		rows, err := store.StructsByName[T](ctx, r.q, sel, chunk...)
		if err != nil {
			return nil, r.wrap(err, "delete_many")
		}
		del := fmt.Sprintf("DELETE FROM %s WHERE %s", r.table, in)
		if _, err := r.q.Exec(ctx, del, chunk...); err != nil {
			return nil, r.wrap(err, "delete_many")
		}
		out = append(out, rows...)
	}
	return out, nil
}

// Exists reports whether any row matches
func (r *SQL[T]) Exists(ctx context.Context, where Where, filters ...Filter) (bool, error) {
	n, err := r.Count(ctx, where, filters...)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Count returns the number of matching rows. Pagination and ordering
// filters are ignored so the total reflects the whole result set
func (r *SQL[T]) Count(ctx context.Context, where Where, filters ...Filter) (int64, error) {
	b := &clauseBuilder{}
	if err := r.applyFilters(b, filters, false); err != nil {
		return 0, err
	}
	if err := r.applyWhere(b, where); err != nil {
		return 0, err
	}
	sql := fmt.Sprintf("SELECT count(%s) FROM %s", r.meta.IDColumn(), r.table)
	if len(b.conds) > 0 {
		sql += " WHERE " + b.where()
	}
	n, err := store.Scalar[int64](ctx, r.q, sql, b.args...)
	if err != nil {
		return 0, r.wrap(err, "count")
	}
	return n, nil
}

// List returns all matching rows with ordering and pagination applied
func (r *SQL[T]) List(ctx context.Context, where Where, filters ...Filter) ([]T, error) {
	sql, args, err := r.listSQL(where, filters, r.selectList())
	if err != nil {
		return nil, err
	}
	out, err := store.StructsByName[T](ctx, r.q, sql, args...)
	if err != nil {
		return nil, r.wrap(err, "list")
	}
	return out, nil
}

// ListAndCount returns the page of matching rows plus the unpaginated total
// in a single round trip, via a window count selected alongside each row
func (r *SQL[T]) ListAndCount(ctx context.Context, where Where, filters ...Filter) ([]T, int64, error) {
	sql, args, err := r.listSQL(where, filters, r.selectList()+", count(*) OVER() AS _total")
	if err != nil {
		return nil, 0, err
	}
	rows, err := store.Maps(ctx, r.q, sql, args...)
	if err != nil {
		return nil, 0, r.wrap(err, "list_and_count")
	}
	if len(rows) == 0 {
		// a fully paginated-out page still needs the true total
		total, err := r.Count(ctx, where, filters...)
		if err != nil {
			return nil, 0, err
		}
		return nil, total, nil
	}

	total := toInt64(rows[0]["_total"])
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.meta.decode(row).Interface().(T))
	}
	return out, total, nil
}

// CheckHealth verifies the connection answers a trivial round trip
func CheckHealth(ctx context.Context, q Queryer) error {
	v, err := store.Scalar[int](ctx, q, "SELECT 1")
	if err != nil {
		return perr.FromPostgres(err, "health check")
	}
	if v != 1 {
		return perr.DBf("health check returned %d", v)
	}
	return nil
}

// statement assembly

func (r *SQL[T]) listSQL(where Where, filters []Filter, sel string) (string, []any, error) {
	b := &clauseBuilder{}
	if err := r.applyFilters(b, filters, true); err != nil {
		return "", nil, err
	}
	if err := r.applyWhere(b, where); err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf("SELECT %s FROM %s", sel, r.table)
	if len(b.conds) > 0 {
		sql += " WHERE " + b.where()
	}
	if len(b.order) > 0 {
		sql += " ORDER BY " + strings.Join(b.order, ", ")
	}
	if b.limit != nil {
		sql += fmt.Sprintf(" LIMIT %d OFFSET %d", b.limit.Limit, b.limit.Offset)
	}
	return sql, b.args, nil
}

// applyFilters compiles filters onto b. Pagination and ordering are only
// emitted when pagination is true; count queries pass false
func (r *SQL[T]) applyFilters(b *clauseBuilder, filters []Filter, pagination bool) error {
	for _, f := range filters {
		switch f := f.(type) {
		case BeforeAfter:
			col, err := r.column(f.Field)
			if err != nil {
				return err
			}
			if f.Before != nil {
				b.cond(fmt.Sprintf("%s < %s", col, b.arg(*f.Before)))
			}
			if f.After != nil {
				b.cond(fmt.Sprintf("%s > %s", col, b.arg(*f.After)))
			}
		case OnBeforeAfter:
			col, err := r.column(f.Field)
			if err != nil {
				return err
			}
			if f.OnOrBefore != nil {
				b.cond(fmt.Sprintf("%s <= %s", col, b.arg(*f.OnOrBefore)))
			}
			if f.OnOrAfter != nil {
				b.cond(fmt.Sprintf("%s >= %s", col, b.arg(*f.OnOrAfter)))
			}
		case CollectionFilter:
			if err := r.inClause(b, f.Field, f.Values, false); err != nil {
				return err
			}
		case NotInCollectionFilter:
			if err := r.inClause(b, f.Field, f.Values, true); err != nil {
				return err
			}
		case SearchFilter:
			if err := r.likeClause(b, f.Field, f.Value, f.IgnoreCase, false); err != nil {
				return err
			}
		case NotInSearchFilter:
			if err := r.likeClause(b, f.Field, f.Value, f.IgnoreCase, true); err != nil {
				return err
			}
		case OrderBy:
			if !pagination {
				continue // counts reject ORDER BY on some dialects and never need it
			}
			col, err := r.column(f.Field)
			if err != nil {
				return err
			}
			dir := "ASC"
			if f.Order == SortDesc {
				dir = "DESC"
			}
			b.order = append(b.order, col+" "+dir)
		case LimitOffset:
			if pagination {
				lo := f
				b.limit = &lo
			}
		default:
			return perr.DBf("unsupported filter type %T", f)
		}
	}
	return nil
}

func (r *SQL[T]) applyWhere(b *clauseBuilder, where Where) error {
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic statements regardless of map order
	for _, k := range keys {
		col, err := r.column(k)
		if err != nil {
			return err
		}
		b.cond(fmt.Sprintf("%s = %s", col, b.arg(where[k])))
	}
	return nil
}

func (r *SQL[T]) inClause(b *clauseBuilder, field string, values []any, negate bool) error {
	if len(values) == 0 {
		return nil // empty membership filter matches everything
	}
	col, err := r.column(field)
	if err != nil {
		return err
	}
	ph := make([]string, len(values))
	for i, v := range values {
		ph[i] = b.arg(v)
	}
	op := "IN"
	if negate {
		op = "NOT IN"
	}
	b.cond(fmt.Sprintf("%s %s (%s)", col, op, strings.Join(ph, ", ")))
	return nil
}

func (r *SQL[T]) likeClause(b *clauseBuilder, field, value string, ignoreCase, negate bool) error {
	col, err := r.column(field)
	if err != nil {
		return err
	}
	op := "LIKE"
	if ignoreCase {
		op = "ILIKE"
	}
	if negate {
		op = "NOT " + op
	}
	b.cond(fmt.Sprintf("%s %s %s", col, op, b.arg("%"+value+"%")))
	return nil
}

// column validates a caller-supplied field name before it is interpolated
func (r *SQL[T]) column(name string) (string, error) {
	if !r.meta.HasColumn(name) {
		return "", perr.DBf("unknown field %q in filter", name)
	}
	return name, nil
}

func (r *SQL[T]) selectList() string {
	return strings.Join(r.meta.Columns(), ", ")
}

// insertColumns picks the columns and args for an INSERT.
// A zero id is omitted so the database assigns one
func (r *SQL[T]) insertColumns(item T) ([]string, []any) {
	var cols []string
	var args []any
	for _, f := range r.meta.Fields() {
		if f.Column == r.meta.IDColumn() && r.meta.IDIsZero(item) {
			continue
		}
		v, _ := r.meta.Value(item, f.Column)
		cols = append(cols, f.Column)
		args = append(args, v)
	}
	return cols, args
}

// updateSet builds the SET clause. The id and created_at columns never
// change on update
func (r *SQL[T]) updateSet(item T) (string, []any) {
	var set []string
	var args []any
	for _, f := range r.meta.Fields() {
		if f.Column == r.meta.IDColumn() || f.Column == createdCol {
			continue
		}
		v, _ := r.meta.Value(item, f.Column)
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", f.Column, len(args)))
	}
	return strings.Join(set, ", "), args
}

func (r *SQL[T]) wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	if _, ok := perr.As(err); ok {
		return perr.WithOp(err, op)
	}
	return perr.WithOp(perr.FromPostgresWithField(err, "repository "+op), op)
}

// clauseBuilder accumulates WHERE conditions with positional args
type clauseBuilder struct {
	conds []string
	order []string
	args  []any
	limit *LimitOffset
}

func (b *clauseBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *clauseBuilder) cond(c string) { b.conds = append(b.conds, c) }
func (b *clauseBuilder) where() string { return strings.Join(b.conds, " AND ") }

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	default:
		return 0
	}
}
