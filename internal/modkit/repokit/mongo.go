package repokit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	perr "libris/internal/platform/errors"
)

// MongoRepo is a generic repository over one collection. The collection
// handle is supplied at construction; the repository never opens clients
type MongoRepo[T any] struct {
	coll  *mongo.Collection
	idKey string
	meta  *Model
	now   func() time.Time
}

// MongoOption mutates a Mongo repository during construction
type MongoOption[T any] func(*MongoRepo[T])

// WithIDKey overrides the id document key (default "_id")
func WithIDKey[T any](key string) MongoOption[T] {
	return func(r *MongoRepo[T]) { r.idKey = key }
}

// WithMongoClock overrides the audit timestamp source
func WithMongoClock[T any](now func() time.Time) MongoOption[T] {
	return func(r *MongoRepo[T]) { r.now = now }
}

// NewMongo builds a repository for T over the given collection
func NewMongo[T any](coll *mongo.Collection, opts ...MongoOption[T]) (*MongoRepo[T], error) {
	if coll == nil {
		return nil, perr.DBf("nil collection")
	}
	r := &MongoRepo[T]{
		coll:  coll,
		idKey: "_id",
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	meta, err := ModelOf[T](r.idKey)
	if err != nil {
		return nil, err
	}
	r.meta = meta
	return r, nil
}

// Model exposes the repository's field metadata
func (r *MongoRepo[T]) Model() *Model { return r.meta }

// buildQuery compiles filters into one flat query document, then merges
// where on top so explicit predicates win over filter-derived ones
func (r *MongoRepo[T]) buildQuery(filters []Filter, where Where) (bson.M, error) {
	q := bson.M{}
	for _, f := range filters {
		switch f := f.(type) {
		case BeforeAfter:
			sub := r.bounds(q, f.Field)
			if f.Before != nil {
				sub["$lt"] = *f.Before
			}
			if f.After != nil {
				sub["$gt"] = *f.After
			}
		case OnBeforeAfter:
			sub := r.bounds(q, f.Field)
			if f.OnOrBefore != nil {
				sub["$lte"] = *f.OnOrBefore
			}
			if f.OnOrAfter != nil {
				sub["$gte"] = *f.OnOrAfter
			}
		case CollectionFilter:
			if len(f.Values) == 0 {
				continue
			}
			q[f.Field] = bson.M{"$in": f.Values}
		case NotInCollectionFilter:
			if len(f.Values) == 0 {
				continue
			}
			q[f.Field] = bson.M{"$nin": f.Values}
		case SearchFilter:
			m := bson.M{"$regex": f.Value}
			if f.IgnoreCase {
				m["$options"] = "i"
			}
			q[f.Field] = m
		case NotInSearchFilter:
			opt := ""
			if f.IgnoreCase {
				opt = "i"
			}
			q[f.Field] = bson.M{"$not": primitive.Regex{Pattern: f.Value, Options: opt}}
		default:
			// ordering and pagination never ride the document query path
			return nil, perr.DBf("filter %T is not supported by the document backend", f)
		}
	}
	for k, v := range where {
		if !r.meta.HasKey(k) {
			return nil, perr.DBf("unknown field %q in predicate", k)
		}
		q[k] = v
	}
	return q, nil
}

// bounds returns the mutable range sub-document for a field, so adding one
// bound never clobbers the other
func (r *MongoRepo[T]) bounds(q bson.M, field string) bson.M {
	if existing, ok := q[field].(bson.M); ok {
		return existing
	}
	sub := bson.M{}
	q[field] = sub
	return sub
}

// Add inserts item. The driver-assigned id is written back when the item
// arrived without one
func (r *MongoRepo[T]) Add(ctx context.Context, item T) (T, error) {
	var zero T
	if r.meta.HasAudit() {
		r.meta.StampCreate(&item, r.now().UTC())
	}
	hadID := !r.meta.IDIsZero(item)
	res, err := r.coll.InsertOne(ctx, item)
	if err != nil {
		return zero, r.wrap(err, "add")
	}
	if !hadID && res.InsertedID != nil {
		if err := r.meta.SetID(&item, res.InsertedID); err != nil {
			return zero, err
		}
	}
	return item, nil
}

// AddMany inserts all items in one call sharing a single timestamp
func (r *MongoRepo[T]) AddMany(ctx context.Context, items []T) ([]T, error) {
	if len(items) == 0 {
		return nil, nil
	}
	now := r.now().UTC()
	docs := make([]any, len(items))
	for i := range items {
		if r.meta.HasAudit() {
			r.meta.StampCreate(&items[i], now)
		}
		docs[i] = items[i]
	}
	res, err := r.coll.InsertMany(ctx, docs)
	if err != nil {
		return nil, r.wrap(err, "add_many")
	}
	for i, id := range res.InsertedIDs {
		if i < len(items) && r.meta.IDIsZero(items[i]) && id != nil {
			if err := r.meta.SetID(&items[i], id); err != nil {
				return nil, err
			}
		}
	}
	return items, nil
}

// Get fetches one document by id, optionally narrowed by where
func (r *MongoRepo[T]) Get(ctx context.Context, id any, where Where) (T, error) {
	var zero T
	query, err := r.buildQuery(nil, where)
	if err != nil {
		return zero, err
	}
	query[r.idKey] = id
	var out T
	if err := r.coll.FindOne(ctx, query).Decode(&out); err != nil {
		return zero, r.wrap(err, "get")
	}
	return out, nil
}

// GetOne fetches the first document matching where; absence fails not found
func (r *MongoRepo[T]) GetOne(ctx context.Context, where Where) (T, error) {
	var zero T
	query, err := r.buildQuery(nil, where)
	if err != nil {
		return zero, err
	}
	var out T
	if err := r.coll.FindOne(ctx, query).Decode(&out); err != nil {
		return zero, r.wrap(err, "get_one")
	}
	return out, nil
}

// GetOneOrNone is GetOne with absence reported as nil instead of an error
func (r *MongoRepo[T]) GetOneOrNone(ctx context.Context, where Where) (*T, error) {
	out, err := r.GetOne(ctx, where)
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// GetOrCreate looks a document up by matchFields (all attrs when nil) and
// creates it from attrs when absent; created is false on the found branch
func (r *MongoRepo[T]) GetOrCreate(ctx context.Context, attrs Where, matchFields []string, upsert bool) (T, bool, error) {
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
			if err := r.setByKey(&item, k, v); err != nil {
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
			cur, _ := r.meta.KeyValue(*existing, k)
			if !looseEqual(cur, v) {
				if err := r.setByKey(existing, k, v); err != nil {
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

func (r *MongoRepo[T]) setByKey(item any, key string, v any) error {
	for _, f := range r.meta.Fields() {
		if f.BSON == key {
			return r.meta.SetValue(item, f.Column, v)
		}
	}
	return perr.DBf("unknown field %q on document", key)
}

// Update overwrites the document with item's id via $set and returns the
// post-update document. A missing id fails not found
func (r *MongoRepo[T]) Update(ctx context.Context, item T) (T, error) {
	var zero T
	if r.meta.HasAudit() {
		r.meta.StampUpdate(&item, r.now().UTC())
	}
	after := options.After
	var out T
	err := r.coll.FindOneAndUpdate(
		ctx,
		bson.M{r.idKey: r.meta.IDValue(item)},
		bson.M{"$set": r.setDoc(item, false)},
		&options.FindOneAndUpdateOptions{ReturnDocument: &after},
	).Decode(&out)
	if err != nil {
		return zero, r.wrap(err, "update")
	}
	return out, nil
}

// UpdateMany submits one update per document in a single bulk write.
// A matched count short of the input length fails the whole call as not
// found; updates already applied inside the batch are not rolled back
func (r *MongoRepo[T]) UpdateMany(ctx context.Context, items []T) ([]T, error) {
	if len(items) == 0 {
		return nil, nil
	}
	now := r.now().UTC()
	writes := make([]mongo.WriteModel, len(items))
	for i := range items {
		if r.meta.HasAudit() {
			r.meta.StampUpdate(&items[i], now)
		}
		writes[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.M{r.idKey: r.meta.IDValue(items[i])}).
			SetUpdate(bson.M{"$set": r.setDoc(items[i], false)})
	}
	res, err := r.coll.BulkWrite(ctx, writes)
	if err != nil {
		return nil, r.wrap(err, "update_many")
	}
	if res.MatchedCount != int64(len(items)) {
		return nil, perr.NotFoundf("update matched %d of %d documents", res.MatchedCount, len(items))
	}
	return items, nil
}

// Upsert updates the document with item's id, inserting when absent
func (r *MongoRepo[T]) Upsert(ctx context.Context, item T) (T, error) {
	var zero T
	if r.meta.IDIsZero(item) {
		return r.Add(ctx, item)
	}
	now := r.now().UTC()
	update := bson.M{"$set": r.setDoc(item, false)}
	if r.meta.HasAudit() {
		r.meta.StampUpdate(&item, now)
		update["$set"] = r.setDoc(item, false)
		update["$setOnInsert"] = bson.M{createdCol: now}
	}
	after := options.After
	upsert := true
	var out T
	err := r.coll.FindOneAndUpdate(
		ctx,
		bson.M{r.idKey: r.meta.IDValue(item)},
		update,
		&options.FindOneAndUpdateOptions{ReturnDocument: &after, Upsert: &upsert},
	).Decode(&out)
	if err != nil {
		return zero, r.wrap(err, "upsert")
	}
	return out, nil
}

// Delete removes the document by id and returns it
func (r *MongoRepo[T]) Delete(ctx context.Context, id any) (T, error) {
	var zero T
	var out T
	if err := r.coll.FindOneAndDelete(ctx, bson.M{r.idKey: id}).Decode(&out); err != nil {
		return zero, r.wrap(err, "delete")
	}
	return out, nil
}

// DeleteMany finds the matching documents first so there is something to
// return, then deletes them in one call. An empty id list is a no-op
func (r *MongoRepo[T]) DeleteMany(ctx context.Context, ids []any) ([]T, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	filter := bson.M{r.idKey: bson.M{"$in": ids}}
	cur, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, r.wrap(err, "delete_many")
	}
	var out []T
	if err := cur.All(ctx, &out); err != nil {
		return nil, r.wrap(err, "delete_many")
	}
	if _, err := r.coll.DeleteMany(ctx, filter); err != nil {
		return nil, r.wrap(err, "delete_many")
	}
	return out, nil
}

// Exists reports whether any document matches
func (r *MongoRepo[T]) Exists(ctx context.Context, where Where, filters ...Filter) (bool, error) {
	n, err := r.Count(ctx, where, filters...)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Count returns the number of matching documents
func (r *MongoRepo[T]) Count(ctx context.Context, where Where, filters ...Filter) (int64, error) {
	query, err := r.buildQuery(filters, where)
	if err != nil {
		return 0, err
	}
	n, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		return 0, r.wrap(err, "count")
	}
	return n, nil
}

// List returns all matching documents, materializing the full cursor
func (r *MongoRepo[T]) List(ctx context.Context, where Where, filters ...Filter) ([]T, error) {
	query, err := r.buildQuery(filters, where)
	if err != nil {
		return nil, err
	}
	cur, err := r.coll.Find(ctx, query)
	if err != nil {
		return nil, r.wrap(err, "list")
	}
	var out []T
	if err := cur.All(ctx, &out); err != nil {
		return nil, r.wrap(err, "list")
	}
	return out, nil
}

// ListAndCount returns the matching documents and their count. The count
// is the length of the materialized result, not a server-side total; this
// differs from the SQL backend's windowed count and is intentional
func (r *MongoRepo[T]) ListAndCount(ctx context.Context, where Where, filters ...Filter) ([]T, int64, error) {
	out, err := r.List(ctx, where, filters...)
	if err != nil {
		return nil, 0, err
	}
	return out, int64(len(out)), nil
}

// setDoc builds a $set document from item. The id never changes; created_at
// is included only when withCreated is set
func (r *MongoRepo[T]) setDoc(item T, withCreated bool) bson.M {
	doc := bson.M{}
	for _, f := range r.meta.Fields() {
		if f.BSON == r.idKey {
			continue
		}
		if !withCreated && (f.Column == createdCol || f.BSON == createdCol) {
			continue
		}
		v, _ := r.meta.Value(item, f.Column)
		doc[f.BSON] = v
	}
	return doc
}

func (r *MongoRepo[T]) wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	if _, ok := perr.As(err); ok {
		return perr.WithOp(err, op)
	}
	return perr.WithOp(perr.FromMongo(err, "repository "+op), op)
}
