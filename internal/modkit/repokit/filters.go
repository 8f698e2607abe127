package repokit

import "time"

// SortOrder is the direction of an OrderBy filter
type SortOrder string

const (
	// SortAsc sorts ascending
	SortAsc SortOrder = "asc"

	// SortDesc sorts descending
	SortDesc SortOrder = "desc"
)

// Filter is one query constraint. It is a closed set: backends dispatch by
// type switch and treat anything else as a programmer error. Values are
// immutable once constructed; the same filter works against every backend
// that supports its kind
type Filter interface {
	isFilter()
}

// BeforeAfter bounds a timestamp field with strict < and >.
// Either bound may be nil
type BeforeAfter struct {
	Field  string
	Before *time.Time
	After  *time.Time
}

// OnBeforeAfter is the inclusive variant of BeforeAfter (<= and >=)
type OnBeforeAfter struct {
	Field      string
	OnOrBefore *time.Time
	OnOrAfter  *time.Time
}

// CollectionFilter keeps rows whose field is one of Values.
// Empty Values means the filter does not apply (matches everything)
type CollectionFilter struct {
	Field  string
	Values []any
}

// NotInCollectionFilter keeps rows whose field is none of Values.
// Empty Values means the filter does not apply
type NotInCollectionFilter struct {
	Field  string
	Values []any
}

// SearchFilter keeps rows whose field contains Value as a substring
type SearchFilter struct {
	Field      string
	Value      string
	IgnoreCase bool
}

// NotInSearchFilter keeps rows whose field does not contain Value
type NotInSearchFilter struct {
	Field      string
	Value      string
	IgnoreCase bool
}

// OrderBy sorts the result set by a field
type OrderBy struct {
	Field string
	Order SortOrder
}

// LimitOffset paginates the result set. At most one per query; it is
// applied after every row-selecting constraint
type LimitOffset struct {
	Limit  int
	Offset int
}

func (BeforeAfter) isFilter()           {}
func (OnBeforeAfter) isFilter()         {}
func (CollectionFilter) isFilter()      {}
func (NotInCollectionFilter) isFilter() {}
func (SearchFilter) isFilter()          {}
func (NotInSearchFilter) isFilter()     {}
func (OrderBy) isFilter()               {}
func (LimitOffset) isFilter()           {}

// Where is an AND-semantics equality predicate keyed by field name.
// Keys must name real model fields; backends reject unknown keys
type Where map[string]any

// IDs lifts a typed id slice into filter values
func IDs[T any](ids []T) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
