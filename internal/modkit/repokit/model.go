package repokit

import (
	"reflect"
	"strings"
	"time"

	perr "libris/internal/platform/errors"
)

// createdCol and updatedCol are the audit timestamp column names.
// Models that carry both get created_at stamped on insert and
// updated_at stamped on every insert and update
const (
	createdCol = "created_at"
	updatedCol = "updated_at"
)

// Field describes one exported struct field of a model
type Field struct {
	// Name is the Go field name
	Name string

	// Column is the SQL column name (db tag, or lowercased field name)
	Column string

	// BSON is the document key (bson tag, or lowercased field name)
	BSON string

	index int
}

// Model holds reflection metadata for a repository's row/document type.
// Built once per repository instance; all per-item access goes through it
type Model struct {
	typ      reflect.Type
	fields   []Field
	byColumn map[string]int
	byBSON   map[string]int

	idIdx      int
	createdIdx int
	updatedIdx int
}

// ModelOf builds metadata for T, which must be a struct type.
// idAttribute names the id column ("id" for SQL models, "_id" for documents)
func ModelOf[T any](idAttribute string) (*Model, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Struct {
		return nil, perr.DBf("model type %s is not a struct", t)
	}

	m := &Model{
		typ:        t,
		byColumn:   make(map[string]int),
		byBSON:     make(map[string]int),
		idIdx:      -1,
		createdIdx: -1,
		updatedIdx: -1,
	}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" { // unexported
			continue
		}

		col := tagName(sf.Tag.Get("db"))
		if col == "-" {
			continue
		}
		if col == "" {
			col = strings.ToLower(sf.Name)
		}
		doc := tagName(sf.Tag.Get("bson"))
		if doc == "" || doc == "-" {
			doc = strings.ToLower(sf.Name)
		}

		idx := len(m.fields)
		m.fields = append(m.fields, Field{Name: sf.Name, Column: col, BSON: doc, index: i})
		m.byColumn[col] = idx
		m.byBSON[doc] = idx

		if col == createdCol || doc == createdCol {
			m.createdIdx = idx
		}
		if col == updatedCol || doc == updatedCol {
			m.updatedIdx = idx
		}
		if col == idAttribute || doc == idAttribute {
			m.idIdx = idx
		}
	}

	if m.idIdx < 0 {
		return nil, perr.DBf("model type %s has no %q field", t, idAttribute)
	}
	return m, nil
}

// tagName strips tag options like ",omitempty"
func tagName(tag string) string {
	if i := strings.Index(tag, ","); i >= 0 {
		return tag[:i]
	}
	return tag
}

// Fields returns the model's fields in declaration order
func (m *Model) Fields() []Field { return m.fields }

// Columns returns all SQL column names in declaration order
func (m *Model) Columns() []string {
	out := make([]string, len(m.fields))
	for i, f := range m.fields {
		out[i] = f.Column
	}
	return out
}

// IDColumn returns the id column name
func (m *Model) IDColumn() string { return m.fields[m.idIdx].Column }

// IDKey returns the id document key
func (m *Model) IDKey() string { return m.fields[m.idIdx].BSON }

// HasColumn reports whether col names a real model field
func (m *Model) HasColumn(col string) bool {
	_, ok := m.byColumn[col]
	return ok
}

// HasKey reports whether key names a real document field
func (m *Model) HasKey(key string) bool {
	_, ok := m.byBSON[key]
	return ok
}

// KeyValue returns the field value addressed by document key
func (m *Model) KeyValue(item any, key string) (any, bool) {
	idx, ok := m.byBSON[key]
	if !ok {
		return nil, false
	}
	rv := reflect.Indirect(reflect.ValueOf(item))
	return rv.Field(m.fields[idx].index).Interface(), true
}

// HasAudit reports whether the model carries both audit timestamps
func (m *Model) HasAudit() bool { return m.createdIdx >= 0 && m.updatedIdx >= 0 }

// IDValue returns the item's id field value
func (m *Model) IDValue(item any) any {
	rv := reflect.Indirect(reflect.ValueOf(item))
	return rv.Field(m.fields[m.idIdx].index).Interface()
}

// IDIsZero reports whether the item's id is its type's zero value
func (m *Model) IDIsZero(item any) bool {
	rv := reflect.Indirect(reflect.ValueOf(item))
	return rv.Field(m.fields[m.idIdx].index).IsZero()
}

// SetID assigns id into the item's id field. item must be a pointer
func (m *Model) SetID(item any, id any) error {
	return m.setByIndex(item, m.idIdx, id)
}

// Value returns the field value addressed by SQL column name
func (m *Model) Value(item any, col string) (any, bool) {
	idx, ok := m.byColumn[col]
	if !ok {
		return nil, false
	}
	rv := reflect.Indirect(reflect.ValueOf(item))
	return rv.Field(m.fields[idx].index).Interface(), true
}

// SetValue assigns v into the field addressed by SQL column name.
// item must be a pointer
func (m *Model) SetValue(item any, col string, v any) error {
	idx, ok := m.byColumn[col]
	if !ok {
		return perr.DBf("unknown field %q on %s", col, m.typ)
	}
	return m.setByIndex(item, idx, v)
}

// StampCreate sets both audit timestamps, when present. item must be a pointer
func (m *Model) StampCreate(item any, now time.Time) {
	if m.createdIdx >= 0 {
		_ = m.setByIndex(item, m.createdIdx, now)
	}
	if m.updatedIdx >= 0 {
		_ = m.setByIndex(item, m.updatedIdx, now)
	}
}

// StampUpdate sets updated_at only, when present. item must be a pointer
func (m *Model) StampUpdate(item any, now time.Time) {
	if m.updatedIdx >= 0 {
		_ = m.setByIndex(item, m.updatedIdx, now)
	}
}

func (m *Model) setByIndex(item any, idx int, v any) error {
	rv := reflect.ValueOf(item)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return perr.DBf("cannot set field on non-pointer %s", m.typ)
	}
	fv := rv.Elem().Field(m.fields[idx].index)
	if !assignValue(fv, v) {
		return perr.DBf("cannot assign %T to field %s.%s", v, m.typ, m.fields[idx].Name)
	}
	return nil
}

// decode builds a fresh model value from a column -> value map.
// Unknown keys are ignored so callers may select extra columns
func (m *Model) decode(row map[string]any) reflect.Value {
	rv := reflect.New(m.typ).Elem()
	for col, val := range row {
		idx, ok := m.byColumn[col]
		if !ok {
			continue
		}
		assignValue(rv.Field(m.fields[idx].index), val)
	}
	return rv
}

// assignValue sets src into dst with the conversions row scanning needs
func assignValue(dst reflect.Value, src any) bool {
	if !dst.CanSet() {
		return false
	}
	if src == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return true
	}
	sv := reflect.ValueOf(src)

	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return true
	}

	// time never converts numerically; handle pointer/value mismatch first
	if t, ok := src.(time.Time); ok {
		if dst.Type() == reflect.TypeOf(&time.Time{}) {
			dst.Set(reflect.ValueOf(&t))
			return true
		}
	}
	if pt, ok := src.(*time.Time); ok && dst.Type() == reflect.TypeOf(time.Time{}) {
		if pt != nil {
			dst.Set(reflect.ValueOf(*pt))
		} else {
			dst.Set(reflect.Zero(dst.Type()))
		}
		return true
	}

	if sv.Type().ConvertibleTo(dst.Type()) && sv.Kind() != reflect.String {
		dst.Set(sv.Convert(dst.Type()))
		return true
	}

	if b, ok := src.([]byte); ok && dst.Kind() == reflect.String {
		dst.SetString(string(b))
		return true
	}
	if s, ok := src.(string); ok {
		if dst.Kind() == reflect.String {
			dst.SetString(s)
			return true
		}
		if dst.Kind() == reflect.Slice && dst.Type().Elem().Kind() == reflect.Uint8 {
			dst.SetBytes([]byte(s))
			return true
		}
	}

	// pointer target from plain value
	if dst.Kind() == reflect.Pointer && sv.Type().AssignableTo(dst.Type().Elem()) {
		p := reflect.New(dst.Type().Elem())
		p.Elem().Set(sv)
		dst.Set(p)
		return true
	}
	return false
}
