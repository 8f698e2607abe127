package repokit

import (
	"testing"
	"time"
)

func TestModelOf_Metadata(t *testing.T) {
	t.Parallel()

	m, err := ModelOf[author]("id")
	if err != nil {
		t.Fatalf("ModelOf: %v", err)
	}
	if m.IDColumn() != "id" || m.IDKey() != "_id" {
		t.Fatalf("id naming: col=%s key=%s", m.IDColumn(), m.IDKey())
	}
	if !m.HasAudit() {
		t.Fatalf("author carries both audit columns")
	}
	want := []string{"id", "name", "created_at", "updated_at"}
	got := m.Columns()
	if len(got) != len(want) {
		t.Fatalf("columns: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("columns: %v", got)
		}
	}
}

func TestModelOf_RejectsNonIDModels(t *testing.T) {
	t.Parallel()

	type noid struct {
		Name string `db:"name"`
	}
	if _, err := ModelOf[noid]("id"); err == nil {
		t.Fatalf("model without the id attribute must be rejected")
	}
}

func TestModel_IDAccess(t *testing.T) {
	t.Parallel()

	m, _ := ModelOf[author]("id")
	a := author{Name: "x"}
	if !m.IDIsZero(a) {
		t.Fatalf("fresh item should have a zero id")
	}
	if err := m.SetID(&a, "a1"); err != nil {
		t.Fatalf("SetID: %v", err)
	}
	if m.IDValue(a) != "a1" || m.IDIsZero(a) {
		t.Fatalf("id round trip: %+v", a)
	}
}

func TestModel_Stamping(t *testing.T) {
	t.Parallel()

	m, _ := ModelOf[author]("id")
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	var a author
	m.StampCreate(&a, now)
	if !a.CreatedAt.Equal(now) || !a.UpdatedAt.Equal(now) {
		t.Fatalf("StampCreate: %+v", a)
	}
	m.StampUpdate(&a, later)
	if !a.CreatedAt.Equal(now) {
		t.Fatalf("StampUpdate must not touch created_at: %+v", a)
	}
	if !a.UpdatedAt.Equal(later) {
		t.Fatalf("StampUpdate: %+v", a)
	}
}

func TestModel_Decode(t *testing.T) {
	t.Parallel()

	m, _ := ModelOf[author]("id")
	now := time.Now()
	v := m.decode(map[string]any{
		"id":         "a1",
		"name":       []byte("bytes become strings"),
		"created_at": now,
		"ignored":    "extra columns are fine",
	})
	a := v.Interface().(author)
	if a.ID != "a1" || a.Name != "bytes become strings" || !a.CreatedAt.Equal(now) {
		t.Fatalf("decode: %+v", a)
	}
}

func TestModel_ValueAndSetValue(t *testing.T) {
	t.Parallel()

	m, _ := ModelOf[author]("id")
	a := author{Name: "before"}

	got, ok := m.Value(a, "name")
	if !ok || got != "before" {
		t.Fatalf("Value: %v %v", got, ok)
	}
	if _, ok := m.Value(a, "bogus"); ok {
		t.Fatalf("unknown column should miss")
	}
	if err := m.SetValue(&a, "name", "after"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if a.Name != "after" {
		t.Fatalf("SetValue did not apply: %+v", a)
	}
	if err := m.SetValue(&a, "bogus", 1); err == nil {
		t.Fatalf("unknown column must fail")
	}
	if err := m.SetValue(a, "name", "x"); err == nil {
		t.Fatalf("non-pointer target must fail")
	}
}
