package service

import (
	"context"
	"testing"

	"libris/internal/modkit/repokit"
	perr "libris/internal/platform/errors"
	"libris/internal/services/catalog/domain"
	"libris/internal/services/catalog/repo"
)

func newTestService() (*Service, repo.MemoryStores) {
	stores := repo.NewMemoryStores()
	svc := New(nil, nil, repo.NewMemory(stores), Config{DefaultLimit: 10, MaxLimit: 50})
	return svc, stores
}

func seedAuthor(t *testing.T, s *Service, name string) domain.Author {
	t.Helper()
	a, err := s.CreateAuthor(context.Background(), domain.CreateAuthorInput{Name: name})
	if err != nil {
		t.Fatalf("CreateAuthor(%q): %v", name, err)
	}
	return a
}

func TestCreateAuthor_AssignsIDAndParsesDOB(t *testing.T) {
	t.Parallel()
	s, _ := newTestService()

	a, err := s.CreateAuthor(context.Background(), domain.CreateAuthorInput{
		Name: "Agatha Christie",
		DOB:  "1890-09-15",
	})
	if err != nil {
		t.Fatalf("CreateAuthor: %v", err)
	}
	if a.ID == "" {
		t.Fatal("expected an assigned id")
	}
	if a.DOB == nil || a.DOB.Format("2006-01-02") != "1890-09-15" {
		t.Fatalf("DOB = %v, want 1890-09-15", a.DOB)
	}
	if a.CreatedAt.IsZero() || a.UpdatedAt.IsZero() {
		t.Fatal("audit timestamps not stamped")
	}
}

func TestCreateAuthor_RejectsBadDate(t *testing.T) {
	t.Parallel()
	s, stores := newTestService()

	_, err := s.CreateAuthor(context.Background(), domain.CreateAuthorInput{Name: "X", DOB: "not-a-date"})
	if !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("got %v, want invalid argument", err)
	}
	if stores.Authors.Len() != 0 {
		t.Fatal("failed create must not persist")
	}
}

func TestGetAuthor_NotFound(t *testing.T) {
	t.Parallel()
	s, _ := newTestService()

	_, err := s.GetAuthor(context.Background(), "missing")
	if !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestListAuthors_SearchOrderAndPagination(t *testing.T) {
	t.Parallel()
	s, _ := newTestService()
	ctx := context.Background()

	for _, name := range []string{"Agatha Christie", "Raymond Chandler", "Dorothy Sayers"} {
		seedAuthor(t, s, name)
	}

	// case-insensitive substring search
	items, total, err := s.ListAuthors(ctx, domain.ListAuthorsInput{Search: "chand"})
	if err != nil {
		t.Fatalf("ListAuthors: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].Name != "Raymond Chandler" {
		t.Fatalf("search got %d/%d %v", len(items), total, items)
	}

	// descending order by name
	items, _, err = s.ListAuthors(ctx, domain.ListAuthorsInput{Order: "desc"})
	if err != nil {
		t.Fatalf("ListAuthors desc: %v", err)
	}
	if items[0].Name != "Raymond Chandler" {
		t.Fatalf("desc first = %q", items[0].Name)
	}

	// pagination excludes limit from the total
	items, total, err = s.ListAuthors(ctx, domain.ListAuthorsInput{Limit: 2})
	if err != nil {
		t.Fatalf("ListAuthors limit: %v", err)
	}
	if len(items) != 2 || total != 3 {
		t.Fatalf("page got %d items total %d, want 2/3", len(items), total)
	}
}

func TestListAuthors_LimitCappedAtMax(t *testing.T) {
	t.Parallel()
	s, _ := newTestService()

	filters, err := s.authorFilters(domain.ListAuthorsInput{Limit: 10_000})
	if err != nil {
		t.Fatalf("authorFilters: %v", err)
	}
	// the last filter is always the pagination window
	lo, ok := filters[len(filters)-1].(repokit.LimitOffset)
	if !ok {
		t.Fatalf("last filter is %T, want LimitOffset", filters[len(filters)-1])
	}
	if lo.Limit != s.Cfg.MaxLimit {
		t.Fatalf("limit = %d, want capped at %d", lo.Limit, s.Cfg.MaxLimit)
	}
}

func TestUpdateAuthor_PartialUpdatePreservesCreatedAt(t *testing.T) {
	t.Parallel()
	s, _ := newTestService()
	ctx := context.Background()

	a := seedAuthor(t, s, "Agatha Christie")

	got, err := s.UpdateAuthor(ctx, a.ID, domain.UpdateAuthorInput{DOB: "1890-09-15"})
	if err != nil {
		t.Fatalf("UpdateAuthor: %v", err)
	}
	if got.Name != "Agatha Christie" {
		t.Fatalf("unset name clobbered: %q", got.Name)
	}
	if got.DOB == nil {
		t.Fatal("DOB not applied")
	}
	if !got.CreatedAt.Equal(a.CreatedAt) {
		t.Fatalf("created_at changed: %v -> %v", a.CreatedAt, got.CreatedAt)
	}
}

func TestDeleteAuthor_TakesBooksWithIt(t *testing.T) {
	t.Parallel()
	s, stores := newTestService()
	ctx := context.Background()

	a := seedAuthor(t, s, "Agatha Christie")
	other := seedAuthor(t, s, "Raymond Chandler")

	if _, err := s.CreateBook(ctx, a.ID, domain.CreateBookInput{Title: "Murder on the Orient Express"}); err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	if _, err := s.CreateBook(ctx, other.ID, domain.CreateBookInput{Title: "The Big Sleep"}); err != nil {
		t.Fatalf("CreateBook: %v", err)
	}

	if _, err := s.DeleteAuthor(ctx, a.ID); err != nil {
		t.Fatalf("DeleteAuthor: %v", err)
	}

	if stores.Books.Len() != 1 {
		t.Fatalf("books left = %d, want only the other author's", stores.Books.Len())
	}
	left, err := s.ListBooks(ctx, other.ID)
	if err != nil || len(left) != 1 || left[0].Title != "The Big Sleep" {
		t.Fatalf("other author's books disturbed: %v %v", left, err)
	}
}

func TestCreateBook_DanglingAuthorIsNotFound(t *testing.T) {
	t.Parallel()
	s, stores := newTestService()

	_, err := s.CreateBook(context.Background(), "missing", domain.CreateBookInput{Title: "Ghost"})
	if !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
	if stores.Books.Len() != 0 {
		t.Fatal("book persisted against missing author")
	}
}

func TestListBooks_SortedByTitle(t *testing.T) {
	t.Parallel()
	s, _ := newTestService()
	ctx := context.Background()

	a := seedAuthor(t, s, "Agatha Christie")
	for _, title := range []string{"Sad Cypress", "And Then There Were None", "Crooked House"} {
		if _, err := s.CreateBook(ctx, a.ID, domain.CreateBookInput{Title: title}); err != nil {
			t.Fatalf("CreateBook(%q): %v", title, err)
		}
	}

	books, err := s.ListBooks(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListBooks: %v", err)
	}
	want := []string{"And Then There Were None", "Crooked House", "Sad Cypress"}
	for i, b := range books {
		if b.Title != want[i] {
			t.Fatalf("order[%d] = %q, want %q", i, b.Title, want[i])
		}
	}
}

func TestDeleteBook_NotFound(t *testing.T) {
	t.Parallel()
	s, _ := newTestService()

	_, err := s.DeleteBook(context.Background(), "missing")
	if !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}
