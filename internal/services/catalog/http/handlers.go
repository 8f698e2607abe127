// Package http provides http transport for the catalog
package http

import (
	stdhttp "net/http"
	"strconv"

	"libris/internal/modkit/httpkit"
	perr "libris/internal/platform/errors"
	"libris/internal/platform/logger"
	"libris/internal/services/catalog/domain"
	svc "libris/internal/services/catalog/service"
)

// Register mounts all catalog endpoints on the given router
func Register(r httpkit.Router, s *svc.Service) {
	RegisterRead(r, s)
	RegisterWrite(r, s)
}

// RegisterRead mounts the read-only catalog endpoints
func RegisterRead(r httpkit.Router, s *svc.Service) {
	h := &handlers{svc: s}

	httpkit.Get(r, "/authors", h.listAuthors)
	httpkit.Get(r, "/authors/{id}", h.getAuthor)
	httpkit.Get(r, "/authors/{id}/books", h.listBooks)
}

// RegisterWrite mounts the mutating catalog endpoints
// modules may mount these behind bearer auth
func RegisterWrite(r httpkit.Router, s *svc.Service) {
	h := &handlers{svc: s}

	httpkit.PostJSON[domain.CreateAuthorInput](r, "/authors", h.createAuthor)
	httpkit.PatchJSON[domain.UpdateAuthorInput](r, "/authors/{id}", h.updateAuthor)
	httpkit.Delete(r, "/authors/{id}", h.deleteAuthor)

	httpkit.PostJSON[domain.CreateBookInput](r, "/authors/{id}/books", h.createBook)
	httpkit.Delete(r, "/books/{id}", h.deleteBook)
}

type handlers struct{ svc *svc.Service }

// @Summary Create author
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body domain.CreateAuthorInput true "Author"
// @Success 200 {object} domain.Author "ok"
// @Router /catalog/authors [post]
func (h *handlers) createAuthor(r *stdhttp.Request, in domain.CreateAuthorInput) (any, error) {
	return h.svc.CreateAuthor(r.Context(), in)
}

// @Summary List authors
// @Tags Catalog
// @Produce json
// @Param search query string false "substring match on name"
// @Param before query string false "created before date YYYY-MM-DD"
// @Param after query string false "created after date YYYY-MM-DD"
// @Param order query string false "asc or desc"
// @Param limit query int false "page size"
// @Param offset query int false "page start"
// @Success 200 {array} domain.Author "ok"
// @Router /catalog/authors [get]
func (h *handlers) listAuthors(r *stdhttp.Request) (any, error) {
	in, err := listInputFromQuery(r)
	if err != nil {
		return nil, err
	}
	items, total, err := h.svc.ListAuthors(r.Context(), in)
	if err != nil {
		return nil, err
	}
	size := in.Limit
	if size <= 0 {
		size = len(items)
	}
	page := 0
	if size > 0 {
		page = in.Offset / size
	}
	return httpkit.List(items, int(total), page, size, ""), nil
}

// @Summary Get author by id
// @Tags Catalog
// @Produce json
// @Param id path string true "author id"
// @Success 200 {object} domain.Author "ok"
// @Router /catalog/authors/{id} [get]
func (h *handlers) getAuthor(r *stdhttp.Request) (any, error) {
	return h.svc.GetAuthor(r.Context(), httpkit.Param(r, "id"))
}

// @Summary Update author
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "author id"
// @Param payload body domain.UpdateAuthorInput true "Fields to change"
// @Success 200 {object} domain.Author "ok"
// @Router /catalog/authors/{id} [patch]
func (h *handlers) updateAuthor(r *stdhttp.Request, in domain.UpdateAuthorInput) (any, error) {
	return h.svc.UpdateAuthor(r.Context(), httpkit.Param(r, "id"), in)
}

// @Summary Delete author and their books
// @Tags Catalog
// @Produce json
// @Param id path string true "author id"
// @Success 200 {object} domain.Author "ok"
// @Router /catalog/authors/{id} [delete]
func (h *handlers) deleteAuthor(r *stdhttp.Request) (any, error) {
	out, err := h.svc.DeleteAuthor(r.Context(), httpkit.Param(r, "id"))
	if err == nil {
		auditDelete(r, "author", out.ID)
	}
	return out, err
}

// @Summary Create book under an author
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "author id"
// @Param payload body domain.CreateBookInput true "Book"
// @Success 200 {object} domain.Book "ok"
// @Router /catalog/authors/{id}/books [post]
func (h *handlers) createBook(r *stdhttp.Request, in domain.CreateBookInput) (any, error) {
	return h.svc.CreateBook(r.Context(), httpkit.Param(r, "id"), in)
}

// @Summary List an author's books
// @Tags Catalog
// @Produce json
// @Param id path string true "author id"
// @Success 200 {array} domain.Book "ok"
// @Router /catalog/authors/{id}/books [get]
func (h *handlers) listBooks(r *stdhttp.Request) (any, error) {
	return h.svc.ListBooks(r.Context(), httpkit.Param(r, "id"))
}

// @Summary Delete book
// @Tags Catalog
// @Produce json
// @Param id path string true "book id"
// @Success 200 {object} domain.Book "ok"
// @Router /catalog/books/{id} [delete]
func (h *handlers) deleteBook(r *stdhttp.Request) (any, error) {
	out, err := h.svc.DeleteBook(r.Context(), httpkit.Param(r, "id"))
	if err == nil {
		auditDelete(r, "book", out.ID)
	}
	return out, err
}

// auditDelete records who removed what, actor is empty on unauthenticated mounts
func auditDelete(r *stdhttp.Request, kind, id string) {
	uid, _ := httpkit.User(r)
	logger.C(r.Context()).Info().
		Str("actor", uid).
		Str(kind+"_id", id).
		Msg(kind + " deleted")
}

// listInputFromQuery decodes list options from the query string
func listInputFromQuery(r *stdhttp.Request) (domain.ListAuthorsInput, error) {
	q := r.URL.Query()
	in := domain.ListAuthorsInput{
		Search: q.Get("search"),
		Before: q.Get("before"),
		After:  q.Get("after"),
		Order:  q.Get("order"),
	}
	var err error
	if in.Limit, err = queryInt(q.Get("limit")); err != nil {
		return in, err
	}
	if in.Offset, err = queryInt(q.Get("offset")); err != nil {
		return in, err
	}
	return in, nil
}

func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, perr.InvalidArgf("bad integer %q", s)
	}
	return n, nil
}
