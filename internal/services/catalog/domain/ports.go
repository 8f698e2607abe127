package domain

import "context"

// AuthorsPort is the author-facing surface other modules may depend on
type AuthorsPort interface {
	CreateAuthor(ctx context.Context, in CreateAuthorInput) (Author, error)
	GetAuthor(ctx context.Context, id string) (Author, error)
	ListAuthors(ctx context.Context, in ListAuthorsInput) ([]Author, int64, error)
	UpdateAuthor(ctx context.Context, id string, in UpdateAuthorInput) (Author, error)
	DeleteAuthor(ctx context.Context, id string) (Author, error)
}

// BooksPort is the book-facing surface other modules may depend on
type BooksPort interface {
	CreateBook(ctx context.Context, authorID string, in CreateBookInput) (Book, error)
	ListBooks(ctx context.Context, authorID string) ([]Book, error)
	DeleteBook(ctx context.Context, id string) (Book, error)
}
