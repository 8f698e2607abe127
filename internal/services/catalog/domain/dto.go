// Package domain holds DTOs for catalog http and service contracts
package domain

// CreateAuthorInput is the payload for creating an author
type CreateAuthorInput struct {
	Name string `json:"name" validate:"required,min=1,max=200" example:"Agatha Christie"`
	DOB  string `json:"dob,omitempty" validate:"omitempty,datetime=2006-01-02" example:"1890-09-15"`
}

// UpdateAuthorInput is the payload for a partial author update
// zero fields are left untouched
type UpdateAuthorInput struct {
	Name string `json:"name,omitempty" validate:"omitempty,min=1,max=200" example:"Agatha Christie"`
	DOB  string `json:"dob,omitempty" validate:"omitempty,datetime=2006-01-02" example:"1890-09-15"`
}

// ListAuthorsInput carries the query window and filters for listing
// Search matches name case-insensitively; Before/After bound created_at
type ListAuthorsInput struct {
	Search string `json:"search,omitempty"`
	Before string `json:"before,omitempty" validate:"omitempty,datetime=2006-01-02"`
	After  string `json:"after,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Order  string `json:"order,omitempty" validate:"omitempty,oneof=asc desc"`
	Limit  int    `json:"limit,omitempty" validate:"omitempty,min=1,max=500"`
	Offset int    `json:"offset,omitempty" validate:"omitempty,min=0"`
}

// CreateBookInput is the payload for creating a book under an author
type CreateBookInput struct {
	Title string `json:"title" validate:"required,min=1,max=500" example:"Murder on the Orient Express"`
}
