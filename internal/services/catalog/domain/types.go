// Package domain defines core types and interfaces for the catalog
package domain

import "time"

// Author is a catalog author row
// tags cover all three backends: db for sql scan, bson for documents, json for transport
type Author struct {
	ID        string     `db:"id" bson:"_id,omitempty" json:"id"`
	Name      string     `db:"name" bson:"name" json:"name"`
	DOB       *time.Time `db:"dob" bson:"dob,omitempty" json:"dob,omitempty"`
	CreatedAt time.Time  `db:"created_at" bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" bson:"updated_at" json:"updated_at"`
}

// Book is a catalog book row owned by exactly one author
type Book struct {
	ID        string    `db:"id" bson:"_id,omitempty" json:"id"`
	Title     string    `db:"title" bson:"title" json:"title"`
	AuthorID  string    `db:"author_id" bson:"author_id" json:"author_id"`
	CreatedAt time.Time `db:"created_at" bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" bson:"updated_at" json:"updated_at"`
}
