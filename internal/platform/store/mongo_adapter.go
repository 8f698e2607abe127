package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"

	"libris/internal/platform/store/mg"
)

// Documents is the seam document repositories bind against
type Documents interface {
	Collection(name string) *mongo.Collection
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// newMongoAdapter wraps an existing *mg.MG as the Documents seam
func newMongoAdapter(m *mg.MG) Documents {
	return &mongoAdapter{inner: m}
}

// mongoAdapter adapts *mg.MG to the store.Documents interface
type mongoAdapter struct {
	inner *mg.MG
}

var _ Documents = (*mongoAdapter)(nil)

func (a *mongoAdapter) Collection(name string) *mongo.Collection {
	return a.inner.Collection(name)
}

func (a *mongoAdapter) Ping(ctx context.Context) error {
	if a == nil || a.inner == nil {
		return errors.New("store: nil mongo adapter")
	}
	return a.inner.Ping(ctx)
}

func (a *mongoAdapter) Close(ctx context.Context) error { return a.inner.Close(ctx) }
