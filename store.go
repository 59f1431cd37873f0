package mongopager

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// FindOptions narrows a find query. Zero values mean "not set".
type FindOptions struct {
	Sort       bson.D
	Skip       int64
	Limit      int64
	Projection bson.M
}

// Collection is the document-query interface the pagers and loaders consume.
// It is implemented by MongoCollection and by test doubles; this package never
// owns the storage engine behind it.
type Collection interface {
	// Name returns the collection name. Used for cache key derivation.
	Name() string

	// Find decodes matching documents into dest, which must be a pointer to
	// a slice.
	Find(ctx context.Context, filter bson.M, opts *FindOptions, dest any) error

	// Count returns the exact number of documents matching the filter.
	Count(ctx context.Context, filter bson.M) (int64, error)

	// EstimatedCount returns the approximate document count from
	// collection-level statistics.
	EstimatedCount(ctx context.Context) (int64, error)

	// Aggregate runs the pipeline and decodes the result into dest, which
	// must be a pointer to a slice.
	Aggregate(ctx context.Context, pipeline mongo.Pipeline, dest any) error
}

// Store resolves collections by name. The Preloader and Optimizer use it to
// reach related collections declared in Relation.From.
type Store interface {
	Collection(name string) Collection
}
