package mongopager

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCollection adapts *mongo.Collection to the Collection interface.
type MongoCollection struct {
	coll *mongo.Collection
}

func NewMongoCollection(coll *mongo.Collection) *MongoCollection {
	return &MongoCollection{coll: coll}
}

// Name - implements Collection.
func (c *MongoCollection) Name() string {
	return c.coll.Name()
}

// Find - implements Collection.
func (c *MongoCollection) Find(ctx context.Context, filter bson.M, opts *FindOptions, dest any) error {
	findOpts := options.Find()
	if opts != nil {
		if len(opts.Sort) > 0 {
			findOpts.SetSort(opts.Sort)
		}
		if opts.Skip > 0 {
			findOpts.SetSkip(opts.Skip)
		}
		if opts.Limit > 0 {
			findOpts.SetLimit(opts.Limit)
		}
		if len(opts.Projection) > 0 {
			findOpts.SetProjection(opts.Projection)
		}
	}

	cur, err := c.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return fmt.Errorf("find '%s': %w", c.Name(), err)
	}

	return cur.All(ctx, dest)
}

// Count - implements Collection.
func (c *MongoCollection) Count(ctx context.Context, filter bson.M) (int64, error) {
	total, err := c.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count '%s': %w", c.Name(), err)
	}

	return total, nil
}

// EstimatedCount - implements Collection. Backed by collection metadata, not
// a scan.
func (c *MongoCollection) EstimatedCount(ctx context.Context) (int64, error) {
	total, err := c.coll.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("estimated count '%s': %w", c.Name(), err)
	}

	return total, nil
}

// Aggregate - implements Collection.
func (c *MongoCollection) Aggregate(ctx context.Context, pipeline mongo.Pipeline, dest any) error {
	cur, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("aggregate '%s': %w", c.Name(), err)
	}

	return cur.All(ctx, dest)
}

// MongoStore adapts *mongo.Database to the Store interface.
type MongoStore struct {
	db *mongo.Database
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

// Collection - implements Store.
func (s *MongoStore) Collection(name string) Collection {
	return NewMongoCollection(s.db.Collection(name))
}

var (
	_ Collection = (*MongoCollection)(nil)
	_ Store      = (*MongoStore)(nil)
)
