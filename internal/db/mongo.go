package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PageParams holds pagination configuration for windowed queries.
type PageParams struct {
	Page     int64
	PageSize int64
	SortBy   string
	SortDesc bool
}

// Page holds one slice of a paginated query plus the total match count
// so callers can derive a hasMore flag.
type Page[T any] struct {
	Data  []T
	Total int64
}

// Repository provides the single-document Mongo operations the core
// relies on. Each mutation is atomic per document, which is the only
// consistency the relay and ledger require.
type Repository[T any] struct {
	collection *mongo.Collection
}

// NewRepository creates a repository over one collection.
func NewRepository[T any](db *mongo.Database, collectionName string) *Repository[T] {
	return &Repository[T]{collection: db.Collection(collectionName)}
}

// OpenConnection dials MongoDB and verifies the connection with a ping.
func OpenConnection(uri string, database string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return client.Database(database), nil
}

// uniqueIndexModel builds a unique ascending index over the given
// fields, in order.
func uniqueIndexModel(fields ...string) mongo.IndexModel {
	keys := make(bson.D, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, bson.E{Key: f, Value: 1})
	}
	return mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetUnique(true),
	}
}

// EnsureUniqueIndex creates a unique index over the given fields.
// CreateOne is a no-op when the index already exists, so this is safe
// to run on every startup.
func (r *Repository[T]) EnsureUniqueIndex(ctx context.Context, fields ...string) error {
	_, err := r.collection.Indexes().CreateOne(ctx, uniqueIndexModel(fields...))
	return err
}

// Create inserts a new document.
func (r *Repository[T]) Create(ctx context.Context, document T) (*mongo.InsertOneResult, error) {
	return r.collection.InsertOne(ctx, document)
}

// FindOne finds a single document matching the filter.
func (r *Repository[T]) FindOne(ctx context.Context, filter bson.M) (*T, error) {
	var result T
	if err := r.collection.FindOne(ctx, filter).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FindAll finds all documents matching the filter, optionally sorted.
func (r *Repository[T]) FindAll(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := r.collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []T
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// FindPage runs a windowed query and returns the slice plus the total
// match count.
func (r *Repository[T]) FindPage(ctx context.Context, filter bson.M, params PageParams) (*Page[T], error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = 20
	}
	if params.PageSize > 100 {
		params.PageSize = 100
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}

	findOptions := options.Find().
		SetSkip((params.Page - 1) * params.PageSize).
		SetLimit(params.PageSize)
	if params.SortBy != "" {
		order := 1
		if params.SortDesc {
			order = -1
		}
		findOptions.SetSort(bson.D{{Key: params.SortBy, Value: order}})
	}

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []T
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return &Page[T]{Data: results, Total: total}, nil
}

// UpdateOne applies a raw update document to the first match. The
// update document controls its own operators ($set, $inc, ...), which
// the summary upsert depends on.
func (r *Repository[T]) UpdateOne(ctx context.Context, filter bson.M, update bson.M, upsert bool) (*mongo.UpdateResult, error) {
	return r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(upsert))
}

// UpdateMany applies a raw update document to every match.
func (r *Repository[T]) UpdateMany(ctx context.Context, filter bson.M, update bson.M) (*mongo.UpdateResult, error) {
	return r.collection.UpdateMany(ctx, filter, update)
}

// FindOneAndUpdate performs an atomic read-modify-write and returns
// the post-update document. mongo.ErrNoDocuments means the filter did
// not match, which the wallet uses as its insufficient-balance signal.
func (r *Repository[T]) FindOneAndUpdate(ctx context.Context, filter bson.M, update bson.M) (*T, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var result T
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteOne deletes a single document matching the filter.
func (r *Repository[T]) DeleteOne(ctx context.Context, filter bson.M) (*mongo.DeleteResult, error) {
	return r.collection.DeleteOne(ctx, filter)
}

// DeleteMany deletes every document matching the filter.
func (r *Repository[T]) DeleteMany(ctx context.Context, filter bson.M) (*mongo.DeleteResult, error) {
	return r.collection.DeleteMany(ctx, filter)
}

// Count counts documents matching the filter.
func (r *Repository[T]) Count(ctx context.Context, filter bson.M) (int64, error) {
	return r.collection.CountDocuments(ctx, filter)
}

// Exists checks if any document matches the filter.
func (r *Repository[T]) Exists(ctx context.Context, filter bson.M) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
