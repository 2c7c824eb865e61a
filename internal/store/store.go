// Package store defines the document store operations the loader, the fill
// driver and the query helpers consume. Backends live in subpackages.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Common errors for store operations.
var (
	// ErrNoDocuments is returned by FindOne when nothing matches the filter.
	ErrNoDocuments = errors.New("no documents in result")
	// ErrClientClosed is returned by any operation on a closed client.
	ErrClientClosed = errors.New("client is closed")
	// ErrUnsupported is returned when a backend cannot evaluate a filter or stage.
	ErrUnsupported = errors.New("unsupported operation")
)

// Connector opens clients against a store. Every call to Connect returns an
// independent client that must be closed by the caller.
type Connector interface {
	Connect(ctx context.Context) (Client, error)
}

// Client is an open connection to a store.
type Client interface {
	// Ping round-trips to the store to confirm the connection is usable.
	Ping(ctx context.Context) error

	// Database selects a database by name. It does not round-trip.
	Database(name string) Database

	// Close releases the connection. Calling Close twice is an error-free no-op.
	Close(ctx context.Context) error
}

// Database groups collections.
type Database interface {
	Name() string
	Collection(name string) Collection
}

// FindOptions controls Find.
type FindOptions struct {
	// Limit caps the number of returned documents; 0 means no limit
	Limit int64

	// NaturalOrder forces a collection scan instead of an index
	NaturalOrder bool
}

// Collection is a set of documents. Documents are anything the bson package
// can marshal; results come back as bson.M.
type Collection interface {
	Name() string

	// InsertOne writes a single document and returns its id. A document
	// without an _id gets one assigned by the store.
	InsertOne(ctx context.Context, doc any) (any, error)

	// InsertMany writes documents in one round-trip and returns their ids in order.
	InsertMany(ctx context.Context, docs []any) ([]any, error)

	// BulkInsert writes documents as a bulk write of insert operations and
	// returns the inserted count.
	BulkInsert(ctx context.Context, docs []any) (int64, error)

	// FindOne returns the first document matching filter or ErrNoDocuments.
	FindOne(ctx context.Context, filter bson.M) (bson.M, error)

	// Find returns the documents matching filter.
	Find(ctx context.Context, filter bson.M, opts FindOptions) ([]bson.M, error)

	// Aggregate evaluates a pipeline against the collection.
	Aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]bson.M, error)

	// CountDocuments returns the number of documents matching filter.
	CountDocuments(ctx context.Context, filter bson.M) (int64, error)

	// CreateIndex creates an ascending index on field and returns its name.
	CreateIndex(ctx context.Context, field string) (string, error)
}
