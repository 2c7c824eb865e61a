// Package mongostore adapts the official MongoDB driver to the store interfaces.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/auth"

	dberrors "github.com/AvishaiDotan/mongodb-functions/internal/errors"
	"github.com/AvishaiDotan/mongodb-functions/internal/store"
)

// codeAuthenticationFailed is the server error code for rejected credentials.
const codeAuthenticationFailed = 18

// Connector opens driver clients against URI.
type Connector struct {
	URI            string
	ConnectTimeout time.Duration
	AppName        string
}

// NewConnector returns a connector for uri with a 10 second connect timeout.
func NewConnector(uri string) *Connector {
	return &Connector{URI: uri, ConnectTimeout: 10 * time.Second, AppName: "docbench"}
}

// Connect dials the server and pings the primary. A client whose ping fails
// is disconnected before returning.
func (c *Connector) Connect(ctx context.Context) (store.Client, error) {
	opts := options.Client().ApplyURI(c.URI)
	if c.ConnectTimeout > 0 {
		opts.SetConnectTimeout(c.ConnectTimeout).SetServerSelectionTimeout(c.ConnectTimeout)
	}
	if c.AppName != "" {
		opts.SetAppName(c.AppName)
	}

	cl, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := cl.Ping(ctx, readpref.Primary()); err != nil {
		_ = cl.Disconnect(context.Background())
		if isAuthError(err) {
			return nil, fmt.Errorf("mongo: ping: %w: %w", dberrors.ErrAuthFailed, err)
		}
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return &Client{client: cl}, nil
}

// isAuthError reports whether err comes from the authentication handshake
// or from a server that rejected the credentials.
func isAuthError(err error) bool {
	var ae *auth.Error
	if errors.As(err, &ae) {
		return true
	}
	var ce mongo.CommandError
	return errors.As(err, &ce) && ce.Code == codeAuthenticationFailed
}

// Client wraps a *mongo.Client.
type Client struct {
	client *mongo.Client
}

// Driver returns the underlying driver client.
func (c *Client) Driver() *mongo.Client { return c.client }

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

func (c *Client) Database(name string) store.Database {
	return &database{db: c.client.Database(name)}
}

// Close disconnects. A second call is a no-op.
func (c *Client) Close(ctx context.Context) error {
	err := c.client.Disconnect(ctx)
	if errors.Is(err, mongo.ErrClientDisconnected) {
		return nil
	}
	return err
}

type database struct {
	db *mongo.Database
}

func (d *database) Name() string { return d.db.Name() }

func (d *database) Collection(name string) store.Collection {
	return &collection{coll: d.db.Collection(name)}
}

type collection struct {
	coll *mongo.Collection
}

func (c *collection) Name() string { return c.coll.Name() }

func (c *collection) InsertOne(ctx context.Context, doc any) (any, error) {
	res, err := c.coll.InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	return res.InsertedID, nil
}

func (c *collection) InsertMany(ctx context.Context, docs []any) ([]any, error) {
	res, err := c.coll.InsertMany(ctx, docs)
	if err != nil {
		return nil, err
	}
	return res.InsertedIDs, nil
}

func (c *collection) BulkInsert(ctx context.Context, docs []any) (int64, error) {
	models := make([]mongo.WriteModel, 0, len(docs))
	for _, doc := range docs {
		models = append(models, mongo.NewInsertOneModel().SetDocument(doc))
	}
	res, err := c.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	if res != nil {
		return res.InsertedCount, err
	}
	return 0, err
}

func (c *collection) FindOne(ctx context.Context, filter bson.M) (bson.M, error) {
	var out bson.M
	err := c.coll.FindOne(ctx, nonNil(filter)).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNoDocuments
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *collection) Find(ctx context.Context, filter bson.M, opts store.FindOptions) ([]bson.M, error) {
	fo := options.Find()
	if opts.Limit > 0 {
		fo.SetLimit(opts.Limit)
	}
	if opts.NaturalOrder {
		fo.SetHint(bson.D{{Key: "$natural", Value: 1}})
	}
	cur, err := c.coll.Find(ctx, nonNil(filter), fo)
	if err != nil {
		return nil, err
	}
	out := make([]bson.M, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *collection) Aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]bson.M, error) {
	cur, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	out := make([]bson.M, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *collection) CountDocuments(ctx context.Context, filter bson.M) (int64, error) {
	return c.coll.CountDocuments(ctx, nonNil(filter))
}

func (c *collection) CreateIndex(ctx context.Context, field string) (string, error) {
	return c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: field, Value: 1}},
	})
}

func nonNil(filter bson.M) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return filter
}
