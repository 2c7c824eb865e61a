// Package memory implements an in-process document store. A Server plays the
// role of a database server: every client connected to it sees the same data.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/AvishaiDotan/mongodb-functions/internal/store"
	"github.com/AvishaiDotan/mongodb-functions/internal/store/docquery"
)

// InsertHook is called before every document insert with the target
// collection and the canonical document. A non-nil error fails the insert.
type InsertHook func(collection string, doc bson.M) error

// Server holds databases shared by all of its clients.
type Server struct {
	mu  sync.RWMutex
	dbs map[string]map[string]*collectionState

	hookMu      sync.RWMutex
	insertHook  InsertHook
	connectHook func() error

	connects atomic.Int64
	closes   atomic.Int64
}

type collectionState struct {
	docs    []bson.M
	ids     map[string]struct{}
	indexes map[string]string
}

// NewServer creates an empty server.
func NewServer() *Server {
	return &Server{dbs: make(map[string]map[string]*collectionState)}
}

// SetInsertHook installs fn as the insert hook. nil removes it.
func (s *Server) SetInsertHook(fn InsertHook) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.insertHook = fn
}

// SetConnectHook installs fn to run on every Connect. A non-nil error fails the connect.
func (s *Server) SetConnectHook(fn func() error) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.connectHook = fn
}

// Stats returns how many clients were opened and closed.
func (s *Server) Stats() (connects, closes int64) {
	return s.connects.Load(), s.closes.Load()
}

// Connect opens a new client. Server implements store.Connector.
func (s *Server) Connect(ctx context.Context) (store.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.hookMu.RLock()
	hook := s.connectHook
	s.hookMu.RUnlock()
	if hook != nil {
		if err := hook(); err != nil {
			return nil, err
		}
	}
	s.connects.Add(1)
	return &client{server: s}, nil
}

func (s *Server) collection(db, name string, create bool) *collectionState {
	colls, ok := s.dbs[db]
	if !ok {
		if !create {
			return nil
		}
		colls = make(map[string]*collectionState)
		s.dbs[db] = colls
	}
	c, ok := colls[name]
	if !ok && create {
		c = &collectionState{ids: make(map[string]struct{}), indexes: make(map[string]string)}
		colls[name] = c
	}
	return c
}

// snapshot returns deep copies of every document in a collection.
func (s *Server) snapshot(db, name string) ([]bson.M, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.collection(db, name, false)
	if c == nil {
		return []bson.M{}, nil
	}
	out := make([]bson.M, 0, len(c.docs))
	for _, d := range c.docs {
		cp, err := docquery.Canonical(d)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *Server) insert(db, name string, docs []any) ([]any, error) {
	prepared := make([]bson.M, 0, len(docs))
	for _, doc := range docs {
		m, err := docquery.Canonical(doc)
		if err != nil {
			return nil, err
		}
		if _, ok := m["_id"]; !ok {
			m["_id"] = primitive.NewObjectID()
		}
		prepared = append(prepared, m)
	}

	s.hookMu.RLock()
	hook := s.insertHook
	s.hookMu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(db, name, true)

	ids := make([]any, 0, len(prepared))
	for _, m := range prepared {
		if hook != nil {
			if err := hook(name, m); err != nil {
				return ids, err
			}
		}
		key := idKey(m["_id"])
		if _, dup := c.ids[key]; dup {
			return ids, fmt.Errorf("E11000 duplicate key error collection: %s.%s _id: %v", db, name, m["_id"])
		}
		c.ids[key] = struct{}{}
		c.docs = append(c.docs, m)
		ids = append(ids, m["_id"])
	}
	return ids, nil
}

func idKey(id any) string {
	if oid, ok := id.(primitive.ObjectID); ok {
		return "oid:" + oid.Hex()
	}
	return fmt.Sprintf("%T:%v", id, id)
}

type client struct {
	server *Server
	closed atomic.Bool
}

func (c *client) check(ctx context.Context) error {
	if c.closed.Load() {
		return store.ErrClientClosed
	}
	return ctx.Err()
}

func (c *client) Ping(ctx context.Context) error {
	return c.check(ctx)
}

func (c *client) Database(name string) store.Database {
	return &database{client: c, name: name}
}

func (c *client) Close(_ context.Context) error {
	if c.closed.CompareAndSwap(false, true) {
		c.server.closes.Add(1)
	}
	return nil
}

type database struct {
	client *client
	name   string
}

func (d *database) Name() string { return d.name }

func (d *database) Collection(name string) store.Collection {
	return &collection{client: d.client, db: d.name, name: name}
}

type collection struct {
	client *client
	db     string
	name   string
}

func (c *collection) Name() string { return c.name }

func (c *collection) InsertOne(ctx context.Context, doc any) (any, error) {
	if err := c.client.check(ctx); err != nil {
		return nil, err
	}
	ids, err := c.client.server.insert(c.db, c.name, []any{doc})
	if err != nil {
		return nil, err
	}
	return ids[0], nil
}

func (c *collection) InsertMany(ctx context.Context, docs []any) ([]any, error) {
	if err := c.client.check(ctx); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("must provide at least one element in input slice")
	}
	return c.client.server.insert(c.db, c.name, docs)
}

func (c *collection) BulkInsert(ctx context.Context, docs []any) (int64, error) {
	if err := c.client.check(ctx); err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, fmt.Errorf("must provide at least one element in input slice")
	}
	ids, err := c.client.server.insert(c.db, c.name, docs)
	return int64(len(ids)), err
}

func (c *collection) FindOne(ctx context.Context, filter bson.M) (bson.M, error) {
	docs, err := c.Find(ctx, filter, store.FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, store.ErrNoDocuments
	}
	return docs[0], nil
}

func (c *collection) Find(ctx context.Context, filter bson.M, opts store.FindOptions) ([]bson.M, error) {
	if err := c.client.check(ctx); err != nil {
		return nil, err
	}
	docs, err := c.client.server.snapshot(c.db, c.name)
	if err != nil {
		return nil, err
	}
	return docquery.Filter(docs, filter, opts.Limit)
}

func (c *collection) Aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]bson.M, error) {
	if err := c.client.check(ctx); err != nil {
		return nil, err
	}
	docs, err := c.client.server.snapshot(c.db, c.name)
	if err != nil {
		return nil, err
	}
	return docquery.Run(docs, pipeline, func(name string) ([]bson.M, error) {
		return c.client.server.snapshot(c.db, name)
	})
}

func (c *collection) CountDocuments(ctx context.Context, filter bson.M) (int64, error) {
	docs, err := c.Find(ctx, filter, store.FindOptions{})
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func (c *collection) CreateIndex(ctx context.Context, field string) (string, error) {
	if err := c.client.check(ctx); err != nil {
		return "", err
	}
	name := field + "_1"
	s := c.client.server
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection(c.db, c.name, true).indexes[name] = field
	return name, nil
}
