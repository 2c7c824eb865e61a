// Package sqlite implements the document store on a single SQLite file.
// Documents are stored as snappy-compressed BSON blobs; filters and pipelines
// are evaluated in process by docquery.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/golang/snappy"
	_ "github.com/mattn/go-sqlite3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/AvishaiDotan/mongodb-functions/internal/store"
	"github.com/AvishaiDotan/mongodb-functions/internal/store/docquery"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	db         TEXT NOT NULL,
	collection TEXT NOT NULL,
	doc_id     TEXT NOT NULL,
	body       BLOB NOT NULL,
	UNIQUE(db, collection, doc_id)
);
CREATE INDEX IF NOT EXISTS idx_documents_coll ON documents(db, collection, seq);
CREATE TABLE IF NOT EXISTS doc_indexes (
	db         TEXT NOT NULL,
	collection TEXT NOT NULL,
	name       TEXT NOT NULL,
	field      TEXT NOT NULL,
	PRIMARY KEY (db, collection, name)
);
`

// Connector opens clients on the SQLite file at Path.
type Connector struct {
	Path string
}

// NewConnector returns a connector for the database file at path.
func NewConnector(path string) *Connector {
	return &Connector{Path: path}
}

// Connect opens the file, creating the schema if needed, and returns a client.
func (c *Connector) Connect(ctx context.Context) (store.Client, error) {
	if c.Path == "" {
		return nil, fmt.Errorf("sqlite: database path is required")
	}
	db, err := sql.Open("sqlite3", c.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}
	return &client{db: db}, nil
}

type client struct {
	db        *sql.DB
	closeOnce sync.Once
	closed    bool
	mu        sync.RWMutex
}

func (c *client) conn() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, store.ErrClientClosed
	}
	return c.db, nil
}

func (c *client) Ping(ctx context.Context) error {
	db, err := c.conn()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (c *client) Database(name string) store.Database {
	return &database{client: c, name: name}
}

func (c *client) Close(_ context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		err = c.db.Close()
	})
	return err
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

// encode canonicalizes doc, assigns an ObjectID when it has no _id, and
// returns the id, its key form and the compressed body.
func encode(doc any) (any, string, []byte, error) {
	m, err := docquery.Canonical(doc)
	if err != nil {
		return nil, "", nil, err
	}
	if _, ok := m["_id"]; !ok {
		m["_id"] = primitive.NewObjectID()
	}
	raw, err := bson.Marshal(m)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return m["_id"], idKey(m["_id"]), snappy.Encode(nil, raw), nil
}

func decode(body []byte) (bson.M, error) {
	raw, err := snappy.Decode(nil, body)
	if err != nil {
		return nil, fmt.Errorf("sqlite: snappy decompress failed: %w", err)
	}
	return docquery.Decode(raw)
}

func idKey(id any) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return "oid:" + v.Hex()
	case string:
		return "str:" + v
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}

const insertSQL = `INSERT INTO documents (db, collection, doc_id, body) VALUES (?, ?, ?, ?)`

func (c *collection) InsertOne(ctx context.Context, doc any) (any, error) {
	db, err := c.client.conn()
	if err != nil {
		return nil, err
	}
	id, key, body, err := encode(doc)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, insertSQL, c.db, c.name, key, body); err != nil {
		return nil, fmt.Errorf("sqlite: insert into %s: %w", c.name, err)
	}
	return id, nil
}

func (c *collection) InsertMany(ctx context.Context, docs []any) ([]any, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("must provide at least one element in input slice")
	}
	return c.insertTx(ctx, docs)
}

func (c *collection) BulkInsert(ctx context.Context, docs []any) (int64, error) {
	if len(docs) == 0 {
		return 0, fmt.Errorf("must provide at least one element in input slice")
	}
	ids, err := c.insertTx(ctx, docs)
	return int64(len(ids)), err
}

// insertTx writes docs in one transaction. Nothing is written on failure.
func (c *collection) insertTx(ctx context.Context, docs []any) ([]any, error) {
	db, err := c.client.conn()
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return nil, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]any, 0, len(docs))
	for _, doc := range docs {
		id, key, body, err := encode(doc)
		if err != nil {
			return nil, err
		}
		if _, err := stmt.ExecContext(ctx, c.db, c.name, key, body); err != nil {
			return nil, fmt.Errorf("sqlite: insert into %s: %w", c.name, err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit: %w", err)
	}
	return ids, nil
}

// load reads every document of collection name in insertion order.
func (c *collection) load(ctx context.Context, name string) ([]bson.M, error) {
	db, err := c.client.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT body FROM documents WHERE db = ? AND collection = ? ORDER BY seq`, c.db, name)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query %s: %w", name, err)
	}
	defer rows.Close()

	out := make([]bson.M, 0)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		doc, err := decode(body)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
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
	if id, ok := filter["_id"]; ok && len(filter) == 1 && keyable(id) {
		return c.findByID(ctx, id)
	}
	docs, err := c.load(ctx, c.name)
	if err != nil {
		return nil, err
	}
	return docquery.Filter(docs, filter, opts.Limit)
}

// keyable reports whether id has a stable doc_id form.
func keyable(id any) bool {
	switch id.(type) {
	case primitive.ObjectID, string:
		return true
	default:
		return false
	}
}

// findByID uses the unique doc_id column instead of a scan.
func (c *collection) findByID(ctx context.Context, id any) ([]bson.M, error) {
	db, err := c.client.conn()
	if err != nil {
		return nil, err
	}
	var body []byte
	err = db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE db = ? AND collection = ? AND doc_id = ?`,
		c.db, c.name, idKey(id)).Scan(&body)
	if err == sql.ErrNoRows {
		return []bson.M{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find by id: %w", err)
	}
	doc, err := decode(body)
	if err != nil {
		return nil, err
	}
	return []bson.M{doc}, nil
}

func (c *collection) Aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]bson.M, error) {
	docs, err := c.load(ctx, c.name)
	if err != nil {
		return nil, err
	}
	return docquery.Run(docs, pipeline, func(name string) ([]bson.M, error) {
		return c.load(ctx, name)
	})
}

func (c *collection) CountDocuments(ctx context.Context, filter bson.M) (int64, error) {
	if len(filter) == 0 {
		db, err := c.client.conn()
		if err != nil {
			return 0, err
		}
		var n int64
		err = db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM documents WHERE db = ? AND collection = ?`, c.db, c.name).Scan(&n)
		return n, err
	}
	docs, err := c.Find(ctx, filter, store.FindOptions{})
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// CreateIndex records the index definition. Lookups other than by _id still
// scan; the record keeps index listing consistent with the Mongo backend.
func (c *collection) CreateIndex(ctx context.Context, field string) (string, error) {
	db, err := c.client.conn()
	if err != nil {
		return "", err
	}
	name := field + "_1"
	_, err = db.ExecContext(ctx,
		`INSERT OR IGNORE INTO doc_indexes (db, collection, name, field) VALUES (?, ?, ?, ?)`,
		c.db, c.name, name, field)
	if err != nil {
		return "", fmt.Errorf("sqlite: create index: %w", err)
	}
	return name, nil
}
