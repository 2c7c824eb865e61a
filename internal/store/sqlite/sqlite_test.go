package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/AvishaiDotan/mongodb-functions/internal/store"
	"github.com/AvishaiDotan/mongodb-functions/internal/store/memory"
)

func openTestClient(t *testing.T) (*Connector, store.Client) {
	t.Helper()
	conn := NewConnector(filepath.Join(t.TempDir(), "docbench.db"))
	c, err := conn.Connect(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return conn, c
}

func TestInsertAndFindRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, c := openTestClient(t)
	coll := c.Database("docbench").Collection("users")

	id, err := coll.InsertOne(ctx, bson.M{"name": "ann", "tags": bson.A{"a", "b"}})
	require.NoError(t, err)
	oid, ok := id.(primitive.ObjectID)
	require.True(t, ok)

	doc, err := coll.FindOne(ctx, bson.M{"_id": oid})
	require.NoError(t, err)
	assert.Equal(t, "ann", doc["name"])
	assert.Equal(t, bson.A{"a", "b"}, doc["tags"])

	_, err = coll.FindOne(ctx, bson.M{"_id": primitive.NewObjectID()})
	assert.True(t, errors.Is(err, store.ErrNoDocuments))
}

func TestDataVisibleAcrossConnections(t *testing.T) {
	ctx := context.Background()
	conn, c := openTestClient(t)
	_, err := c.Database("db").Collection("items").InsertMany(ctx, []any{bson.M{"v": 1}, bson.M{"v": 2}})
	require.NoError(t, err)

	other, err := conn.Connect(ctx)
	require.NoError(t, err)
	defer other.Close(ctx)

	n, err := other.Database("db").Collection("items").CountDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = other.Database("elsewhere").Collection("items").CountDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestDuplicateIDRejected(t *testing.T) {
	ctx := context.Background()
	_, c := openTestClient(t)
	coll := c.Database("db").Collection("records")

	_, err := coll.InsertOne(ctx, bson.M{"_id": "fixed"})
	require.NoError(t, err)
	_, err = coll.InsertOne(ctx, bson.M{"_id": "fixed"})
	assert.Error(t, err)

	// the failed transaction leaves nothing behind
	_, err = coll.BulkInsert(ctx, []any{bson.M{"_id": "new"}, bson.M{"_id": "fixed"}})
	assert.Error(t, err)
	n, err := coll.CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestClosedClient(t *testing.T) {
	ctx := context.Background()
	_, c := openTestClient(t)
	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.Close(ctx))

	assert.ErrorIs(t, c.Ping(ctx), store.ErrClientClosed)
	_, err := c.Database("db").Collection("x").InsertOne(ctx, bson.M{})
	assert.ErrorIs(t, err, store.ErrClientClosed)
}

func TestConnectRequiresPath(t *testing.T) {
	_, err := NewConnector("").Connect(context.Background())
	assert.Error(t, err)
}

// seed writes the same workbook graph into any store.
func seed(t *testing.T, db store.Database) {
	t.Helper()
	ctx := context.Background()
	wbID, err := db.Collection("workbooks").InsertOne(ctx, bson.M{"name": "budget"})
	require.NoError(t, err)
	for _, name := range []string{"Revenue table", "Costs table", "notes"} {
		tID, err := db.Collection("tables").InsertOne(ctx, bson.M{"name": name, "workbookId": wbID})
		require.NoError(t, err)
		_, err = db.Collection("fields").InsertMany(ctx, []any{
			bson.M{"name": "a", "tableId": tID},
			bson.M{"name": "b", "tableId": tID},
		})
		require.NoError(t, err)
	}
}

func TestAgreesWithMemoryStore(t *testing.T) {
	ctx := context.Background()
	_, sc := openTestClient(t)
	mc, err := memory.NewServer().Connect(ctx)
	require.NoError(t, err)
	defer mc.Close(ctx)

	sdb := sc.Database("docbench")
	mdb := mc.Database("docbench")
	seed(t, sdb)
	seed(t, mdb)

	filter := bson.M{"name": bson.M{"$regex": "table", "$options": "i"}}
	sFound, err := sdb.Collection("tables").Find(ctx, filter, store.FindOptions{})
	require.NoError(t, err)
	mFound, err := mdb.Collection("tables").Find(ctx, filter, store.FindOptions{})
	require.NoError(t, err)
	assert.Len(t, sFound, 2)
	assert.Len(t, mFound, 2)

	pipeline := mongo.Pipeline{
		{{Key: "$limit", Value: 1}},
		{{Key: "$lookup", Value: bson.M{"from": "tables", "localField": "_id", "foreignField": "workbookId", "as": "tables"}}},
		{{Key: "$lookup", Value: bson.M{"from": "fields", "localField": "tables._id", "foreignField": "tableId", "as": "fields"}}},
	}
	sAgg, err := sdb.Collection("workbooks").Aggregate(ctx, pipeline)
	require.NoError(t, err)
	mAgg, err := mdb.Collection("workbooks").Aggregate(ctx, pipeline)
	require.NoError(t, err)

	require.Len(t, sAgg, 1)
	require.Len(t, mAgg, 1)
	assert.Len(t, sAgg[0]["tables"], 3)
	assert.Len(t, mAgg[0]["tables"], 3)
	assert.Len(t, sAgg[0]["fields"], 6)
	assert.Len(t, mAgg[0]["fields"], 6)
}

func TestCreateIndexIdempotent(t *testing.T) {
	ctx := context.Background()
	_, c := openTestClient(t)
	coll := c.Database("db").Collection("tables")

	name, err := coll.CreateIndex(ctx, "name")
	require.NoError(t, err)
	assert.Equal(t, "name_1", name)

	_, err = coll.CreateIndex(ctx, "name")
	assert.NoError(t, err)
}
