// Package queries holds the read and write operations the benchmark suite
// measures. All of them share one client passed in by the caller.
//
// Write operations return their errors. Read operations never do: a failed
// read is logged as a query error and yields an empty result.
package queries

import (
	"context"
	"errors"
	"regexp"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	dberrors "github.com/AvishaiDotan/mongodb-functions/internal/errors"
	"github.com/AvishaiDotan/mongodb-functions/internal/generator"
	"github.com/AvishaiDotan/mongodb-functions/internal/store"
	"github.com/AvishaiDotan/mongodb-functions/pkg/types"
)

// DefaultInsertConcurrency bounds InsertIndividually.
const DefaultInsertConcurrency = 100

// TableNameIndexField is the field indexed by EnsureTableNameIndex.
const TableNameIndexField = "name"

// Queries runs operations against one database of a shared client.
type Queries struct {
	client store.Client
	db     store.Database
	gen    *generator.Generator
	logger zerolog.Logger

	insertConcurrency int
}

// New creates Queries over database. The caller owns client and closes it.
func New(client store.Client, database string, gen *generator.Generator, logger zerolog.Logger) *Queries {
	if gen == nil {
		gen = generator.New()
	}
	return &Queries{
		client:            client,
		db:                client.Database(database),
		gen:               gen,
		logger:            logger.With().Str("component", "queries").Logger(),
		insertConcurrency: DefaultInsertConcurrency,
	}
}

// SetInsertConcurrency changes how many single inserts InsertIndividually
// keeps in flight. Values below 1 are ignored.
func (q *Queries) SetInsertConcurrency(n int) {
	if n >= 1 {
		q.insertConcurrency = n
	}
}

// ConnectionTest round-trips to the store.
func (q *Queries) ConnectionTest(ctx context.Context) error {
	if err := q.client.Ping(ctx); err != nil {
		return dberrors.NewConnectError("ping failed", err)
	}
	return nil
}

// queryFailed logs err as a query error unless it only says nothing matched.
func (q *Queries) queryFailed(op, collection, code string, err error) {
	if errors.Is(err, store.ErrNoDocuments) {
		return
	}
	qe := dberrors.NewQueryError(code, op+" failed", err).
		WithDetails(map[string]interface{}{"collection": collection})
	q.logger.Error().Err(qe).Str("op", op).Str("collection", collection).Msg("query failed")
}

// FindOne returns the first document in collection matching filter, or nil.
func (q *Queries) FindOne(ctx context.Context, collection string, filter bson.M) bson.M {
	doc, err := q.db.Collection(collection).FindOne(ctx, filter)
	if err != nil {
		q.queryFailed("findOne", collection, dberrors.CodeFindFailed, err)
		return nil
	}
	return doc
}

// Find returns up to limit documents matching filter. limit 0 means no limit.
func (q *Queries) Find(ctx context.Context, collection string, filter bson.M, limit int64) []bson.M {
	docs, err := q.db.Collection(collection).Find(ctx, filter, store.FindOptions{Limit: limit})
	if err != nil {
		q.queryFailed("find", collection, dberrors.CodeFindFailed, err)
		return []bson.M{}
	}
	return docs
}

func (q *Queries) aggregateOne(ctx context.Context, collection string, pipeline mongo.Pipeline) bson.M {
	docs, err := q.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		q.queryFailed("aggregate", collection, dberrors.CodeAggregateFailed, err)
		return nil
	}
	if len(docs) == 0 {
		return nil
	}
	return docs[0]
}

// FindOneFull returns the first user with its workbooks nested under
// "workbooks", their tables under "tables" and each table's fields and items
// under "fields" and "items". It returns nil when there is no user.
func (q *Queries) FindOneFull(ctx context.Context) bson.M {
	user := q.FindOne(ctx, types.CollectionUsers, bson.M{})
	if user == nil {
		return nil
	}

	workbooks := q.Find(ctx, types.CollectionWorkbooks, bson.M{"userId": user["_id"]}, 0)
	tables := q.Find(ctx, types.CollectionTables, bson.M{"workbookId": bson.M{"$in": ids(workbooks)}}, 0)
	tableIDs := ids(tables)
	fields := q.Find(ctx, types.CollectionFields, bson.M{"tableId": bson.M{"$in": tableIDs}}, 0)
	items := q.Find(ctx, types.CollectionItems, bson.M{"tableId": bson.M{"$in": tableIDs}}, 0)

	fieldsByTable := groupBy(fields, "tableId")
	itemsByTable := groupBy(items, "tableId")
	tablesByWorkbook := make(map[any]bson.A)
	for _, t := range tables {
		t["fields"] = orEmpty(fieldsByTable[t["_id"]])
		t["items"] = orEmpty(itemsByTable[t["_id"]])
		tablesByWorkbook[t["workbookId"]] = append(tablesByWorkbook[t["workbookId"]], t)
	}

	nested := bson.A{}
	for _, wb := range workbooks {
		wb["tables"] = orEmpty(tablesByWorkbook[wb["_id"]])
		nested = append(nested, wb)
	}
	user["workbooks"] = nested
	return user
}

// FindWorkbookWithTablesSimple loads the first workbook and its tables with two finds.
func (q *Queries) FindWorkbookWithTablesSimple(ctx context.Context) bson.M {
	wb, tables := q.workbookAndTables(ctx)
	if wb == nil {
		return nil
	}
	wb["tables"] = toArray(tables)
	return wb
}

// FindWorkbookWithTablesAggregate loads the same shape with one $lookup pipeline.
func (q *Queries) FindWorkbookWithTablesAggregate(ctx context.Context) bson.M {
	return q.aggregateOne(ctx, types.CollectionWorkbooks, workbookPipeline(false, false))
}

// FindWorkbookWithTablesAndFieldsSimple adds the fields of every table under "fields".
func (q *Queries) FindWorkbookWithTablesAndFieldsSimple(ctx context.Context) bson.M {
	wb, tables := q.workbookAndTables(ctx)
	if wb == nil {
		return nil
	}
	wb["tables"] = toArray(tables)
	wb["fields"] = toArray(q.Find(ctx, types.CollectionFields, bson.M{"tableId": bson.M{"$in": ids(tables)}}, 0))
	return wb
}

// FindWorkbookWithTablesAndFieldsAggregate is the pipeline form of FindWorkbookWithTablesAndFieldsSimple.
func (q *Queries) FindWorkbookWithTablesAndFieldsAggregate(ctx context.Context) bson.M {
	return q.aggregateOne(ctx, types.CollectionWorkbooks, workbookPipeline(true, false))
}

// FindWorkbookWithTablesAndFieldsAndItemsSimple adds fields and items of every table.
func (q *Queries) FindWorkbookWithTablesAndFieldsAndItemsSimple(ctx context.Context) bson.M {
	wb, tables := q.workbookAndTables(ctx)
	if wb == nil {
		return nil
	}
	tableIDs := ids(tables)
	wb["tables"] = toArray(tables)
	wb["fields"] = toArray(q.Find(ctx, types.CollectionFields, bson.M{"tableId": bson.M{"$in": tableIDs}}, 0))
	wb["items"] = toArray(q.Find(ctx, types.CollectionItems, bson.M{"tableId": bson.M{"$in": tableIDs}}, 0))
	return wb
}

// FindWorkbookWithTablesAndFieldsAndItemsAggregate is the pipeline form of
// FindWorkbookWithTablesAndFieldsAndItemsSimple.
func (q *Queries) FindWorkbookWithTablesAndFieldsAndItemsAggregate(ctx context.Context) bson.M {
	return q.aggregateOne(ctx, types.CollectionWorkbooks, workbookPipeline(true, true))
}

func (q *Queries) workbookAndTables(ctx context.Context) (bson.M, []bson.M) {
	wb := q.FindOne(ctx, types.CollectionWorkbooks, bson.M{})
	if wb == nil {
		return nil, nil
	}
	return wb, q.Find(ctx, types.CollectionTables, bson.M{"workbookId": wb["_id"]}, 0)
}

func workbookPipeline(withFields, withItems bool) mongo.Pipeline {
	p := mongo.Pipeline{
		{{Key: "$limit", Value: 1}},
		lookup(types.CollectionTables, "_id", "workbookId", "tables"),
	}
	if withFields {
		p = append(p, lookup(types.CollectionFields, "tables._id", "tableId", "fields"))
	}
	if withItems {
		p = append(p, lookup(types.CollectionItems, "tables._id", "tableId", "items"))
	}
	return p
}

func lookup(from, localField, foreignField, as string) bson.D {
	return bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: from},
		{Key: "localField", Value: localField},
		{Key: "foreignField", Value: foreignField},
		{Key: "as", Value: as},
	}}}
}

// EnsureTableNameIndex creates the ascending index on table names.
func (q *Queries) EnsureTableNameIndex(ctx context.Context) (string, error) {
	name, err := q.db.Collection(types.CollectionTables).CreateIndex(ctx, TableNameIndexField)
	if err != nil {
		return "", dberrors.NewQueryError(dberrors.CodeFindFailed, "create table name index", err)
	}
	return name, nil
}

// FindTablesByName returns tables whose name contains substr, case
// insensitively. Without useIndex the store is told to scan in natural order.
func (q *Queries) FindTablesByName(ctx context.Context, substr string, useIndex bool) []bson.M {
	filter := bson.M{TableNameIndexField: bson.M{"$regex": regexp.QuoteMeta(substr), "$options": "i"}}
	docs, err := q.db.Collection(types.CollectionTables).Find(ctx, filter, store.FindOptions{NaturalOrder: !useIndex})
	if err != nil {
		q.queryFailed("findTablesByName", types.CollectionTables, dberrors.CodeFindFailed, err)
		return []bson.M{}
	}
	return docs
}

func ids(docs []bson.M) bson.A {
	out := make(bson.A, 0, len(docs))
	for _, d := range docs {
		out = append(out, d["_id"])
	}
	return out
}

func groupBy(docs []bson.M, key string) map[any]bson.A {
	out := make(map[any]bson.A)
	for _, d := range docs {
		out[d[key]] = append(out[d[key]], d)
	}
	return out
}

func toArray(docs []bson.M) bson.A {
	out := make(bson.A, 0, len(docs))
	for _, d := range docs {
		out = append(out, d)
	}
	return out
}

func orEmpty(a bson.A) bson.A {
	if a == nil {
		return bson.A{}
	}
	return a
}
