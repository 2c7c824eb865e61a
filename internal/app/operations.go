package app

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/AvishaiDotan/mongodb-functions/internal/queries"
	"github.com/AvishaiDotan/mongodb-functions/pkg/types"
)

// CheckName is the connection check every benchmark run starts with.
const CheckName = "Connection Test"

// operation is one named, benchmarkable call against Queries. Reads return
// their result; writes return nil and an error.
type operation struct {
	name       string
	needsIndex bool
	run        func(ctx context.Context, q *queries.Queries) (any, error)
}

func read(fn func(ctx context.Context, q *queries.Queries) any) func(context.Context, *queries.Queries) (any, error) {
	return func(ctx context.Context, q *queries.Queries) (any, error) {
		return fn(ctx, q), nil
	}
}

func write(fn func(ctx context.Context, q *queries.Queries) error) func(context.Context, *queries.Queries) (any, error) {
	return func(ctx context.Context, q *queries.Queries) (any, error) {
		return nil, fn(ctx, q)
	}
}

var catalog = []operation{
	{name: CheckName, run: write(func(ctx context.Context, q *queries.Queries) error {
		return q.ConnectionTest(ctx)
	})},

	{name: "Insert One Document with ID", run: write(func(ctx context.Context, q *queries.Queries) error {
		return q.InsertOne(ctx, true)
	})},
	{name: "Insert One Document without ID", run: write(func(ctx context.Context, q *queries.Queries) error {
		return q.InsertOne(ctx, false)
	})},
	{name: "Insert 10 Documents with ID", run: write(func(ctx context.Context, q *queries.Queries) error {
		return q.InsertMany(ctx, 10, true)
	})},
	{name: "Insert 10 Documents without ID", run: write(func(ctx context.Context, q *queries.Queries) error {
		return q.InsertMany(ctx, 10, false)
	})},
	{name: "Insert 1000 Documents with ID (bulk)", run: write(func(ctx context.Context, q *queries.Queries) error {
		return q.InsertMany(ctx, 1000, true)
	})},
	{name: "Insert 1000 Documents without ID (bulk)", run: write(func(ctx context.Context, q *queries.Queries) error {
		return q.InsertMany(ctx, 1000, false)
	})},
	{name: "Insert 1000 Documents with ID (individual)", run: write(func(ctx context.Context, q *queries.Queries) error {
		return q.InsertIndividually(ctx, 1000, true)
	})},
	{name: "Insert 1000 Documents without ID (individual)", run: write(func(ctx context.Context, q *queries.Queries) error {
		return q.InsertIndividually(ctx, 1000, false)
	})},
	{name: "Insert 1000 Documents with ID (bulk write)", run: write(func(ctx context.Context, q *queries.Queries) error {
		return q.BulkWrite(ctx, 1000, true)
	})},
	{name: "Insert 1000 Documents without ID (bulk write)", run: write(func(ctx context.Context, q *queries.Queries) error {
		return q.BulkWrite(ctx, 1000, false)
	})},
	{name: "Insert 10k Documents with ID", run: write(func(ctx context.Context, q *queries.Queries) error {
		return q.InsertMany(ctx, 10_000, true)
	})},

	{name: "Find One Document", run: read(func(ctx context.Context, q *queries.Queries) any {
		return q.FindOne(ctx, types.CollectionUsers, bson.M{})
	})},
	{name: "Find more then one Documents", run: read(func(ctx context.Context, q *queries.Queries) any {
		return q.Find(ctx, types.CollectionUsers, bson.M{"email": bson.M{"$regex": "gmail", "$options": "i"}}, 10)
	})},
	{name: "Find alot of documents", run: read(func(ctx context.Context, q *queries.Queries) any {
		return q.Find(ctx, types.CollectionUsers, bson.M{}, 1000)
	})},
	{name: "Find one user with enriched data", run: read(func(ctx context.Context, q *queries.Queries) any {
		return q.FindOneFull(ctx)
	})},
	{name: "Find workbook with tables - simple", run: read(func(ctx context.Context, q *queries.Queries) any {
		return q.FindWorkbookWithTablesSimple(ctx)
	})},
	{name: "Find workbook with tables - aggregate", run: read(func(ctx context.Context, q *queries.Queries) any {
		return q.FindWorkbookWithTablesAggregate(ctx)
	})},
	{name: "Find workbook with tables and fields - simple", run: read(func(ctx context.Context, q *queries.Queries) any {
		return q.FindWorkbookWithTablesAndFieldsSimple(ctx)
	})},
	{name: "Find workbook with tables and fields - aggregate", run: read(func(ctx context.Context, q *queries.Queries) any {
		return q.FindWorkbookWithTablesAndFieldsAggregate(ctx)
	})},
	{name: "Find workbook with tables and fields and items - simple", run: read(func(ctx context.Context, q *queries.Queries) any {
		return q.FindWorkbookWithTablesAndFieldsAndItemsSimple(ctx)
	})},
	{name: "Find workbook with tables and fields and items - aggregate", run: read(func(ctx context.Context, q *queries.Queries) any {
		return q.FindWorkbookWithTablesAndFieldsAndItemsAggregate(ctx)
	})},
	{name: "Find tables with name containing 'ie' with index", needsIndex: true, run: read(func(ctx context.Context, q *queries.Queries) any {
		return q.FindTablesByName(ctx, "ie", true)
	})},
	{name: "Find tables with name containing 'ie' without index", run: read(func(ctx context.Context, q *queries.Queries) any {
		return q.FindTablesByName(ctx, "ie", false)
	})},
}

// Operations returns the names of every operation the bench and query
// commands accept, in catalog order.
func Operations() []string {
	names := make([]string, len(catalog))
	for i, op := range catalog {
		names[i] = op.name
	}
	return names
}

func lookupOperation(name string) (operation, bool) {
	for _, op := range catalog {
		if op.name == name {
			return op, true
		}
	}
	return operation{}, false
}
