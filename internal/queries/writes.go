package queries

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	dberrors "github.com/AvishaiDotan/mongodb-functions/internal/errors"
	"github.com/AvishaiDotan/mongodb-functions/pkg/types"
)

func (q *Queries) records(n int, withID bool) []any {
	recs := q.gen.GenerateRecords(n, withID)
	docs := make([]any, len(recs))
	for i, r := range recs {
		docs[i] = r
	}
	return docs
}

func (q *Queries) writeFailed(op string, err error) error {
	pe := dberrors.NewPersistError(types.CollectionRecords, 0, err)
	q.logger.Error().Err(err).Str("op", op).Msg("write failed")
	return pe
}

// InsertOne writes one random record. withID assigns a client-side UUID.
func (q *Queries) InsertOne(ctx context.Context, withID bool) error {
	rec := q.gen.GenerateRecord(withID)
	if _, err := q.db.Collection(types.CollectionRecords).InsertOne(ctx, rec); err != nil {
		return q.writeFailed("insertOne", err)
	}
	return nil
}

// InsertMany writes n random records in one insert-many call.
func (q *Queries) InsertMany(ctx context.Context, n int, withID bool) error {
	if n <= 0 {
		return nil
	}
	ids, err := q.db.Collection(types.CollectionRecords).InsertMany(ctx, q.records(n, withID))
	if err != nil {
		return q.writeFailed("insertMany", err)
	}
	if len(ids) != n {
		return q.writeFailed("insertMany", fmt.Errorf("inserted %d of %d documents", len(ids), n))
	}
	return nil
}

// BulkWrite writes n random records as a bulk write of insert operations.
func (q *Queries) BulkWrite(ctx context.Context, n int, withID bool) error {
	if n <= 0 {
		return nil
	}
	inserted, err := q.db.Collection(types.CollectionRecords).BulkInsert(ctx, q.records(n, withID))
	if err != nil {
		return q.writeFailed("bulkWrite", err)
	}
	if inserted != int64(n) {
		return q.writeFailed("bulkWrite", fmt.Errorf("inserted %d of %d documents", inserted, n))
	}
	return nil
}

// InsertIndividually issues n single-document inserts concurrently and waits
// for all of them. The first error cancels the inserts not yet started.
func (q *Queries) InsertIndividually(ctx context.Context, n int, withID bool) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.insertConcurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return q.InsertOne(gctx, withID)
		})
	}
	return g.Wait()
}
