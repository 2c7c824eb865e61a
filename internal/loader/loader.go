// Package loader persists generated entity graphs with a strict
// parent-before-child fanout, one store round-trip per document.
package loader

import (
	"context"

	"github.com/rs/zerolog"

	dberrors "github.com/AvishaiDotan/mongodb-functions/internal/errors"
	"github.com/AvishaiDotan/mongodb-functions/internal/store"
	"github.com/AvishaiDotan/mongodb-functions/pkg/types"
)

// Persister writes one user tree and returns the number of documents written.
type Persister interface {
	Persist(ctx context.Context, u *types.User) (int, error)
}

// Loader is the fanout loader. Every Persist call uses its own connection.
type Loader struct {
	connector store.Connector
	database  string
	logger    zerolog.Logger
}

// New creates a Loader writing into database through connector.
func New(connector store.Connector, database string, logger zerolog.Logger) *Loader {
	return &Loader{
		connector: connector,
		database:  database,
		logger:    logger.With().Str("component", "loader").Logger(),
	}
}

// Persist writes u in the order user, then per workbook the workbook, then
// per table the table, its items and its fields. Each child carries the id
// the store assigned to its parent. The first failed insert stops the walk
// and is returned as a *errors.PersistError; documents already written stay.
// u itself is never modified.
func (l *Loader) Persist(ctx context.Context, u *types.User) (int, error) {
	client, err := l.connector.Connect(ctx)
	if err != nil {
		return 0, dberrors.NewConnectError("failed to connect to store", err)
	}
	defer func() {
		if cerr := client.Close(context.Background()); cerr != nil {
			l.logger.Warn().Err(cerr).Msg("failed to close store connection")
		}
	}()

	w := &walk{db: client.Database(l.database)}
	if err := w.user(ctx, u); err != nil {
		l.logger.Error().
			Err(err).
			Str("user", u.Email).
			Int("persisted", w.persisted).
			Msg("fanout aborted")
		return w.persisted, err
	}
	return w.persisted, nil
}

// walk tracks one Persist call.
type walk struct {
	db        store.Database
	persisted int
}

func (w *walk) insert(ctx context.Context, collection string, doc any) (any, error) {
	id, err := w.db.Collection(collection).InsertOne(ctx, doc)
	if err != nil {
		return nil, dberrors.NewPersistError(collection, w.persisted, err)
	}
	w.persisted++
	return id, nil
}

func (w *walk) user(ctx context.Context, u *types.User) error {
	userID, err := w.insert(ctx, types.CollectionUsers, u.InsertView())
	if err != nil {
		return err
	}
	for _, wb := range u.Workbooks {
		if err := w.workbook(ctx, wb, userID); err != nil {
			return err
		}
	}
	return nil
}

func (w *walk) workbook(ctx context.Context, wb *types.Workbook, userID any) error {
	wbID, err := w.insert(ctx, types.CollectionWorkbooks, wb.InsertView(userID))
	if err != nil {
		return err
	}
	for _, tbl := range wb.Tables {
		if err := w.table(ctx, tbl, wbID); err != nil {
			return err
		}
	}
	return nil
}

func (w *walk) table(ctx context.Context, tbl *types.Table, workbookID any) error {
	tableID, err := w.insert(ctx, types.CollectionTables, tbl.InsertView(workbookID))
	if err != nil {
		return err
	}
	for _, item := range tbl.Items {
		if _, err := w.insert(ctx, types.CollectionItems, item.InsertView(tableID)); err != nil {
			return err
		}
	}
	for _, f := range tbl.Fields {
		if _, err := w.insert(ctx, types.CollectionFields, f.InsertView(tableID)); err != nil {
			return err
		}
	}
	return nil
}
