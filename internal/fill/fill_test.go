package fill

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	dberrors "github.com/AvishaiDotan/mongodb-functions/internal/errors"
	"github.com/AvishaiDotan/mongodb-functions/internal/generator"
	"github.com/AvishaiDotan/mongodb-functions/internal/loader"
	"github.com/AvishaiDotan/mongodb-functions/internal/store/memory"
	"github.com/AvishaiDotan/mongodb-functions/pkg/types"
)

// recordingSource wraps a generator and remembers every requested batch size.
type recordingSource struct {
	gen     *generator.Generator
	batches []int
	shallow []bool
}

func (s *recordingSource) GenerateUsers(count int, shallow bool) []*types.User {
	s.batches = append(s.batches, count)
	s.shallow = append(s.shallow, shallow)
	return s.gen.GenerateUsers(count, shallow)
}

// stubPersister returns scripted results per call.
type stubPersister struct {
	calls   int
	results func(call int) (int, error)
}

func (p *stubPersister) Persist(_ context.Context, u *types.User) (int, error) {
	p.calls++
	if p.results != nil {
		return p.results(p.calls)
	}
	return u.DocumentCount(), nil
}

func newSource() *recordingSource {
	return &recordingSource{gen: generator.New(generator.WithSeed(1))}
}

func TestFillBatchSizes(t *testing.T) {
	src := newSource()
	p := &stubPersister{}
	d := NewDriver(p, src, 1000, zerolog.Nop())

	sum, err := d.Fill(context.Background(), 25, 10)
	require.NoError(t, err)

	assert.Equal(t, []int{10, 10, 5}, src.batches)
	for _, shallow := range src.shallow {
		assert.False(t, shallow)
	}
	assert.Equal(t, int64(25), sum.Processed)
	assert.Equal(t, int64(25), sum.Persisted)
	assert.Equal(t, 3, sum.Batches)
	assert.Equal(t, 25, p.calls)
}

func TestFillPersistsFullTrees(t *testing.T) {
	server := memory.NewServer()
	l := loader.New(server, "fill_test", zerolog.Nop())
	d := NewDriver(l, newSource(), 1000, zerolog.Nop())

	sum, err := d.Fill(context.Background(), 15, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Batches)
	assert.Equal(t, int64(15), sum.Processed)

	ctx := context.Background()
	c, err := server.Connect(ctx)
	require.NoError(t, err)
	defer c.Close(ctx)
	db := c.Database("fill_test")

	users, err := db.Collection(types.CollectionUsers).CountDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(15), users)

	var total int64
	for _, name := range []string{types.CollectionUsers, types.CollectionWorkbooks, types.CollectionTables, types.CollectionItems, types.CollectionFields} {
		n, err := db.Collection(name).CountDocuments(ctx, bson.M{})
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, sum.Documents, total)

	wbs, err := db.Collection(types.CollectionWorkbooks).CountDocuments(ctx, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, wbs, int64(15))
}

func TestFillProgressCrossesInterval(t *testing.T) {
	d := NewDriver(&stubPersister{}, newSource(), 7, zerolog.Nop())
	var reports []Progress
	d.OnProgress = func(p Progress) { reports = append(reports, p) }

	_, err := d.Fill(context.Background(), 25, 5)
	require.NoError(t, err)

	// processed after each batch: 5,10,15,20,25; reports fire at 10, 20 (since 10) and not at 25
	require.Len(t, reports, 2)
	assert.Equal(t, int64(10), reports[0].Processed)
	assert.Equal(t, int64(15), reports[0].Remaining)
	assert.InDelta(t, 40.0, reports[0].Percent, 1e-9)
	assert.Equal(t, 5, reports[0].BatchUsers)
	assert.Equal(t, int64(20), reports[1].Processed)
}

func TestFillPersistErrorContinues(t *testing.T) {
	p := &stubPersister{results: func(call int) (int, error) {
		if call == 2 {
			return 3, dberrors.NewPersistError(types.CollectionTables, 3, errors.New("boom"))
		}
		return 10, nil
	}}
	d := NewDriver(p, newSource(), 1000, zerolog.Nop())

	sum, err := d.Fill(context.Background(), 4, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, p.calls)
	assert.Equal(t, int64(4), sum.Processed)
	assert.Equal(t, int64(3), sum.Persisted)
	assert.Equal(t, int64(1), sum.Failed)
	assert.Equal(t, int64(33), sum.Documents)
}

func TestFillStopsOnConnectError(t *testing.T) {
	p := &stubPersister{results: func(call int) (int, error) {
		if call == 13 {
			return 0, dberrors.NewConnectError("refused", errors.New("dial tcp"))
		}
		return 1, nil
	}}
	d := NewDriver(p, newSource(), 1000, zerolog.Nop())

	sum, err := d.Fill(context.Background(), 100, 10)
	require.Error(t, err)
	assert.True(t, dberrors.IsConnectError(err))
	assert.Contains(t, err.Error(), "10 processed")
	assert.Equal(t, int64(10), sum.Processed)
	assert.Equal(t, int64(12), sum.Persisted)
	assert.Equal(t, 13, p.calls)
}

func TestFillCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := NewDriver(&stubPersister{}, newSource(), 0, zerolog.Nop()).Fill(ctx, 10, 5)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), sum.Processed)
}

func TestFillInvalidArguments(t *testing.T) {
	d := NewDriver(&stubPersister{}, newSource(), 0, zerolog.Nop())

	_, err := d.Fill(context.Background(), 10, 0)
	assert.Equal(t, dberrors.ErrCategoryConfig, dberrors.GetCategory(err))

	sum, err := d.Fill(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Batches)
}
