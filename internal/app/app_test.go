package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/AvishaiDotan/mongodb-functions/internal/archive"
	"github.com/AvishaiDotan/mongodb-functions/internal/config"
	dberrors "github.com/AvishaiDotan/mongodb-functions/internal/errors"
	"github.com/AvishaiDotan/mongodb-functions/internal/fill"
	"github.com/AvishaiDotan/mongodb-functions/internal/generator"
	"github.com/AvishaiDotan/mongodb-functions/internal/store/memory"
	"github.com/AvishaiDotan/mongodb-functions/pkg/types"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Store.Type = config.StoreMemory
	cfg.Mongo.Database = "app_test"
	cfg.Fill.Total = 6
	cfg.Fill.BatchSize = 4
	cfg.Fill.ProgressInterval = 4
	cfg.Bench.MaxSamples = 3
	cfg.Bench.MaxTime = time.Second
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, server *memory.Server) (*App, *bytes.Buffer, *archive.Archiver) {
	t.Helper()
	objects, err := archive.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ar := archive.New(objects, "runs", zerolog.Nop())

	var out bytes.Buffer
	a, err := New(context.Background(), cfg, zerolog.Nop(),
		WithConnector(server),
		WithOutput(&out),
		WithGenerator(generator.New(generator.WithSeed(11))),
		WithArchiver(ar),
	)
	require.NoError(t, err)
	return a, &out, ar
}

func TestOperationsCatalog(t *testing.T) {
	names := Operations()
	assert.Equal(t, CheckName, names[0])

	seen := make(map[string]bool)
	for _, n := range names {
		assert.False(t, seen[n], "duplicate operation %q", n)
		seen[n] = true
	}
	for _, n := range config.DefaultOperations {
		assert.True(t, seen[n], "default operation %q missing from catalog", n)
	}
}

func TestNewConnector(t *testing.T) {
	cfg := config.DefaultConfig()
	for _, typ := range []config.StoreType{config.StoreMongo, config.StoreSQLite, config.StoreMemory} {
		cfg.Store.Type = typ
		c, err := NewConnector(cfg)
		require.NoError(t, err, typ)
		assert.NotNil(t, c)
	}

	cfg.Store.Type = "cassandra"
	_, err := NewConnector(cfg)
	assert.Equal(t, dberrors.ErrCategoryConfig, dberrors.GetCategory(err))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Fill.BatchSize = 0
	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestRunFill(t *testing.T) {
	ctx := context.Background()
	server := memory.NewServer()
	a, out, ar := newTestApp(t, testConfig(), server)

	sum, err := a.RunFill(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), sum.Processed)
	assert.Equal(t, int64(6), sum.Persisted)
	assert.Equal(t, 2, sum.Batches)

	client, err := server.Connect(ctx)
	require.NoError(t, err)
	defer client.Close(ctx)
	users, err := client.Database("app_test").Collection(types.CollectionUsers).CountDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(6), users)

	text := out.String()
	assert.Contains(t, text, "Progress Update:")
	assert.Contains(t, text, "Data insertion completed successfully!")
	assert.Contains(t, text, "Total users processed: 6")

	keys, err := ar.List(ctx, archive.KindFill)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	var report FillReport
	require.NoError(t, ar.Load(ctx, keys[0], &report))
	assert.Equal(t, int64(6), report.Summary.Processed)
	assert.Empty(t, report.Error)
}

func TestRunFillStopsOnConnectFailure(t *testing.T) {
	server := memory.NewServer()
	connects := 0
	server.SetConnectHook(func() error {
		connects++
		if connects > 2 {
			return errors.New("connection refused")
		}
		return nil
	})
	a, out, ar := newTestApp(t, testConfig(), server)

	sum, err := a.RunFill(context.Background())
	require.Error(t, err)
	assert.True(t, dberrors.IsConnectError(err))
	assert.Equal(t, int64(0), sum.Processed)
	assert.Equal(t, int64(2), sum.Persisted)
	assert.Contains(t, out.String(), "Process stopped at 0 users")

	keys, err := ar.List(context.Background(), archive.KindFill)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	var report FillReport
	require.NoError(t, ar.Load(context.Background(), keys[0], &report))
	assert.NotEmpty(t, report.Error)
	assert.Equal(t, dberrors.CodeUnreachable, report.Code)
}

func TestRunFillRecordsAuthFailure(t *testing.T) {
	server := memory.NewServer()
	server.SetConnectHook(func() error {
		return fmt.Errorf("handshake: %w", dberrors.ErrAuthFailed)
	})
	a, _, ar := newTestApp(t, testConfig(), server)

	_, err := a.RunFill(context.Background())
	require.Error(t, err)
	assert.Equal(t, dberrors.CodeAuthFailed, dberrors.GetCode(err))

	keys, err := ar.List(context.Background(), archive.KindFill)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	var report FillReport
	require.NoError(t, ar.Load(context.Background(), keys[0], &report))
	assert.Equal(t, dberrors.CodeAuthFailed, report.Code)
}

func seed(t *testing.T, a *App) fill.Summary {
	t.Helper()
	var discard bytes.Buffer
	out := a.out
	a.out = &discard
	defer func() { a.out = out }()
	sum, err := a.RunFill(context.Background())
	require.NoError(t, err)
	return sum
}

func TestRunBench(t *testing.T) {
	ctx := context.Background()
	server := memory.NewServer()
	cfg := testConfig()
	cfg.Bench.Operations = []string{
		"Find One Document",
		"Find workbook with tables - aggregate",
		"Find tables with name containing 'ie' with index",
		"Insert 10 Documents without ID",
	}
	a, out, ar := newTestApp(t, cfg, server)
	seed(t, a)
	out.Reset()

	connectsBefore, closesBefore := server.Stats()
	results, err := a.RunBench(ctx, 2)
	require.NoError(t, err)
	require.Len(t, results, 5)

	connects, closes := server.Stats()
	assert.Equal(t, int64(1), connects-connectsBefore, "bench connects exactly once")
	assert.Equal(t, int64(1), closes-closesBefore, "bench closes exactly once")

	assert.Equal(t, CheckName, results[0].Name)
	assert.Equal(t, 1, results[0].Samples())
	for _, r := range results[1:] {
		assert.False(t, r.Failed(), r.Name)
		assert.GreaterOrEqual(t, r.Samples(), 2, r.Name)
		assert.LessOrEqual(t, r.Samples(), 3, r.Name)
	}

	text := out.String()
	assert.Contains(t, text, "Running benchmarks with 2 samples per test")
	assert.Contains(t, text, "Connection Test x ")
	assert.Contains(t, text, "(1 run sampled)")
	assert.Contains(t, text, "Fastest is ")
	assert.Contains(t, text, "Detailed Benchmark Results:")
	assert.True(t, strings.HasSuffix(text, "\nConnection closed\n"))

	keys, err := ar.List(ctx, archive.KindBench)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	var report BenchReport
	require.NoError(t, ar.Load(ctx, keys[0], &report))
	assert.Equal(t, 2, report.Samples)
	require.Len(t, report.Results, 5)
	assert.NotEmpty(t, report.Fastest)
	for i, r := range report.Results {
		assert.Equal(t, results[i].Name, r.Name)
		assert.Equal(t, results[i].Samples(), r.Samples(), r.Name)
		assert.Positive(t, r.Samples(), r.Name)
	}
}

func TestRunBenchFailedOperationIsReported(t *testing.T) {
	server := memory.NewServer()
	cfg := testConfig()
	cfg.Bench.Operations = []string{"Insert One Document with ID", "Find One Document"}
	a, out, _ := newTestApp(t, cfg, server)
	server.SetInsertHook(func(collection string, _ bson.M) error {
		if collection == types.CollectionRecords {
			return errors.New("write rejected")
		}
		return nil
	})

	results, err := a.RunBench(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[1].Failed())
	assert.False(t, results[2].Failed())

	var failedLine string
	for _, l := range strings.Split(out.String(), "\n") {
		if strings.HasPrefix(l, "Insert One Document with ID") && strings.Contains(l, "N/A") {
			failedLine = l
		}
	}
	assert.Equal(t, 3, strings.Count(failedLine, "N/A"))
}

func TestRunBenchConnectFailure(t *testing.T) {
	server := memory.NewServer()
	a, out, ar := newTestApp(t, testConfig(), server)
	server.SetConnectHook(func() error { return errors.New("no route to host") })

	_, err := a.RunBench(context.Background(), 5)
	require.Error(t, err)
	assert.True(t, dberrors.IsConnectError(err))
	assert.NotContains(t, out.String(), "Fastest is")

	keys, err := ar.List(context.Background(), archive.KindBench)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRunBenchRejectsUnknownOperation(t *testing.T) {
	server := memory.NewServer()
	cfg := testConfig()
	cfg.Bench.Operations = []string{"Drop Database"}
	a, _, _ := newTestApp(t, cfg, server)

	_, err := a.RunBench(context.Background(), 1)
	assert.Equal(t, dberrors.ErrCategoryConfig, dberrors.GetCategory(err))
	connects, _ := server.Stats()
	assert.Zero(t, connects)

	_, err = a.RunBench(context.Background(), 0)
	assert.Error(t, err)
}

func TestRunQuery(t *testing.T) {
	ctx := context.Background()
	server := memory.NewServer()
	a, out, _ := newTestApp(t, testConfig(), server)
	seed(t, a)
	out.Reset()

	result, err := a.RunQuery(ctx, "Find one user with enriched data")
	require.NoError(t, err)
	doc, ok := result.(bson.M)
	require.True(t, ok)
	assert.Contains(t, doc, "workbooks")
	assert.Contains(t, out.String(), `"result": {`)
	assert.Contains(t, out.String(), "Find one user with enriched data completed in")

	out.Reset()
	result, err = a.RunQuery(ctx, "Insert 10 Documents with ID")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NotContains(t, out.String(), `"result"`)

	_, err = a.RunQuery(ctx, "nope")
	assert.Equal(t, dberrors.ErrCategoryConfig, dberrors.GetCategory(err))
}
