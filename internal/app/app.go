// Package app wires configuration, the document store, the fill driver and
// the benchmark suite together for the docbench commands.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/AvishaiDotan/mongodb-functions/internal/archive"
	"github.com/AvishaiDotan/mongodb-functions/internal/bench"
	"github.com/AvishaiDotan/mongodb-functions/internal/config"
	dberrors "github.com/AvishaiDotan/mongodb-functions/internal/errors"
	"github.com/AvishaiDotan/mongodb-functions/internal/fill"
	"github.com/AvishaiDotan/mongodb-functions/internal/generator"
	"github.com/AvishaiDotan/mongodb-functions/internal/loader"
	"github.com/AvishaiDotan/mongodb-functions/internal/queries"
	"github.com/AvishaiDotan/mongodb-functions/internal/store"
	"github.com/AvishaiDotan/mongodb-functions/internal/store/memory"
	"github.com/AvishaiDotan/mongodb-functions/internal/store/mongostore"
	"github.com/AvishaiDotan/mongodb-functions/internal/store/sqlite"
)

// App runs the fill, bench and query commands against one configured store.
type App struct {
	cfg       *config.Config
	logger    zerolog.Logger
	out       io.Writer
	connector store.Connector
	archiver  *archive.Archiver
	gen       *generator.Generator
}

// Option customizes an App.
type Option func(*App)

// WithConnector replaces the connector built from configuration.
func WithConnector(c store.Connector) Option {
	return func(a *App) { a.connector = c }
}

// WithOutput sets where reports are printed. The default is stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithGenerator sets the entity generator.
func WithGenerator(g *generator.Generator) Option {
	return func(a *App) { a.gen = g }
}

// WithArchiver replaces the archiver built from configuration.
func WithArchiver(ar *archive.Archiver) Option {
	return func(a *App) { a.archiver = ar }
}

// New validates cfg and builds the store connector and, when enabled, the
// report archiver.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.gen == nil {
		a.gen = generator.New()
	}
	if a.connector == nil {
		c, err := NewConnector(cfg)
		if err != nil {
			return nil, err
		}
		a.connector = c
	}
	if a.archiver == nil && cfg.Archive.Enabled {
		ar, err := NewArchiver(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.archiver = ar
	}
	return a, nil
}

// NewConnector builds the store connector selected by cfg.Store.Type.
func NewConnector(cfg *config.Config) (store.Connector, error) {
	switch cfg.Store.Type {
	case config.StoreMongo:
		c := mongostore.NewConnector(cfg.MongoURI())
		if cfg.Mongo.ConnectTimeout > 0 {
			c.ConnectTimeout = cfg.Mongo.ConnectTimeout
		}
		return c, nil
	case config.StoreSQLite:
		return sqlite.NewConnector(cfg.Store.Path), nil
	case config.StoreMemory:
		return memory.NewServer(), nil
	default:
		return nil, dberrors.NewConfigError(fmt.Sprintf("unsupported store type: %s", cfg.Store.Type))
	}
}

// NewArchiver builds the report archiver selected by cfg.Archive.Type.
func NewArchiver(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*archive.Archiver, error) {
	var (
		objects archive.ObjectStore
		err     error
	)
	switch cfg.Archive.Type {
	case "local":
		objects, err = archive.NewLocalStore(cfg.Archive.Path)
	case "s3":
		objects, err = archive.NewS3Store(ctx, cfg.Archive.S3.Bucket, archive.S3Config{
			Region:   cfg.Archive.S3.Region,
			Endpoint: cfg.Archive.S3.Endpoint,
		})
	default:
		return nil, dberrors.NewConfigError(fmt.Sprintf("unsupported archive type: %s", cfg.Archive.Type))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize archive: %w", err)
	}
	logger.Debug().Str("type", cfg.Archive.Type).Msg("archive initialized")
	return archive.New(objects, cfg.Archive.Prefix, logger), nil
}

// Archiver returns the report archiver, or nil when archiving is disabled.
func (a *App) Archiver() *archive.Archiver { return a.archiver }

// FillReport is the archived record of a fill run.
type FillReport struct {
	Total     int          `json:"total"`
	BatchSize int          `json:"batch_size"`
	Summary   fill.Summary `json:"summary"`
	Error     string       `json:"error,omitempty"`
	Code      string       `json:"code,omitempty"`
}

// RunFill generates and persists cfg.Fill.Total users in batches. The summary
// is printed and archived whether or not the fill completed.
func (a *App) RunFill(ctx context.Context) (fill.Summary, error) {
	fc := a.cfg.Fill
	fmt.Fprintln(a.out, "Starting data insertion process...")
	fmt.Fprintf(a.out, "Total users to insert: %s\n", bench.FormatNumber(float64(fc.Total)))
	fmt.Fprintf(a.out, "Batch size: %s users per batch\n", bench.FormatNumber(float64(fc.BatchSize)))
	fmt.Fprintln(a.out, "----------------------------------------")

	l := loader.New(a.connector, a.cfg.Mongo.Database, a.logger)
	driver := fill.NewDriver(l, a.gen, int64(fc.ProgressInterval), a.logger)
	driver.OnProgress = a.printProgress

	sum, err := driver.Fill(ctx, int64(fc.Total), int64(fc.BatchSize))

	report := FillReport{Total: fc.Total, BatchSize: fc.BatchSize, Summary: sum}
	if err != nil {
		report.Error = err.Error()
		report.Code = dberrors.GetCode(err)
		fmt.Fprintln(a.out, "\nError during data insertion:")
		fmt.Fprintln(a.out, err)
		fmt.Fprintf(a.out, "Process stopped at %s users\n", bench.FormatNumber(float64(sum.Processed)))
	} else {
		fmt.Fprintln(a.out, "\n========================================")
		fmt.Fprintln(a.out, "Data insertion completed successfully!")
		fmt.Fprintf(a.out, "Total users processed: %s\n", bench.FormatNumber(float64(sum.Processed)))
		fmt.Fprintf(a.out, "Documents written: %s\n", bench.FormatNumber(float64(sum.Documents)))
		if sum.Failed > 0 {
			fmt.Fprintf(a.out, "Users partially persisted: %s\n", bench.FormatNumber(float64(sum.Failed)))
		}
		fmt.Fprintln(a.out, "========================================")
	}

	a.archive(context.WithoutCancel(ctx), archive.KindFill, report)
	return sum, err
}

func (a *App) printProgress(p fill.Progress) {
	fmt.Fprintln(a.out, "\n----------------------------------------")
	fmt.Fprintln(a.out, "Progress Update:")
	fmt.Fprintf(a.out, "- Overall Progress: %.4f%%\n", p.Percent)
	fmt.Fprintf(a.out, "- Users Processed: %s\n", bench.FormatNumber(float64(p.Processed)))
	fmt.Fprintf(a.out, "- Users Remaining: %s\n", bench.FormatNumber(float64(p.Remaining)))
	fmt.Fprintln(a.out, "- Last Batch Performance:")
	fmt.Fprintf(a.out, "  - Users: %s\n", bench.FormatNumber(float64(p.BatchUsers)))
	fmt.Fprintf(a.out, "  - Documents: %s\n", bench.FormatNumber(float64(p.BatchDocuments)))
	fmt.Fprintf(a.out, "  - Duration: %.2fs\n", p.BatchDuration.Seconds())
	fmt.Fprintf(a.out, "  - Rate: %s docs/s\n", bench.FormatNumber(p.DocsPerSec))
	fmt.Fprintln(a.out, "----------------------------------------")
}

// BenchReport is the archived record of a benchmark run.
type BenchReport struct {
	Samples    int             `json:"samples"`
	Options    bench.Options   `json:"options"`
	StartedAt  time.Time       `json:"started_at"`
	Results    []*bench.Result `json:"results"`
	Fastest    []string        `json:"fastest"`
	Incomplete bool            `json:"incomplete,omitempty"`
}

// RunBench connects once, runs the connection check followed by the
// configured operations with samples as the sample floor, prints the cycle
// lines and the report, archives the results and closes the client.
//
// A failed connection returns a CONNECT error. A failed operation shows as
// N/A in the report and does not fail the run.
func (a *App) RunBench(ctx context.Context, samples int) ([]*bench.Result, error) {
	if samples < 1 {
		return nil, dberrors.NewConfigError(fmt.Sprintf("samples must be at least 1, got %d", samples))
	}
	ops, err := a.selectedOperations()
	if err != nil {
		return nil, err
	}

	client, err := a.connector.Connect(ctx)
	if err != nil {
		cerr := dberrors.NewConnectError("failed to connect to the document store", err)
		a.logger.Error().Err(err).Str("code", dberrors.GetCode(cerr)).Msg("failed to run benchmarks")
		return nil, cerr
	}
	closeClient := a.closer(client)
	defer closeClient()

	fmt.Fprintln(a.out, "Connected to the document store successfully")
	fmt.Fprintf(a.out, "Running benchmarks with %d samples per test\n", samples)

	q := queries.New(client, a.cfg.Mongo.Database, a.gen, a.logger)
	for _, op := range ops {
		if op.needsIndex {
			if _, err := q.EnsureTableNameIndex(ctx); err != nil {
				a.logger.Warn().Err(err).Msg("table name index unavailable")
			}
			break
		}
	}

	opts := bench.Options{
		MinSamples: samples,
		MaxSamples: a.cfg.Bench.MaxSamples,
		MaxTime:    a.cfg.Bench.MaxTime,
		TargetRME:  a.cfg.Bench.TargetRME,
	}
	if opts.MaxSamples != 0 && opts.MaxSamples < samples {
		opts.MaxSamples = samples
	}

	suite := bench.NewSuite(opts, a.logger)
	check, _ := lookupOperation(CheckName)
	suite.Check(CheckName, bind(check, q))
	for _, op := range ops {
		suite.Add(op.name, bind(op, q), nil)
	}
	suite.OnCycle = func(r *bench.Result) { fmt.Fprintln(a.out, r.String()) }

	report := BenchReport{Samples: samples, Options: opts, StartedAt: time.Now().UTC()}
	results, runErr := suite.Run(ctx)
	report.Results = results
	report.Fastest = bench.Fastest(results)
	report.Incomplete = runErr != nil

	if err := bench.WriteReport(a.out, results); err != nil {
		a.logger.Warn().Err(err).Msg("failed to write report")
	}
	a.archive(context.WithoutCancel(ctx), archive.KindBench, report)

	closeClient()
	fmt.Fprintln(a.out, "\nConnection closed")
	return results, runErr
}

// RunQuery runs one catalog operation once and prints its result as
// relaxed extended JSON.
func (a *App) RunQuery(ctx context.Context, name string) (any, error) {
	op, ok := lookupOperation(name)
	if !ok {
		return nil, dberrors.NewConfigError(fmt.Sprintf("unknown operation %q", name))
	}

	client, err := a.connector.Connect(ctx)
	if err != nil {
		return nil, dberrors.NewConnectError("failed to connect to the document store", err)
	}
	closeClient := a.closer(client)
	defer closeClient()

	q := queries.New(client, a.cfg.Mongo.Database, a.gen, a.logger)
	if op.needsIndex {
		if _, err := q.EnsureTableNameIndex(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("table name index unavailable")
		}
	}

	start := time.Now()
	result, err := op.run(ctx, q)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}

	if result != nil {
		data, merr := bson.MarshalExtJSONIndent(bson.M{"result": result}, false, false, "", "  ")
		if merr != nil {
			return nil, dberrors.NewQueryError(dberrors.CodeDecodeFailed, "render result", merr)
		}
		fmt.Fprintln(a.out, string(data))
	}
	fmt.Fprintf(a.out, "%s completed in %s\n", op.name, bench.FormatTime(elapsed.Seconds()))
	return result, nil
}

func (a *App) selectedOperations() ([]operation, error) {
	names := a.cfg.Bench.Operations
	if len(names) == 0 {
		names = config.DefaultOperations
	}
	ops := make([]operation, 0, len(names))
	for _, name := range names {
		if name == CheckName {
			continue
		}
		op, ok := lookupOperation(name)
		if !ok {
			return nil, dberrors.NewConfigError(fmt.Sprintf("unknown benchmark operation %q", name))
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// closer returns a function that closes client at most once.
func (a *App) closer(client store.Client) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := client.Close(ctx); err != nil {
				a.logger.Warn().Err(err).Msg("failed to close client")
			}
		})
	}
}

func (a *App) archive(ctx context.Context, kind string, report any) {
	if a.archiver == nil {
		return
	}
	if _, err := a.archiver.Save(ctx, kind, report); err != nil {
		a.logger.Warn().Err(err).Str("kind", kind).Msg("failed to archive report")
	}
}

func bind(op operation, q *queries.Queries) bench.Operation {
	return func(ctx context.Context) error {
		_, err := op.run(ctx, q)
		return err
	}
}
