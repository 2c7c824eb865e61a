// Package archive persists JSON run reports (benchmark results, fill
// summaries) to object storage.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Common errors for archive operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrPutFailed      = errors.New("put failed")
	ErrGetFailed      = errors.New("get failed")
)

// Report kinds.
const (
	KindBench = "bench"
	KindFill  = "fill"
)

// timestampLayout sorts lexically in time order.
const timestampLayout = "20060102T150405.000Z"

// ObjectStore abstracts the storage behind the archive. Implementations
// exist for the local filesystem and S3.
type ObjectStore interface {
	// Put writes data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte) error

	// Get reads the object at key. Missing objects return ErrObjectNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns every key under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Archiver writes reports under <prefix>/<kind>/<UTC timestamp>-<id>.json.
// Reports saved within the same millisecond sort in arbitrary order.
type Archiver struct {
	store       ObjectStore
	prefix      string
	concurrency int
	now         func() time.Time
	newID       func() string
	logger      zerolog.Logger
}

func shortID() string {
	return uuid.NewString()[:8]
}

// New creates an archiver over store. An empty prefix writes kinds at the root.
func New(store ObjectStore, prefix string, logger zerolog.Logger) *Archiver {
	return &Archiver{
		store:       store,
		prefix:      strings.Trim(prefix, "/"),
		concurrency: 8,
		now:         time.Now,
		newID:       shortID,
		logger:      logger.With().Str("component", "archive").Logger(),
	}
}

// Key returns the object key for a report of kind written at t. id keeps
// keys written within the same millisecond apart.
func (a *Archiver) Key(kind string, t time.Time, id string) string {
	name := t.UTC().Format(timestampLayout) + "-" + id + ".json"
	if a.prefix == "" {
		return path.Join(kind, name)
	}
	return path.Join(a.prefix, kind, name)
}

// Save marshals report as indented JSON and stores it. It returns the key.
func (a *Archiver) Save(ctx context.Context, kind string, report any) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s report: %w", kind, err)
	}
	key := a.Key(kind, a.now(), a.newID())
	if err := a.store.Put(ctx, key, data); err != nil {
		return "", err
	}
	a.logger.Info().Str("key", key).Int("bytes", len(data)).Msg("report archived")
	return key, nil
}

// Load reads the report at key into out.
func (a *Archiver) Load(ctx context.Context, key string, out any) error {
	data, err := a.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// List returns the keys of every report of kind, oldest first.
func (a *Archiver) List(ctx context.Context, kind string) ([]string, error) {
	prefix := kind + "/"
	if a.prefix != "" {
		prefix = a.prefix + "/" + prefix
	}
	keys, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasSuffix(k, ".json") {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Fetched is one report read by LoadAll.
type Fetched struct {
	Key  string
	Data json.RawMessage
	Err  error
}

// LoadAll reads the given keys in parallel, bounded by the archiver's
// concurrency. Results come back in key order; per-key failures are recorded
// in Fetched.Err.
func (a *Archiver) LoadAll(ctx context.Context, keys []string) ([]Fetched, error) {
	results := make([]Fetched, len(keys))
	sem := semaphore.NewWeighted(int64(a.concurrency))
	var wg sync.WaitGroup

	for i, key := range keys {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			defer sem.Release(1)
			data, err := a.store.Get(ctx, key)
			results[i] = Fetched{Key: key, Data: data, Err: err}
		}(i, key)
	}
	wg.Wait()

	return results, nil
}
