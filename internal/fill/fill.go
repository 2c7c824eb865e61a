// Package fill drives the fanout loader in batches until a target number of
// users has been processed.
package fill

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	dberrors "github.com/AvishaiDotan/mongodb-functions/internal/errors"
	"github.com/AvishaiDotan/mongodb-functions/internal/loader"
	"github.com/AvishaiDotan/mongodb-functions/pkg/types"
)

// DefaultProgressInterval is the number of processed users between progress reports.
const DefaultProgressInterval = 1_000_000

// UserSource produces users for a batch.
type UserSource interface {
	GenerateUsers(count int, shallow bool) []*types.User
}

// Progress is emitted each time the processed count crosses the reporting interval.
type Progress struct {
	Percent   float64
	Processed int64
	Remaining int64

	// last batch
	BatchUsers     int
	BatchDocuments int
	BatchDuration  time.Duration
	UsersPerSec    float64
	DocsPerSec     float64
}

// Summary describes a finished or stopped fill.
type Summary struct {
	Processed int64         `json:"processed"`
	Persisted int64         `json:"persisted"`
	Failed    int64         `json:"failed"`
	Documents int64         `json:"documents"`
	Batches   int           `json:"batches"`
	Duration  time.Duration `json:"duration"`
}

// Driver runs fills. Users are persisted one at a time.
type Driver struct {
	persister        loader.Persister
	source           UserSource
	progressInterval int64
	logger           zerolog.Logger

	// OnProgress, when set, receives every progress report.
	OnProgress func(Progress)
}

// NewDriver creates a Driver. A non-positive progressInterval uses DefaultProgressInterval.
func NewDriver(persister loader.Persister, source UserSource, progressInterval int64, logger zerolog.Logger) *Driver {
	if progressInterval <= 0 {
		progressInterval = DefaultProgressInterval
	}
	return &Driver{
		persister:        persister,
		source:           source,
		progressInterval: progressInterval,
		logger:           logger.With().Str("component", "fill").Logger(),
	}
}

// Fill generates and persists users in batches of min(batchSize, remaining)
// until totalTarget users have been processed. A user whose persist fails
// with a PersistError is counted as failed and skipped. Any other error
// stops the fill; the returned Summary reflects the progress reached.
func (d *Driver) Fill(ctx context.Context, totalTarget, batchSize int64) (sum Summary, err error) {
	if totalTarget < 0 || batchSize <= 0 {
		return sum, dberrors.NewConfigError(
			fmt.Sprintf("invalid fill target %d or batch size %d", totalTarget, batchSize))
	}

	start := time.Now()
	defer func() { sum.Duration = time.Since(start) }()

	d.logger.Info().
		Int64("total", totalTarget).
		Int64("batch_size", batchSize).
		Msg("starting fill")

	var lastReport int64
	for sum.Processed < totalTarget {
		if cerr := ctx.Err(); cerr != nil {
			return sum, d.stopped(sum, cerr)
		}

		n := batchSize
		if remaining := totalTarget - sum.Processed; remaining < n {
			n = remaining
		}
		sum.Batches++
		d.logger.Debug().Int("batch", sum.Batches).Int64("users", n).Msg("generating batch")
		users := d.source.GenerateUsers(int(n), false)
		if len(users) == 0 {
			return sum, d.stopped(sum, dberrors.NewInternalError("user source returned an empty batch", nil))
		}

		batchStart := time.Now()
		batchDocs := 0
		for _, u := range users {
			written, perr := d.persister.Persist(ctx, u)
			batchDocs += written
			sum.Documents += int64(written)
			if perr == nil {
				sum.Persisted++
				continue
			}
			if dberrors.IsPersistError(perr) {
				sum.Failed++
				d.logger.Warn().Err(perr).Int("persisted", written).Msg("user partially persisted, skipping")
				continue
			}
			return sum, d.stopped(sum, perr)
		}
		elapsed := time.Since(batchStart)
		sum.Processed += int64(len(users))

		if sum.Processed-lastReport >= d.progressInterval {
			d.report(sum, totalTarget, len(users), batchDocs, elapsed)
			lastReport = sum.Processed
		}
	}

	d.logger.Info().
		Int64("processed", sum.Processed).
		Int64("persisted", sum.Persisted).
		Int64("failed", sum.Failed).
		Int64("documents", sum.Documents).
		Msg("fill completed")
	return sum, nil
}

func (d *Driver) stopped(sum Summary, err error) error {
	d.logger.Error().Err(err).Int64("processed", sum.Processed).Msg("fill stopped")
	return fmt.Errorf("fill stopped at %d processed users: %w", sum.Processed, err)
}

func (d *Driver) report(sum Summary, total int64, batchUsers, batchDocs int, elapsed time.Duration) {
	p := Progress{
		Processed:      sum.Processed,
		Remaining:      total - sum.Processed,
		BatchUsers:     batchUsers,
		BatchDocuments: batchDocs,
		BatchDuration:  elapsed,
	}
	if total > 0 {
		p.Percent = float64(sum.Processed) / float64(total) * 100
	}
	if secs := elapsed.Seconds(); secs > 0 {
		p.UsersPerSec = float64(batchUsers) / secs
		p.DocsPerSec = float64(batchDocs) / secs
	}

	d.logger.Info().
		Str("progress", fmt.Sprintf("%.4f%%", p.Percent)).
		Int64("processed", p.Processed).
		Int64("remaining", p.Remaining).
		Int("batch_users", p.BatchUsers).
		Int("batch_documents", p.BatchDocuments).
		Dur("batch_duration", p.BatchDuration).
		Float64("docs_per_sec", p.DocsPerSec).
		Msg("progress update")

	if d.OnProgress != nil {
		d.OnProgress(p)
	}
}
