// Package bench is a sequential micro-benchmark harness for store operations.
// Operations are sampled one call at a time until a sample floor is reached
// and either the relative margin of error is small enough or the time budget
// is spent.
package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	dberrors "github.com/AvishaiDotan/mongodb-functions/internal/errors"
)

// Operation is one measured call. It returns when the work has completed.
type Operation func(ctx context.Context) error

// Options controls when sampling of an operation stops.
type Options struct {
	// MinSamples is the sample floor
	MinSamples int `json:"min_samples" yaml:"min_samples"`

	// MaxSamples caps the samples taken; 0 means no cap
	MaxSamples int `json:"max_samples" yaml:"max_samples"`

	// MaxTime stops sampling once the floor is met and this much time has passed
	MaxTime time.Duration `json:"max_time" yaml:"max_time"`

	// TargetRME stops sampling once the floor is met and the relative margin
	// of error, in percent, is at or below it; 0 disables the rule
	TargetRME float64 `json:"target_rme" yaml:"target_rme"`
}

// DefaultOptions returns the harness defaults.
func DefaultOptions() Options {
	return Options{
		MinSamples: 5,
		MaxSamples: 0,
		MaxTime:    5 * time.Second,
		TargetRME:  1,
	}
}

// CheckOptions are used for the connection check: exactly one sample.
func CheckOptions() Options {
	return Options{MinSamples: 1, MaxSamples: 1}
}

// Result is the outcome of one benchmarked operation.
type Result struct {
	Name    string        `json:"name"`
	Stats   Stats         `json:"stats"`
	Hz      float64       `json:"hz"`
	Elapsed time.Duration `json:"elapsed"`
	Err     error         `json:"-"`
	Error   string        `json:"error,omitempty"`
}

// Samples returns the number of completed calls.
func (r *Result) Samples() int { return r.Stats.Size() }

// Failed reports whether the operation aborted with an error.
func (r *Result) Failed() bool { return r.Err != nil }

// String renders the cycle line, e.g.
// "Find one x 1,234 ops/sec ±1.23% (50 runs sampled)".
func (r *Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Name, r.Err)
	}
	runs := "runs"
	if r.Samples() == 1 {
		runs = "run"
	}
	decimals := 0
	if r.Hz < 100 {
		decimals = 2
	}
	return fmt.Sprintf("%s x %s ops/sec ±%.2f%% (%d %s sampled)",
		r.Name, formatFixed(r.Hz, decimals), r.Stats.RME, r.Samples(), runs)
}

type benchmark struct {
	name string
	op   Operation
	opts Options
}

// Suite holds operations and runs them one at a time in registration order.
// A registered check always runs before every other operation.
type Suite struct {
	opts    Options
	check   *benchmark
	benches []*benchmark
	logger  zerolog.Logger

	// OnCycle, when set, receives each result as soon as its operation finishes.
	OnCycle func(*Result)
}

// NewSuite creates a suite whose operations use opts unless overridden.
func NewSuite(opts Options, logger zerolog.Logger) *Suite {
	return &Suite{
		opts:   opts,
		logger: logger.With().Str("component", "bench").Logger(),
	}
}

// Add registers an operation. A non-nil opts replaces the suite options for it.
func (s *Suite) Add(name string, op Operation, opts *Options) *Suite {
	o := s.opts
	if opts != nil {
		o = *opts
	}
	s.benches = append(s.benches, &benchmark{name: name, op: op, opts: o})
	return s
}

// Check registers the connection check. It runs first with exactly one sample.
func (s *Suite) Check(name string, op Operation) *Suite {
	s.check = &benchmark{name: name, op: op, opts: CheckOptions()}
	return s
}

// Len returns the number of registered operations, including the check.
func (s *Suite) Len() int {
	n := len(s.benches)
	if s.check != nil {
		n++
	}
	return n
}

// Run executes every operation sequentially and returns results in run order.
// An operation error ends that operation only. A cancelled context stops the
// run and returns the results gathered so far together with the context error.
func (s *Suite) Run(ctx context.Context) ([]*Result, error) {
	if s.Len() == 0 {
		return nil, dberrors.NewBenchError(dberrors.CodeNoOperations, "no operations registered", nil)
	}

	order := make([]*benchmark, 0, s.Len())
	if s.check != nil {
		order = append(order, s.check)
	}
	order = append(order, s.benches...)

	results := make([]*Result, 0, len(order))
	for _, b := range order {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		r := s.runOne(ctx, b)
		results = append(results, r)
		if s.OnCycle != nil {
			s.OnCycle(r)
		}
	}
	return results, nil
}

func (s *Suite) runOne(ctx context.Context, b *benchmark) *Result {
	minSamples := b.opts.MinSamples
	if minSamples < 1 {
		minSamples = 1
	}
	s.logger.Debug().Str("operation", b.name).Int("min_samples", minSamples).Msg("sampling")

	var (
		sample []float64
		acc    running
	)
	start := time.Now()
	r := &Result{Name: b.name}

	for {
		callStart := time.Now()
		err := b.op(ctx)
		d := time.Since(callStart)
		if err != nil {
			r.Err = dberrors.NewBenchError(dberrors.CodeOperationFailed,
				fmt.Sprintf("operation %q failed after %d samples", b.name, len(sample)), err)
			r.Error = r.Err.Error()
			s.logger.Error().Err(err).Str("operation", b.name).Msg("operation aborted")
			break
		}
		sample = append(sample, d.Seconds())
		acc.add(d.Seconds())

		if b.opts.MaxSamples > 0 && len(sample) >= b.opts.MaxSamples {
			break
		}
		if len(sample) < minSamples {
			continue
		}
		if b.opts.TargetRME > 0 && acc.rme() <= b.opts.TargetRME {
			break
		}
		if b.opts.MaxTime > 0 && time.Since(start) >= b.opts.MaxTime {
			break
		}
		if b.opts.TargetRME <= 0 && b.opts.MaxTime <= 0 {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	r.Elapsed = time.Since(start)
	r.Stats = computeStats(sample)
	if r.Err == nil && r.Stats.Mean > 0 {
		r.Hz = 1 / r.Stats.Mean
	}
	return r
}
