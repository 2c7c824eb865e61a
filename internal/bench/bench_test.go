package bench

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dberrors "github.com/AvishaiDotan/mongodb-functions/internal/errors"
)

func TestComputeStats(t *testing.T) {
	s := computeStats([]float64{1, 2, 3, 4, 5})
	assert.Equal(t, 5, s.Size())
	assert.InDelta(t, 3.0, s.Mean, 1e-12)
	assert.InDelta(t, 2.5, s.Variance, 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), s.Deviation, 1e-12)
	assert.InDelta(t, math.Sqrt(2.5)/math.Sqrt(5), s.SEM, 1e-12)
	assert.InDelta(t, s.SEM*2.776, s.MOE, 1e-12)
	assert.InDelta(t, s.MOE/3*100, s.RME, 1e-9)
}

func TestComputeStatsSmallSamples(t *testing.T) {
	empty := computeStats(nil)
	assert.Equal(t, 0, empty.Size())
	assert.Zero(t, empty.Mean)

	one := computeStats([]float64{0.5})
	assert.InDelta(t, 0.5, one.Mean, 1e-12)
	assert.Zero(t, one.Variance)
	assert.Zero(t, one.RME)
}

func TestTCritical(t *testing.T) {
	assert.Equal(t, 12.706, tCritical(1))
	assert.Equal(t, 2.042, tCritical(30))
	assert.Equal(t, 1.96, tCritical(31))
	assert.Equal(t, 1.96, tCritical(1000))
	assert.Equal(t, 12.706, tCritical(0))
}

func counting(n *int) Operation {
	return func(context.Context) error {
		*n++
		return nil
	}
}

func TestSuiteRunsCheckFirstOnce(t *testing.T) {
	var order []string
	op := func(name string) Operation {
		return func(context.Context) error {
			order = append(order, name)
			return nil
		}
	}

	opts := Options{MinSamples: 3, MaxSamples: 3}
	s := NewSuite(opts, zerolog.Nop())
	s.Add("a", op("a"), nil)
	s.Check("Connection Test", op("check"))
	s.Add("b", op("b"), nil)

	results, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, []string{"check", "a", "a", "a", "b", "b", "b"}, order)
	assert.Equal(t, "Connection Test", results[0].Name)
	assert.Equal(t, 1, results[0].Samples())
	assert.Equal(t, 3, results[1].Samples())
}

func TestMinSamplesFloor(t *testing.T) {
	calls := 0
	// a large target RME would stop immediately without the floor
	s := NewSuite(Options{MinSamples: 20, MaxSamples: 1000, TargetRME: 1000}, zerolog.Nop())
	s.Add("op", counting(&calls), nil)

	results, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls, 20)
	assert.Equal(t, calls, results[0].Samples())
}

func TestMaxTimeStopsSampling(t *testing.T) {
	calls := 0
	op := func(context.Context) error {
		calls++
		time.Sleep(2 * time.Millisecond)
		return nil
	}
	s := NewSuite(Options{MinSamples: 2, MaxTime: 30 * time.Millisecond}, zerolog.Nop())
	s.Add("sleepy", op, nil)

	results, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls, 2)
	assert.Less(t, calls, 100)
	assert.Less(t, results[0].Elapsed, time.Second)
}

func TestHzMatchesDelay(t *testing.T) {
	delay := 10 * time.Millisecond
	op := func(context.Context) error {
		time.Sleep(delay)
		return nil
	}
	s := NewSuite(Options{MinSamples: 5, MaxSamples: 5}, zerolog.Nop())
	s.Add("sleep 10ms", op, nil)

	results, err := s.Run(context.Background())
	require.NoError(t, err)
	r := results[0]
	assert.Equal(t, 5, r.Samples())
	// sleep never returns early, so hz is at most 100 and scheduler slack keeps it well above 40
	assert.LessOrEqual(t, r.Hz, 100.0)
	assert.Greater(t, r.Hz, 40.0)
	assert.GreaterOrEqual(t, r.Stats.Mean, delay.Seconds())
}

func TestOperationErrorAbortsOnlyThatOperation(t *testing.T) {
	boom := errors.New("boom")
	failing := 0
	s := NewSuite(Options{MinSamples: 4, MaxSamples: 4}, zerolog.Nop())
	s.Add("fails on third", func(context.Context) error {
		failing++
		if failing == 3 {
			return boom
		}
		return nil
	}, nil)
	healthy := 0
	s.Add("healthy", counting(&healthy), nil)

	var cycles []string
	s.OnCycle = func(r *Result) { cycles = append(cycles, r.Name) }

	results, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Failed())
	assert.ErrorIs(t, results[0].Err, boom)
	assert.Equal(t, dberrors.CodeOperationFailed, dberrors.GetCode(results[0].Err))
	assert.Equal(t, 2, results[0].Samples())
	assert.Zero(t, results[0].Hz)
	assert.Equal(t, 3, failing)

	assert.False(t, results[1].Failed())
	assert.Equal(t, 4, healthy)
	assert.Equal(t, []string{"fails on third", "healthy"}, cycles)
}

func TestPerOperationOptions(t *testing.T) {
	calls := 0
	s := NewSuite(Options{MinSamples: 10, MaxSamples: 10}, zerolog.Nop())
	s.Add("short", counting(&calls), &Options{MinSamples: 2, MaxSamples: 2})

	_, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestEmptySuite(t *testing.T) {
	_, err := NewSuite(DefaultOptions(), zerolog.Nop()).Run(context.Background())
	assert.Equal(t, dberrors.CodeNoOperations, dberrors.GetCode(err))
}

func TestCancelledRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	s := NewSuite(Options{MinSamples: 1, MaxSamples: 1}, zerolog.Nop())
	s.Add("op", counting(&calls), nil)

	results, err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
	assert.Zero(t, calls)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "1,234,567", FormatNumber(1234567))
	assert.Equal(t, "1,234.5", FormatNumber(1234.5))
	assert.Equal(t, "12.35", FormatNumber(12.3456))
	assert.Equal(t, "N/A", FormatNumber(math.NaN()))

	assert.Equal(t, "1,234", formatFixed(1234.4, 0))
	assert.Equal(t, "12.50", formatFixed(12.5, 2))
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "12.35 ms", FormatTime(0.012345))
	assert.Equal(t, "0.00 ms", FormatTime(0))
	assert.Equal(t, "N/A", FormatTime(math.Inf(1)))
}

func TestResultString(t *testing.T) {
	r := &Result{
		Name:  "Find one",
		Stats: Stats{N: 50, RME: 1.234},
		Hz:    1234.4,
	}
	assert.Equal(t, "Find one x 1,234 ops/sec ±1.23% (50 runs sampled)", r.String())

	r = &Result{Name: "Connection Test", Stats: Stats{N: 1}, Hz: 99.5}
	assert.Equal(t, "Connection Test x 99.50 ops/sec ±0.00% (1 run sampled)", r.String())
}

func TestFastest(t *testing.T) {
	results := []*Result{
		{Name: "a", Hz: 10, Stats: Stats{Mean: 0.1}},
		{Name: "b", Hz: 30, Stats: Stats{Mean: 1.0 / 30}},
		{Name: "c", Hz: 30, Stats: Stats{Mean: 1.0 / 30}},
		{Name: "d", Hz: 100, Stats: Stats{Mean: 0.01}, Err: errors.New("x")},
	}
	assert.Equal(t, []string{"b", "c"}, Fastest(results))
	assert.Nil(t, Fastest(nil))
}

func TestFastestTreatsOverlappingMarginsAsTies(t *testing.T) {
	results := []*Result{
		{Name: "steady", Hz: 1000, Stats: Stats{Mean: 0.001, MOE: 0.0001}},
		{Name: "noisy", Hz: 950, Stats: Stats{Mean: 1.0 / 950, MOE: 0.0002}},
		{Name: "slow", Hz: 500, Stats: Stats{Mean: 0.002, MOE: 0.0001}},
	}
	assert.Equal(t, []string{"steady", "noisy"}, Fastest(results))

	results[1].Stats.MOE = 0
	results[0].Stats.MOE = 0
	assert.Equal(t, []string{"steady"}, Fastest(results))
}

func TestRunningMatchesComputeStats(t *testing.T) {
	sample := []float64{0.0012, 0.0011, 0.0015, 0.0009, 0.0013, 0.0010, 0.0014}
	var acc running
	for _, v := range sample {
		acc.add(v)
	}
	assert.InDelta(t, computeStats(sample).RME, acc.rme(), 1e-9)

	var one running
	one.add(0.5)
	assert.Zero(t, one.rme())
}

func TestResultJSONKeepsSampleCount(t *testing.T) {
	r := &Result{Name: "Find One Document", Stats: computeStats([]float64{1, 2, 3, 4, 5}), Hz: 0.33}
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"samples":5`)

	var back Result
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 5, back.Samples())
	assert.Nil(t, back.Stats.Sample)
}

func TestWriteReport(t *testing.T) {
	results := []*Result{
		{Name: "Connection Test", Stats: computeStats([]float64{0.002}), Hz: 500},
		{Name: "Insert many", Stats: computeStats([]float64{0.0005, 0.0005}), Hz: 2000},
		{Name: "Broken", Err: errors.New("down")},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, results))
	out := buf.String()

	assert.Contains(t, out, "Fastest is Insert many\n")
	assert.Contains(t, out, strings.Repeat("=", 80))
	header := "Test Name" + strings.Repeat(" ", 39) + "Ops/sec" + strings.Repeat(" ", 6) + "Mean Time" + strings.Repeat(" ", 8) + "Std Dev\n"
	assert.Contains(t, out, header)

	lines := strings.Split(out, "\n")
	var insert, broken string
	for _, l := range lines {
		switch {
		case strings.HasPrefix(l, "Insert many"):
			insert = l
		case strings.HasPrefix(l, "Broken"):
			broken = l
		}
	}
	assert.Equal(t, 85, len(insert))
	assert.Contains(t, insert, "2,000")
	assert.Contains(t, insert, "0.50 ms")
	assert.Contains(t, insert, "0.00 ms")
	assert.Equal(t, strings.Count(broken, notAvailable), 3)
}
