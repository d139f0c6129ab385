package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testResult struct {
	unit int
	err  error
}

func passThroughHooks(batches [][]int, reported *[][]testResult, mu *sync.Mutex) Hooks[int, testResult] {
	var calls atomic.Int64
	return Hooks[int, testResult]{
		Source: func(context.Context) ([]int, error) {
			i := calls.Add(1) - 1
			if int(i) >= len(batches) {
				return nil, nil
			}
			return batches[i], nil
		},
		Start: func(context.Context, int) (WorkFunc[int, testResult], func(), error) {
			return func(_ context.Context, unit int) testResult {
				return testResult{unit: unit}
			}, func() {}, nil
		},
		Failed: func(unit int, err error) testResult {
			return testResult{unit: unit, err: err}
		},
		Report: func(_ context.Context, results []testResult) error {
			mu.Lock()
			defer mu.Unlock()
			*reported = append(*reported, results)
			return nil
		},
	}
}

func TestRunOneShotDrainsAllBatches(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var reported [][]testResult
	batches := [][]int{{1, 2, 3, 4, 5}, {6}}

	d, err := New(Config{NumWorkers: 3, BatchSize: 5}, passThroughHooks(batches, &reported, &mu), zap.NewNop())
	require.NoError(t, err)

	total, err := d.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 6, total)

	require.Len(t, reported, 2)
	var units []int
	for _, batch := range reported {
		for _, r := range batch {
			require.NoError(t, r.err)
			units = append(units, r.unit)
		}
	}
	sort.Ints(units)
	require.Equal(t, []int{1, 2, 3, 4, 5, 6}, units)
}

func TestRunRecoversWorkerPanic(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var reported [][]testResult

	hooks := Hooks[int, testResult]{
		Source: func() func(context.Context) ([]int, error) {
			sent := false
			return func(context.Context) ([]int, error) {
				if sent {
					return nil, nil
				}
				sent = true
				return []int{1, 2, 3}, nil
			}
		}(),
		Start: func(context.Context, int) (WorkFunc[int, testResult], func(), error) {
			return func(_ context.Context, unit int) testResult {
				if unit == 2 {
					panic("boom")
				}
				return testResult{unit: unit}
			}, func() {}, nil
		},
		Failed: func(unit int, err error) testResult {
			return testResult{unit: unit, err: err}
		},
		Report: func(_ context.Context, results []testResult) error {
			mu.Lock()
			defer mu.Unlock()
			reported = append(reported, results)
			return nil
		},
	}

	d, err := New(Config{NumWorkers: 2, BatchSize: 3}, hooks, zap.NewNop())
	require.NoError(t, err)

	total, err := d.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 3, total)

	// The batch still accounts for all three units, with the panicking
	// one surfaced as an error result.
	require.Len(t, reported, 1)
	require.Len(t, reported[0], 3)
	var failed int
	for _, r := range reported[0] {
		if r.err != nil {
			failed++
			require.Equal(t, 2, r.unit)
			require.Contains(t, r.err.Error(), "panic")
		}
	}
	require.Equal(t, 1, failed)
}

func TestRunWorkerStartFailureReleasesStartedWorkers(t *testing.T) {
	t.Parallel()

	var released atomic.Int32
	hooks := Hooks[int, testResult]{
		Source: func(context.Context) ([]int, error) { return nil, nil },
		Start: func(_ context.Context, id int) (WorkFunc[int, testResult], func(), error) {
			if id == 2 {
				return nil, nil, errors.New("connection pool too small")
			}
			return func(context.Context, int) testResult { return testResult{} },
				func() { released.Add(1) }, nil
		},
		Failed: func(unit int, err error) testResult { return testResult{unit: unit, err: err} },
		Report: func(context.Context, []testResult) error { return nil },
	}

	d, err := New(Config{NumWorkers: 4, BatchSize: 10}, hooks, zap.NewNop())
	require.NoError(t, err)

	_, err = d.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "starting worker 2")
	require.EqualValues(t, 2, released.Load())
}

func TestRunContinuousStopsOnCancel(t *testing.T) {
	t.Parallel()

	hooks := Hooks[int, testResult]{
		Source: func(context.Context) ([]int, error) { return nil, nil },
		Start: func(context.Context, int) (WorkFunc[int, testResult], func(), error) {
			return func(context.Context, int) testResult { return testResult{} }, func() {}, nil
		},
		Failed: func(unit int, err error) testResult { return testResult{unit: unit, err: err} },
		Report: func(context.Context, []testResult) error { return nil },
	}

	d, err := New(Config{
		NumWorkers:   1,
		BatchSize:    1,
		PollInterval: 5 * time.Millisecond,
		RunForever:   true,
	}, hooks, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	total, err := d.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.EqualValues(t, 0, total)
}

func TestRunSourceErrorStopsDispatch(t *testing.T) {
	t.Parallel()

	hooks := Hooks[int, testResult]{
		Source: func(context.Context) ([]int, error) {
			return nil, fmt.Errorf("select failed")
		},
		Start: func(context.Context, int) (WorkFunc[int, testResult], func(), error) {
			return func(context.Context, int) testResult { return testResult{} }, func() {}, nil
		},
		Failed: func(unit int, err error) testResult { return testResult{unit: unit, err: err} },
		Report: func(context.Context, []testResult) error { return nil },
	}

	d, err := New(Config{NumWorkers: 1, BatchSize: 1}, hooks, zap.NewNop())
	require.NoError(t, err)

	_, err = d.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "selecting work batch")
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()

	valid := Hooks[int, testResult]{
		Source: func(context.Context) ([]int, error) { return nil, nil },
		Start: func(context.Context, int) (WorkFunc[int, testResult], func(), error) {
			return nil, nil, nil
		},
		Failed: func(unit int, err error) testResult { return testResult{} },
		Report: func(context.Context, []testResult) error { return nil },
	}

	_, err := New(Config{NumWorkers: 0, BatchSize: 1}, valid, zap.NewNop())
	require.Error(t, err)

	_, err = New(Config{NumWorkers: 1, BatchSize: 0}, valid, zap.NewNop())
	require.Error(t, err)

	_, err = New(Config{NumWorkers: 1, BatchSize: 1, RunForever: true}, valid, zap.NewNop())
	require.Error(t, err)

	missing := valid
	missing.Report = nil
	_, err = New(Config{NumWorkers: 1, BatchSize: 1}, missing, zap.NewNop())
	require.Error(t, err)
}
