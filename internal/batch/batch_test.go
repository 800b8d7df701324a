package batch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzpeaks/internal/chromatogram"
	"github.com/524D/mzpeaks/internal/msdata"
	"github.com/524D/mzpeaks/internal/resolver"
)

var errResolve = errors.New("resolve failed")

// fakeResolver returns one peak per chromatogram and fails for the
// chromatograms in fail
type fakeResolver struct {
	fail    map[*chromatogram.Chromatogram]bool
	delay   time.Duration
	running int32
	maxRun  int32
}

func (f *fakeResolver) Resolve(c *chromatogram.Chromatogram) ([]resolver.ResolvedPeak, error) {
	n := atomic.AddInt32(&f.running, 1)
	defer atomic.AddInt32(&f.running, -1)
	for {
		m := atomic.LoadInt32(&f.maxRun)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxRun, m, n) {
			break
		}
	}
	time.Sleep(f.delay)
	if f.fail[c] {
		return nil, errResolve
	}
	return []resolver.ResolvedPeak{{Chromatogram: c}}, nil
}

func chromatograms(t *testing.T, n int) []*chromatogram.Chromatogram {
	t.Helper()
	f := msdata.NewDataFile("batch")
	require.NoError(t, f.AddScan(&msdata.Scan{Number: 1, MSLevel: 1}))
	chroms := make([]*chromatogram.Chromatogram, n)
	for i := range chroms {
		c, err := chromatogram.New(f, []int{1}, map[int]msdata.DataPoint{1: {Mz: float64(100 + i), Intens: 1}})
		require.NoError(t, err)
		chroms[i] = c
	}
	return chroms
}

func TestRun(t *testing.T) {
	chroms := chromatograms(t, 20)
	res := &fakeResolver{
		fail:  map[*chromatogram.Chromatogram]bool{chroms[3]: true, chroms[7]: true},
		delay: time.Millisecond,
	}
	var progress []int
	r := &Runner{
		Resolver: res,
		Workers:  3,
		Progress: func(done, total int) {
			assert.Equal(t, 20, total)
			progress = append(progress, done)
		},
	}

	var indices []int
	sum, err := r.Run(context.Background(), chroms, func(res Result) error {
		indices = append(indices, res.Index)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 20, sum.Processed)
	assert.Equal(t, 18, sum.Succeeded)
	assert.Equal(t, 18, sum.Peaks)
	require.Len(t, sum.Errors, 2)
	assert.True(t, errors.Is(sum.Errors[0], errResolve))
	failed := []int{sum.Errors[0].Index, sum.Errors[1].Index}
	sort.Ints(failed)
	assert.Equal(t, []int{3, 7}, failed)

	sort.Ints(indices)
	for i := range indices {
		assert.Equal(t, i, indices[i])
	}
	require.Len(t, progress, 20)
	assert.Equal(t, 20, progress[19])
	assert.LessOrEqual(t, res.maxRun, int32(3))
}

func TestRunAllFail(t *testing.T) {
	chroms := chromatograms(t, 3)
	fail := make(map[*chromatogram.Chromatogram]bool)
	for _, c := range chroms {
		fail[c] = true
	}
	r := &Runner{Resolver: &fakeResolver{fail: fail}}
	sum, err := r.Run(context.Background(), chroms, func(Result) error { return nil })
	assert.True(t, errors.Is(err, ErrNoneSucceeded))
	assert.Len(t, sum.Errors, 3)
}

func TestRunEmpty(t *testing.T) {
	r := &Runner{Resolver: &fakeResolver{}}
	sum, err := r.Run(context.Background(), nil, func(Result) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Total)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Runner{Resolver: &fakeResolver{}, Workers: 2}
	_, err := r.Run(ctx, chromatograms(t, 10), func(Result) error { return nil })
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunConsumeError(t *testing.T) {
	errConsume := errors.New("disk full")
	var mu sync.Mutex
	calls := 0
	r := &Runner{Resolver: &fakeResolver{delay: time.Millisecond}, Workers: 2}
	sum, err := r.Run(context.Background(), chromatograms(t, 50), func(Result) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 5 {
			return errConsume
		}
		return nil
	})
	assert.True(t, errors.Is(err, errConsume))
	assert.Equal(t, 5, calls)
	assert.Less(t, sum.Processed, 50)
}
