// Package batch resolves many chromatograms in parallel
package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/524D/mzpeaks/internal/chromatogram"
	"github.com/524D/mzpeaks/internal/resolver"
)

// ErrNoneSucceeded is returned when every chromatogram failed
var ErrNoneSucceeded = errors.New("batch: no chromatogram could be resolved")

// ChromatogramError is the failure of a single chromatogram
type ChromatogramError struct {
	Index int
	Err   error
}

func (e *ChromatogramError) Error() string {
	return fmt.Sprintf("chromatogram %d: %v", e.Index, e.Err)
}

func (e *ChromatogramError) Unwrap() error {
	return e.Err
}

// Result is the outcome for one chromatogram. Peaks is nil when Err is set.
type Result struct {
	Index        int
	Chromatogram *chromatogram.Chromatogram
	Peaks        []resolver.ResolvedPeak
	Err          error
}

// Summary counts the outcome of a run
type Summary struct {
	Total     int
	Processed int
	Succeeded int
	Peaks     int
	Errors    []*ChromatogramError
}

// Runner resolves chromatograms on a bounded pool of workers. The
// resolver is shared by all workers.
type Runner struct {
	Resolver resolver.Resolver
	// Workers is the maximum number of concurrent resolves, 0 is the
	// number of CPUs
	Workers int
	// Progress is called after each chromatogram with the number done
	Progress func(done, total int)
}

// Run resolves chroms and passes each result to consume. consume is only
// called from the goroutine that called Run, in completion order. A
// failing chromatogram is logged and recorded in the summary; Run only
// fails when consume fails, ctx is cancelled or no chromatogram could be
// resolved.
func (r *Runner) Run(ctx context.Context, chroms []*chromatogram.Chromatogram,
	consume func(Result) error) (*Summary, error) {

	sum := &Summary{Total: len(chroms)}
	if len(chroms) == 0 {
		return sum, nil
	}
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	results := make(chan Result)
	waitErr := make(chan error, 1)
	go func() {
		for i, c := range chroms {
			i, c := i, c
			// Cancellation is checked between chromatograms
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				peaks, err := r.Resolver.Resolve(c)
				res := Result{Index: i, Chromatogram: c, Peaks: peaks, Err: err}
				select {
				case results <- res:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		waitErr <- g.Wait()
		close(results)
	}()

	var consumeErr error
	for res := range results {
		if consumeErr != nil {
			// drain after a failed consume
			continue
		}
		sum.Processed++
		if res.Err != nil {
			cerr := &ChromatogramError{Index: res.Index, Err: res.Err}
			log.Printf("%v", cerr)
			sum.Errors = append(sum.Errors, cerr)
		} else {
			sum.Succeeded++
			sum.Peaks += len(res.Peaks)
		}
		if err := consume(res); err != nil {
			consumeErr = err
			cancel()
		}
		if r.Progress != nil {
			r.Progress(sum.Processed, sum.Total)
		}
	}
	err := <-waitErr

	switch {
	case consumeErr != nil:
		return sum, consumeErr
	case ctx.Err() != nil:
		return sum, ctx.Err()
	case err != nil:
		return sum, err
	case sum.Succeeded == 0:
		return sum, fmt.Errorf("%w: %d failed", ErrNoneSucceeded, len(sum.Errors))
	}
	return sum, nil
}
