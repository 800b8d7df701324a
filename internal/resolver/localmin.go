package resolver

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/524D/mzpeaks/internal/chromatogram"
)

// LocalMinimumParams configures the local minimum search resolver
type LocalMinimumParams struct {
	// ChromThreshold is the quantile (0-1) of the chromatogram intensities
	// below which intensities are treated as zero
	ChromThreshold float64
	// SearchRT is the width (minutes) of the window in which a scan must
	// be the minimum to split a peak
	SearchRT float64
	// MinRelHeight is the minimum height relative to the chromatogram maximum
	MinRelHeight float64
	// MinRatio is the minimum ratio of peak top to the highest edge
	MinRatio float64
}

// LocalMinimum splits the chromatogram at local minima. Scans below a
// quantile threshold are zeroed first, every remaining run is cut where
// a scan is the lowest within the search window.
type LocalMinimum struct {
	params LocalMinimumParams
	opts   Options
}

// NewLocalMinimum creates a local minimum search resolver
func NewLocalMinimum(params LocalMinimumParams, opts Options) (*LocalMinimum, error) {
	if !(params.ChromThreshold >= 0 && params.ChromThreshold <= 1) {
		return nil, paramError("chromatographic_threshold", "must be in [0, 1], got %v", params.ChromThreshold)
	}
	if !(params.SearchRT >= 0) {
		return nil, paramError("search_rt", "must be >= 0, got %v", params.SearchRT)
	}
	if !(params.MinRelHeight >= 0 && params.MinRelHeight <= 1) {
		return nil, paramError("min_relative_height", "must be in [0, 1], got %v", params.MinRelHeight)
	}
	if !(params.MinRatio >= 0) {
		return nil, paramError("min_ratio", "must be >= 0, got %v", params.MinRatio)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &LocalMinimum{params: params, opts: opts}, nil
}

// threshold returns the intensity at the threshold quantile
func (r *LocalMinimum) threshold(intens []float64) float64 {
	if r.params.ChromThreshold == 0 || len(intens) == 0 {
		return 0
	}
	s := append([]float64(nil), intens...)
	sort.Float64s(s)
	return stat.Quantile(r.params.ChromThreshold, stat.Empirical, s, nil)
}

// isMinimum reports whether intens[i] is a split point of its run: lower
// than its left neighbour and not higher than any scan of the run within
// half the search window on either side
func (r *LocalMinimum) isMinimum(intens, rts []float64, run region, i int) bool {
	if intens[i-1] <= intens[i] {
		return false
	}
	half := r.params.SearchRT / 2
	for j := i - 1; j >= run.start && rts[i]-rts[j] <= half; j-- {
		if intens[j] < intens[i] {
			return false
		}
	}
	for j := i + 1; j <= run.end && rts[j]-rts[i] <= half; j++ {
		if intens[j] < intens[i] {
			return false
		}
	}
	// a minimum must have something higher to its right within the run
	return floats.Max(intens[i:run.end+1]) > intens[i]
}

// Resolve implements Resolver
func (r *LocalMinimum) Resolve(c *chromatogram.Chromatogram) ([]ResolvedPeak, error) {
	intens := c.Intensities()
	if len(intens) == 0 {
		return nil, nil
	}
	rts := c.RetentionTimes()
	thr := r.threshold(intens)
	for i, v := range intens {
		if v < thr {
			intens[i] = 0
		}
	}
	minHeight := math.Max(r.opts.MinHeight, r.params.MinRelHeight*floats.Max(intens))

	// Candidate segments: each non-zero run cut at its local minima. The
	// minimum starts the next segment.
	var segments []region
	for _, run := range regionsAbove(intens, math.SmallestNonzeroFloat64) {
		start := run.start
		for i := run.start + 1; i < run.end; i++ {
			if r.isMinimum(intens, rts, run, i) {
				segments = append(segments, region{start: start, end: i - 1})
				start = i
			}
		}
		segments = append(segments, region{start: start, end: run.end})
	}

	b := newPeakBuilder(&r.opts, c)
	var peaks []ResolvedPeak
	for k, s := range segments {
		height := floats.Max(intens[s.start : s.end+1])
		if height < minHeight {
			continue
		}
		// The right edge is the minimum that starts the next segment
		rightEdge := intens[s.end]
		if k+1 < len(segments) && segments[k+1].start == s.end+1 {
			rightEdge = intens[s.end+1]
		}
		edge := math.Max(intens[s.start], rightEdge)
		if edge > 0 && height/edge < r.params.MinRatio {
			continue
		}
		p, ok, err := b.accept(s.start, s.end)
		if err != nil {
			return nil, err
		}
		if ok {
			peaks = append(peaks, p)
		}
	}
	return peaks, nil
}
