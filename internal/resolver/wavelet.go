package resolver

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/524D/mzpeaks/internal/chromatogram"
	"github.com/524D/mzpeaks/internal/msdata"
	"github.com/524D/mzpeaks/internal/wavelet"
)

// maxRidgeGap is the number of consecutive scales a ridge may miss
// before it ends
const maxRidgeGap = 1

// WaveletParams configures the wavelet resolver. Scales are in scans.
type WaveletParams struct {
	Scales         msdata.Range
	ScaleStep      float64
	MinRidgeLength int // Number of scales with a maximum, clipped to the number of scales
	// MinCoefAreaRatio is the minimum ratio of the best wavelet coefficient
	// to the peak area (in intensity times scans)
	MinCoefAreaRatio float64
	// MinShapeSimilarity is the minimum R^2 of a Gaussian fitted to the
	// peak, 0 disables the fit
	MinShapeSimilarity float64
}

// Wavelet finds peaks as ridges of maxima in the continuous wavelet
// transform of the chromatogram
type Wavelet struct {
	params WaveletParams
	scales []float64
	opts   Options
}

// NewWavelet creates a wavelet resolver
func NewWavelet(params WaveletParams, opts Options) (*Wavelet, error) {
	if !params.Scales.Valid() || params.Scales.Min < 1 {
		return nil, paramError("scales", "invalid range %v, minimum scale is 1", params.Scales)
	}
	if !(params.ScaleStep > 0) {
		return nil, paramError("scale_step", "must be > 0, got %v", params.ScaleStep)
	}
	if params.MinRidgeLength < 1 {
		return nil, paramError("min_ridge_length", "must be >= 1, got %d", params.MinRidgeLength)
	}
	if !(params.MinCoefAreaRatio >= 0) {
		return nil, paramError("min_coef_area_ratio", "must be >= 0, got %v", params.MinCoefAreaRatio)
	}
	if !(params.MinShapeSimilarity >= 0 && params.MinShapeSimilarity <= 1) {
		return nil, paramError("min_shape_similarity", "must be in [0, 1], got %v", params.MinShapeSimilarity)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	scales := wavelet.Scales(params.Scales.Min, params.Scales.Max, params.ScaleStep)
	if params.MinRidgeLength > len(scales) {
		params.MinRidgeLength = len(scales)
	}
	return &Wavelet{params: params, scales: scales, opts: opts}, nil
}

// ridge is a line of coefficient maxima through the scales
type ridge struct {
	pos       int // position at the last scale it was extended
	length    int
	gap       int
	bestScale int
	bestPos   int
	bestCoef  float64
}

func (rd *ridge) extend(scale, pos int, coef float64) {
	rd.pos = pos
	rd.length++
	rd.gap = 0
	if coef > rd.bestCoef {
		rd.bestScale, rd.bestPos, rd.bestCoef = scale, pos, coef
	}
}

// ridges tracks maxima from the largest scale down. A maximum continues
// the nearest active ridge within half the scale (at least one scan).
func (r *Wavelet) ridges(coef [][]float64) []*ridge {
	var active, done []*ridge
	for k := len(r.scales) - 1; k >= 0; k-- {
		maxima := wavelet.LocalMaxima(coef[k])
		used := make([]bool, len(maxima))
		tol := math.Max(1, r.scales[k]/2)

		next := active[:0]
		for _, rd := range active {
			best := -1
			bestDist := math.Inf(1)
			// maxima are sorted, search around the ridge position
			i := sort.SearchInts(maxima, rd.pos-int(tol))
			for ; i < len(maxima) && float64(maxima[i]-rd.pos) <= tol; i++ {
				d := math.Abs(float64(maxima[i] - rd.pos))
				if !used[i] && d <= tol && d < bestDist {
					best, bestDist = i, d
				}
			}
			if best >= 0 {
				used[best] = true
				rd.extend(k, maxima[best], coef[k][maxima[best]])
				next = append(next, rd)
				continue
			}
			rd.gap++
			if rd.gap > maxRidgeGap {
				done = append(done, rd)
			} else {
				next = append(next, rd)
			}
		}
		active = next
		for i, m := range maxima {
			if !used[i] {
				rd := &ridge{bestCoef: math.Inf(-1)}
				rd.extend(k, m, coef[k][m])
				active = append(active, rd)
			}
		}
	}
	return append(done, active...)
}

type waveletCandidate struct {
	start, end int
	coef       float64
}

// bounds returns the peak range of a ridge: the zero crossings of the
// transform at the best scale, extended while the intensity keeps
// falling, at most three scales from the centre
func (r *Wavelet) bounds(intens, coef []float64, pos int, scale float64) (int, int) {
	left, right := wavelet.ZeroCrossings(coef, pos)
	maxDist := int(math.Ceil(3 * scale))
	minLeft := pos - maxDist
	if minLeft < 0 {
		minLeft = 0
	}
	maxRight := pos + maxDist
	if maxRight > len(intens)-1 {
		maxRight = len(intens) - 1
	}
	if left < minLeft {
		left = minLeft
	}
	if right > maxRight {
		right = maxRight
	}
	for left > minLeft && intens[left-1] < intens[left] {
		left--
	}
	for right < maxRight && intens[right+1] < intens[right] {
		right++
	}
	return left, right
}

// Resolve implements Resolver
func (r *Wavelet) Resolve(c *chromatogram.Chromatogram) ([]ResolvedPeak, error) {
	intens := c.Intensities()
	if len(intens) == 0 {
		return nil, nil
	}
	coef := wavelet.TransformScales(intens, r.scales)

	var cands []waveletCandidate
	for _, rd := range r.ridges(coef) {
		if rd.length < r.params.MinRidgeLength {
			continue
		}
		start, end := r.bounds(intens, coef[rd.bestScale], rd.bestPos, r.scales[rd.bestScale])
		area := floats.Sum(intens[start : end+1])
		if area <= 0 || rd.bestCoef/area < r.params.MinCoefAreaRatio {
			continue
		}
		cands = append(cands, waveletCandidate{start: start, end: end, coef: rd.bestCoef})
	}

	// Strongest first; a candidate overlapping an accepted peak is dropped
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].coef > cands[j].coef })
	b := newPeakBuilder(&r.opts, c)
	var peaks []ResolvedPeak
	for _, cand := range cands {
		if overlaps(peaks, cand.start, cand.end) {
			continue
		}
		if r.params.MinShapeSimilarity > 0 &&
			gaussianSimilarity(b.rts[cand.start:cand.end+1], intens[cand.start:cand.end+1]) < r.params.MinShapeSimilarity {
			continue
		}
		p, ok, err := b.accept(cand.start, cand.end)
		if err != nil {
			return nil, err
		}
		if ok {
			peaks = append(peaks, p)
		}
	}
	sort.Slice(peaks, func(i, j int) bool { return peaks[i].Start < peaks[j].Start })
	return peaks, nil
}

func overlaps(peaks []ResolvedPeak, start, end int) bool {
	for _, p := range peaks {
		if start <= p.End && end >= p.Start {
			return true
		}
	}
	return false
}
