// Package snest estimates the signal to noise ratio of a chromatographic
// peak candidate.
package snest

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/524D/mzpeaks/internal/chromatogram"
	"github.com/524D/mzpeaks/internal/wavelet"
)

// Estimator computes the signal to noise ratio of the peak spanning the
// inclusive index range [left, right] of a chromatogram. The ratio is
// never negative. Estimators are immutable and safe for concurrent use.
type Estimator interface {
	Estimate(c *chromatogram.Chromatogram, left, right int) (float64, error)
}

var (
	// ErrNaN means a statistic could not be computed
	ErrNaN = errors.New("snest: signal to noise ratio is NaN")
	// ErrInvalidRange means the peak range is outside the chromatogram
	ErrInvalidRange = errors.New("snest: invalid peak range")
)

func checkRange(c *chromatogram.Chromatogram, left, right int) error {
	if left < 0 || right < left || right >= c.Len() {
		return fmt.Errorf("[%d, %d] in chromatogram of %d scans: %w", left, right, c.Len(), ErrInvalidRange)
	}
	return nil
}

// flanks returns the values of x in the windows of n points left and right
// of [left, right], clipped to x
func flanks(x []float64, left, right, n int) []float64 {
	lo := left - n
	if lo < 0 {
		lo = 0
	}
	hi := right + n
	if hi > len(x)-1 {
		hi = len(x) - 1
	}
	out := make([]float64, 0, (left-lo)+(hi-right))
	out = append(out, x[lo:left]...)
	return append(out, x[right+1:hi+1]...)
}

// ratio divides signal by noise, mapping x/0 to +Inf and 0/x to 0
func ratio(signal, noise float64) (float64, error) {
	if math.IsNaN(signal) || math.IsNaN(noise) {
		return 0, ErrNaN
	}
	if signal <= 0 {
		return 0, nil
	}
	if noise <= 0 {
		return math.Inf(1), nil
	}
	return signal / noise, nil
}

// popStdDev is the population standard deviation, 0 for no values
func popStdDev(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	_, std := stat.PopMeanStdDev(x, nil)
	return std
}

func median(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	if floats.HasNaN(x) {
		return math.NaN()
	}
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	return stat.Quantile(0.5, stat.Empirical, s, nil)
}

// IntensityWindow compares the peak height above the median of the
// surrounding intensities with their standard deviation. The surroundings
// are one peak width on each side.
type IntensityWindow struct{}

// Estimate implements Estimator
func (IntensityWindow) Estimate(c *chromatogram.Chromatogram, left, right int) (float64, error) {
	if err := checkRange(c, left, right); err != nil {
		return 0, err
	}
	intens := c.Intensities()
	width := right - left + 1
	fl := flanks(intens, left, right, width)

	signal := floats.Max(intens[left:right+1]) - median(fl)
	return ratio(signal, popStdDev(fl))
}

// WaveletCoefficients compares the largest wavelet coefficient inside the
// peak with the standard deviation of the coefficients around it. The
// scale matches a Gaussian whose zero crossings span the peak.
type WaveletCoefficients struct {
	// PeakWidthMult is the size of each flank window in peak widths
	PeakWidthMult float64
	// AbsWaveCoeffs uses the absolute coefficients for the noise
	AbsWaveCoeffs bool
}

// ErrInvalidParameter is returned by Validate
var ErrInvalidParameter = errors.New("snest: invalid parameter")

// Validate checks the estimator parameters
func (w WaveletCoefficients) Validate() error {
	if !(w.PeakWidthMult > 0) {
		return fmt.Errorf("peak width multiplier %v: %w", w.PeakWidthMult, ErrInvalidParameter)
	}
	return nil
}

// peakScale is the wavelet scale of a Gaussian peak that is width points
// wide between the zero crossings of its transform
func peakScale(width int) float64 {
	s := float64(width) * math.Sqrt(5) / (2 * math.Sqrt(6))
	return math.Max(1, s)
}

// Estimate implements Estimator
func (w WaveletCoefficients) Estimate(c *chromatogram.Chromatogram, left, right int) (float64, error) {
	if err := checkRange(c, left, right); err != nil {
		return 0, err
	}
	width := right - left + 1
	coef := wavelet.Transform(c.Intensities(), peakScale(width))

	signal := floats.Max(coef[left : right+1])
	fl := flanks(coef, left, right, int(math.Ceil(w.PeakWidthMult*float64(width))))
	if w.AbsWaveCoeffs {
		for i, v := range fl {
			fl[i] = math.Abs(v)
		}
	}
	return ratio(signal, popStdDev(fl))
}
