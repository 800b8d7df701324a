// Package center computes the representative m/z of a set of data points
package center

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/524D/mzpeaks/internal/msdata"
)

// Measure selects the statistic used to compute the centre
type Measure int

const (
	Mean Measure = iota
	Median
	HighestPoint
)

var measureNames = map[string]Measure{
	"mean":    Mean,
	"median":  Median,
	"highest": HighestPoint,
}

// Weighting selects how intensities weigh in mean and median
type Weighting int

const (
	NoWeight Weighting = iota
	Linear
	Log10
)

var weightingNames = map[string]Weighting{
	"none":   NoWeight,
	"linear": Linear,
	"log10":  Log10,
}

// ParseMeasure converts a measure name ("mean", "median", "highest")
func ParseMeasure(s string) (Measure, error) {
	m, ok := measureNames[s]
	if !ok {
		return 0, fmt.Errorf("unknown center measure %q", s)
	}
	return m, nil
}

// ParseWeighting converts a weighting name ("none", "linear", "log10")
func ParseWeighting(s string) (Weighting, error) {
	w, ok := weightingNames[s]
	if !ok {
		return 0, fmt.Errorf("unknown center weighting %q", s)
	}
	return w, nil
}

// Func computes the centre m/z of a set of points
type Func interface {
	Center(points []msdata.DataPoint) float64
}

// Function is a Func built from a measure and a weighting
type Function struct {
	Measure   Measure
	Weighting Weighting
}

// Default is the intensity weighted mean
var Default = Function{Measure: Mean, Weighting: Linear}

// Center returns the centre m/z. It is 0 for no points. When all weights
// are zero the points are weighted equally.
func (f Function) Center(points []msdata.DataPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	if f.Measure == HighestPoint {
		best := points[0]
		for _, p := range points[1:] {
			if p.Intens > best.Intens {
				best = p
			}
		}
		return best.Mz
	}

	mz := make([]float64, len(points))
	w := make([]float64, len(points))
	var sumW float64
	for i, p := range points {
		mz[i] = p.Mz
		w[i] = f.weight(p.Intens)
		sumW += w[i]
	}
	if sumW == 0 {
		w = nil
	}

	if f.Measure == Median {
		// stat.Quantile needs sorted values
		sort.Sort(byValue{mz, w})
		return stat.Quantile(0.5, stat.Empirical, mz, w)
	}
	return stat.Mean(mz, w)
}

func (f Function) weight(intens float64) float64 {
	switch f.Weighting {
	case Linear:
		return intens
	case Log10:
		if intens <= 1 {
			return 0
		}
		return math.Log10(intens)
	}
	return 1
}

// byValue sorts values together with their (optional) weights
type byValue struct {
	x []float64
	w []float64
}

func (b byValue) Len() int           { return len(b.x) }
func (b byValue) Less(i, j int) bool { return b.x[i] < b.x[j] }
func (b byValue) Swap(i, j int) {
	b.x[i], b.x[j] = b.x[j], b.x[i]
	if b.w != nil {
		b.w[i], b.w[j] = b.w[j], b.w[i]
	}
}
