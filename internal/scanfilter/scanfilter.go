// Package scanfilter pre-processes the data points of a scan before mass
// detection. Filters return a new scan with the same metadata.
package scanfilter

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/524D/mzpeaks/internal/msdata"
)

// Filter transforms the data points of a scan
type Filter interface {
	Filter(s *msdata.Scan) *msdata.Scan
}

// ErrInvalidParameter is returned by the filter constructors
var ErrInvalidParameter = errors.New("scanfilter: invalid parameter")

// Mean replaces each intensity by the mean intensity of the points within
// WindowLength m/z on either side.
type Mean struct {
	windowLength     float64
	keepSpectrumType bool
}

// NewMean creates a mean filter with one-sided window length w (m/z).
// Unless keepSpectrumType is set, filtered scans are marked as centroided.
func NewMean(w float64, keepSpectrumType bool) (*Mean, error) {
	if !(w >= 0) {
		return nil, fmt.Errorf("mean filter window %v: %w", w, ErrInvalidParameter)
	}
	return &Mean{windowLength: w, keepSpectrumType: keepSpectrumType}, nil
}

// Filter smooths the scan. Points are sorted by m/z, so both window
// edges only move forward and the total work is linear. The mean is
// clamped to the window's intensity range, which keeps a flat window
// exact and the result non-negative.
func (f *Mean) Filter(s *msdata.Scan) *msdata.Scan {
	points := s.Points
	n := len(points)
	out := make([]msdata.DataPoint, n)

	var sum compensatedSum
	lo := windowExtreme{keep: func(back, v float64) bool { return back < v }}
	hi := windowExtreme{keep: func(back, v float64) bool { return back > v }}
	left, right := 0, 0 // window is points[left:right]
	for i, p := range points {
		for right < n && points[right].Mz <= p.Mz+f.windowLength {
			sum.add(points[right].Intens)
			lo.push(points, right)
			hi.push(points, right)
			right++
		}
		for points[left].Mz < p.Mz-f.windowLength {
			sum.add(-points[left].Intens)
			left++
		}
		lo.drop(left)
		hi.drop(left)

		minI, maxI := lo.value(points), hi.value(points)
		mean := sum.value() / float64(right-left)
		switch {
		case minI == maxI:
			mean = minI
		case mean < minI:
			mean = minI
		case mean > maxI:
			mean = maxI
		}
		out[i] = msdata.DataPoint{Mz: p.Mz, Intens: math.Max(mean, 0)}
	}

	res := s.WithPoints(out)
	if !f.keepSpectrumType {
		res.SpectrumType = msdata.Centroided
	}
	return res
}

// compensatedSum is a Neumaier running sum, so values that leave the
// window don't take the small ones with them
type compensatedSum struct {
	sum, c float64
}

func (s *compensatedSum) add(v float64) {
	t := s.sum + v
	if math.Abs(s.sum) >= math.Abs(v) {
		s.c += (s.sum - t) + v
	} else {
		s.c += (v - t) + s.sum
	}
	s.sum = t
}

func (s *compensatedSum) value() float64 {
	return s.sum + s.c
}

// windowExtreme is a monotonic queue of point indices whose front holds
// the minimum or maximum intensity of the window, depending on keep
type windowExtreme struct {
	idx  []int
	keep func(back, v float64) bool
}

func (q *windowExtreme) push(points []msdata.DataPoint, i int) {
	v := points[i].Intens
	for len(q.idx) > 0 && !q.keep(points[q.idx[len(q.idx)-1]].Intens, v) {
		q.idx = q.idx[:len(q.idx)-1]
	}
	q.idx = append(q.idx, i)
}

// drop removes indices left of the window
func (q *windowExtreme) drop(left int) {
	for len(q.idx) > 0 && q.idx[0] < left {
		q.idx = q.idx[1:]
	}
}

func (q *windowExtreme) value(points []msdata.DataPoint) float64 {
	return points[q.idx[0]].Intens
}

// SavitzkyGolay smooths intensities with a least squares polynomial fit
// over a window of points (not m/z)
type SavitzkyGolay struct {
	halfWidth int
	coef      []float64
}

// NewSavitzkyGolay creates a filter over 2*halfWidth+1 points fitting a
// polynomial of the given order
func NewSavitzkyGolay(halfWidth, order int) (*SavitzkyGolay, error) {
	if halfWidth < 1 {
		return nil, fmt.Errorf("savitzky-golay half width %d: %w", halfWidth, ErrInvalidParameter)
	}
	if order < 0 || order >= 2*halfWidth+1 {
		return nil, fmt.Errorf("savitzky-golay order %d for window %d: %w",
			order, 2*halfWidth+1, ErrInvalidParameter)
	}
	coef, err := savitzkyGolayCoef(halfWidth, order)
	if err != nil {
		return nil, err
	}
	return &SavitzkyGolay{halfWidth: halfWidth, coef: coef}, nil
}

// savitzkyGolayCoef returns the convolution weights for the smoothed value
// at the window centre: the first row of the least squares solution of the
// Vandermonde system
func savitzkyGolayCoef(halfWidth, order int) ([]float64, error) {
	size := 2*halfWidth + 1
	a := mat.NewDense(size, order+1, nil)
	for i := 0; i < size; i++ {
		x := float64(i - halfWidth)
		v := 1.0
		for k := 0; k <= order; k++ {
			a.Set(i, k, v)
			v *= x
		}
	}
	id := mat.NewDense(size, size, nil)
	for i := 0; i < size; i++ {
		id.Set(i, i, 1)
	}
	var x mat.Dense
	if err := x.Solve(a, id); err != nil {
		return nil, fmt.Errorf("savitzky-golay coefficients: %w", err)
	}
	return mat.Row(nil, 0, &x), nil
}

// Coefficients returns a copy of the convolution weights
func (f *SavitzkyGolay) Coefficients() []float64 {
	return append([]float64(nil), f.coef...)
}

// Filter smooths the scan. The first and last halfWidth points keep their
// intensity, negative results are set to zero.
func (f *SavitzkyGolay) Filter(s *msdata.Scan) *msdata.Scan {
	points := s.Points
	out := make([]msdata.DataPoint, len(points))
	copy(out, points)
	for i := f.halfWidth; i < len(points)-f.halfWidth; i++ {
		var v float64
		for j, c := range f.coef {
			v += c * points[i-f.halfWidth+j].Intens
		}
		if v < 0 {
			v = 0
		}
		out[i].Intens = v
	}
	return s.WithPoints(out)
}

// Crop keeps only the points inside an m/z range
type Crop struct {
	mzRange msdata.Range
}

// NewCrop creates a crop filter
func NewCrop(mzRange msdata.Range) (*Crop, error) {
	if !mzRange.Valid() {
		return nil, fmt.Errorf("crop range %v: %w", mzRange, ErrInvalidParameter)
	}
	return &Crop{mzRange: mzRange}, nil
}

// Filter removes the points outside the range
func (f *Crop) Filter(s *msdata.Scan) *msdata.Scan {
	var out []msdata.DataPoint
	for _, p := range s.Points {
		if f.mzRange.Contains(p.Mz) {
			out = append(out, p)
		}
	}
	return s.WithPoints(out)
}

// FilterFile applies the filter to all scans of the given MS level
// (0 is all levels) and returns a new data file. Scans of other levels
// are shared with the input.
func FilterFile(file *msdata.DataFile, f Filter, msLevel int) (*msdata.DataFile, error) {
	out := msdata.NewDataFile(file.Name())
	for _, s := range file.Scans() {
		if msLevel == 0 || s.MSLevel == msLevel {
			s = f.Filter(s)
		}
		if err := out.AddScan(s); err != nil {
			return nil, err
		}
	}
	return out, nil
}
