package chromatogram

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/524D/mzpeaks/internal/msdata"
)

// ErrInvalidBuilder is returned for an unusable builder configuration
var ErrInvalidBuilder = errors.New("chromatogram: invalid builder parameters")

// Tolerance is an m/z tolerance. The effective window is the larger of the
// absolute value and the ppm value at the given m/z.
type Tolerance struct {
	Abs float64
	PPM float64
}

// Window returns the allowed m/z deviation at mz
func (t Tolerance) Window(mz float64) float64 {
	return math.Max(t.Abs, mz*t.PPM*1e-6)
}

// Builder connects the mass list points of successive MS1 scans into ion
// traces.
type Builder struct {
	MassList    string       // Mass list to use, empty for the raw points
	Tolerance   Tolerance    // Allowed m/z step between scans
	MinScanSpan int          // Minimum number of scans with a point
	MinHeight   float64      // Minimum maximum intensity
	RTRange     msdata.Range // Scans to use
}

// Validate checks the builder parameters
func (b Builder) Validate() error {
	if b.Tolerance.Abs < 0 || b.Tolerance.PPM < 0 || (b.Tolerance.Abs == 0 && b.Tolerance.PPM == 0) {
		return fmt.Errorf("tolerance %+v: %w", b.Tolerance, ErrInvalidBuilder)
	}
	if b.MinScanSpan < 1 {
		return fmt.Errorf("min scan span %d: %w", b.MinScanSpan, ErrInvalidBuilder)
	}
	if !b.RTRange.Valid() {
		return fmt.Errorf("retention time range %v: %w", b.RTRange, ErrInvalidBuilder)
	}
	return nil
}

type trace struct {
	lastMz  float64
	lastIdx int // index into the scan number array of the last point
	points  map[int]msdata.DataPoint
	intens  []float64
}

// Build extracts the chromatograms of file, sorted by m/z. A trace ends at
// the first scan that has no point within tolerance.
func (b Builder) Build(file msdata.RawDataSource) ([]*Chromatogram, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	scanNumbers := file.ScanNumbers(1, b.RTRange)

	var active, done []*trace
	for idx, num := range scanNumbers {
		scan, err := file.Scan(num)
		if err != nil {
			return nil, err
		}
		points := scan.Points
		if b.MassList != "" {
			ml, ok := scan.MassList(b.MassList)
			if !ok {
				return nil, fmt.Errorf("scan %d has no mass list %q", num, b.MassList)
			}
			points = ml.Points
		}

		// Most intense points claim traces first
		order := make([]int, len(points))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(i, j int) bool {
			return points[order[i]].Intens > points[order[j]].Intens
		})

		// Traces move as they are extended, lookups use their m/z from
		// before this scan
		prevMz := make([]float64, len(active))
		for i, t := range active {
			prevMz[i] = t.lastMz
		}
		var started []*trace
		for _, pi := range order {
			p := points[pi]
			t := b.closestTrace(active, prevMz, p.Mz, idx)
			if t == nil {
				t = &trace{points: make(map[int]msdata.DataPoint)}
				started = append(started, t)
			}
			t.lastMz = p.Mz
			t.lastIdx = idx
			t.points[num] = p
			t.intens = append(t.intens, p.Intens)
		}

		next := active[:0]
		for _, t := range active {
			if t.lastIdx == idx {
				next = append(next, t)
			} else {
				done = append(done, t)
			}
		}
		active = append(next, started...)
		sort.Slice(active, func(i, j int) bool { return active[i].lastMz < active[j].lastMz })
	}
	done = append(done, active...)

	var chroms []*Chromatogram
	for _, t := range done {
		if len(t.intens) < b.MinScanSpan || floats.Max(t.intens) < b.MinHeight {
			continue
		}
		c, err := New(file, scanNumbers, t.points)
		if err != nil {
			return nil, err
		}
		chroms = append(chroms, c)
	}
	sort.SliceStable(chroms, func(i, j int) bool { return chroms[i].Mz() < chroms[j].Mz() })
	return chroms, nil
}

// closestTrace returns the trace in active closest to mz that is within
// tolerance and not yet extended in scan idx. prevMz holds the ascending
// m/z of the traces at the start of the scan.
func (b Builder) closestTrace(active []*trace, prevMz []float64, mz float64, idx int) *trace {
	tol := b.Tolerance.Window(mz)
	i := sort.SearchFloat64s(prevMz, mz-tol)
	var best *trace
	bestDiff := math.Inf(1)
	for ; i < len(active) && prevMz[i] <= mz+tol; i++ {
		t := active[i]
		if t.lastIdx == idx {
			continue
		}
		if d := math.Abs(prevMz[i] - mz); d < bestDiff {
			best, bestDiff = t, d
		}
	}
	return best
}
