// Package chromatogram holds extracted ion chromatograms: the intensity of
// one ion trace over the scans of a raw data file.
package chromatogram

import (
	"fmt"

	"github.com/524D/mzpeaks/internal/msdata"
)

// Chromatogram maps scan numbers to the data point of one ion trace. Scans
// without a recorded point have zero intensity. A Chromatogram is not
// modified after construction.
type Chromatogram struct {
	file        msdata.RawDataSource
	scanNumbers []int
	rts         []float64
	points      map[int]msdata.DataPoint
}

// New creates a chromatogram over the ascending scanNumbers of file.
// points may contain scans that are not in scanNumbers, those are ignored.
func New(file msdata.RawDataSource, scanNumbers []int, points map[int]msdata.DataPoint) (*Chromatogram, error) {
	for i := 1; i < len(scanNumbers); i++ {
		if scanNumbers[i] <= scanNumbers[i-1] {
			return nil, fmt.Errorf("chromatogram scan numbers %d, %d: not ascending",
				scanNumbers[i-1], scanNumbers[i])
		}
	}
	rts, err := msdata.RetentionTimes(file, scanNumbers)
	if err != nil {
		return nil, fmt.Errorf("chromatogram: %w", err)
	}
	if points == nil {
		points = make(map[int]msdata.DataPoint)
	}
	return &Chromatogram{
		file:        file,
		scanNumbers: scanNumbers,
		rts:         rts,
		points:      points,
	}, nil
}

// File returns the raw data source the chromatogram was extracted from
func (c *Chromatogram) File() msdata.RawDataSource {
	return c.file
}

// ScanNumbers returns the ascending scan numbers the chromatogram spans
func (c *Chromatogram) ScanNumbers() []int {
	return c.scanNumbers
}

// Len returns the number of scans
func (c *Chromatogram) Len() int {
	return len(c.scanNumbers)
}

// DataPoint returns the recorded point for a scan number
func (c *Chromatogram) DataPoint(scanNumber int) (msdata.DataPoint, bool) {
	p, ok := c.points[scanNumber]
	return p, ok
}

// Intensity returns the intensity at index i of the scan number array
func (c *Chromatogram) Intensity(i int) float64 {
	return c.points[c.scanNumbers[i]].Intens
}

// Intensities returns the intensity per scan, zero where nothing was recorded
func (c *Chromatogram) Intensities() []float64 {
	in := make([]float64, len(c.scanNumbers))
	for i, n := range c.scanNumbers {
		in[i] = c.points[n].Intens
	}
	return in
}

// RetentionTime returns the retention time at index i
func (c *Chromatogram) RetentionTime(i int) float64 {
	return c.rts[i]
}

// RetentionTimes returns the retention time per scan. The slice must not
// be modified.
func (c *Chromatogram) RetentionTimes() []float64 {
	return c.rts
}

// DataPoints returns the recorded points at indices start..end inclusive
func (c *Chromatogram) DataPoints(start, end int) []msdata.DataPoint {
	var out []msdata.DataPoint
	for i := start; i <= end; i++ {
		if p, ok := c.points[c.scanNumbers[i]]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Mz returns the intensity weighted mean m/z of all recorded points
func (c *Chromatogram) Mz() float64 {
	var sumI, sumMzI float64
	for _, n := range c.scanNumbers {
		p, ok := c.points[n]
		if !ok {
			continue
		}
		sumI += p.Intens
		sumMzI += p.Mz * p.Intens
	}
	if sumI == 0 {
		return 0
	}
	return sumMzI / sumI
}
