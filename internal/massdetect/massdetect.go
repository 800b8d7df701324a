// Package massdetect turns the raw data points of a scan into a list of
// peaks, removing noise below a threshold.
package massdetect

import (
	"github.com/524D/mzpeaks/internal/msdata"
)

// Detector converts raw data points into a filtered list of peaks.
// Implementations are stateless after construction and safe for
// concurrent use.
type Detector interface {
	Detect(points []msdata.DataPoint) []msdata.DataPoint
}

// Centroid keeps the points with intensity of at least NoiseLevel.
// It is meant for data that is already centroided.
type Centroid struct {
	NoiseLevel float64
}

// Detect returns the points at or above the noise level, in input order
func (c Centroid) Detect(points []msdata.DataPoint) []msdata.DataPoint {
	peaks := make([]msdata.DataPoint, 0, len(points))
	for _, p := range points {
		if p.Intens >= c.NoiseLevel {
			peaks = append(peaks, p)
		}
	}
	return peaks
}

// LocalMaxima keeps the top of each continuous peak in profile data
type LocalMaxima struct {
	NoiseLevel float64
}

// Detect returns the local maxima at or above the noise level. A plateau
// of equal intensities yields its first point.
func (l LocalMaxima) Detect(points []msdata.DataPoint) []msdata.DataPoint {
	var peaks []msdata.DataPoint
	for i, p := range points {
		if p.Intens < l.NoiseLevel || p.Intens <= 0 {
			continue
		}
		if i > 0 && points[i-1].Intens >= p.Intens {
			continue
		}
		// Skip over a plateau and check that the signal goes down after it
		j := i + 1
		for j < len(points) && points[j].Intens == p.Intens {
			j++
		}
		if j < len(points) && points[j].Intens > p.Intens {
			continue
		}
		peaks = append(peaks, p)
	}
	return peaks
}

// ExactMass finds local maxima in profile data and reports for each the
// intensity weighted mean m/z of the points above half of its height
type ExactMass struct {
	NoiseLevel float64
}

// Detect returns one point per profile peak: m/z at the centre of the
// full width at half maximum, intensity of the top
func (e ExactMass) Detect(points []msdata.DataPoint) []msdata.DataPoint {
	tops := LocalMaxima(e).Detect(points)
	if len(tops) == 0 {
		return tops
	}
	peaks := make([]msdata.DataPoint, 0, len(tops))
	// tops are in m/z order, so the index into points only moves forward
	i := 0
	for _, top := range tops {
		for points[i].Mz != top.Mz {
			i++
		}
		half := top.Intens / 2
		lo := i
		for lo > 0 && points[lo-1].Intens >= half && points[lo-1].Intens <= points[lo].Intens {
			lo--
		}
		hi := i
		for hi < len(points)-1 && points[hi+1].Intens >= half && points[hi+1].Intens <= points[hi].Intens {
			hi++
		}
		var sumI, sumMzI float64
		for k := lo; k <= hi; k++ {
			sumI += points[k].Intens
			sumMzI += points[k].Mz * points[k].Intens
		}
		peaks = append(peaks, msdata.DataPoint{Mz: sumMzI / sumI, Intens: top.Intens})
	}
	return peaks
}

// AddMassLists runs the detector over every scan of the file (restricted to
// msLevel unless it is 0) and appends the result as a mass list called name.
// It returns the total number of detected peaks.
func AddMassLists(file *msdata.DataFile, d Detector, name string, msLevel int) int {
	total := 0
	for _, s := range file.Scans() {
		if msLevel != 0 && s.MSLevel != msLevel {
			continue
		}
		peaks := d.Detect(s.Points)
		s.AddMassList(msdata.MassList{Name: name, Points: peaks})
		total += len(peaks)
	}
	return total
}
