// Package msdata contains the in-memory model of raw mass spectrometry data:
// data points, scans, mass lists and the raw data source that owns them.
package msdata

import (
	"errors"
	"fmt"
	"math"
)

// DataPoint is a single mass/intensity pair
type DataPoint struct {
	Mz     float64
	Intens float64
}

// SpectrumType tells if adjacent points of a scan belong to one continuous
// peak (profile) or are discrete ions (centroided)
type SpectrumType int

const (
	Centroided SpectrumType = iota
	Profile
	Thresholded
)

func (t SpectrumType) String() string {
	switch t {
	case Centroided:
		return `CENTROIDED`
	case Profile:
		return `PROFILE`
	case Thresholded:
		return `THRESHOLDED`
	}
	return fmt.Sprintf("SpectrumType(%d)", int(t))
}

// Polarity of the ions in a scan
type Polarity int

const (
	PolarityUnknown Polarity = iota
	PolarityPositive
	PolarityNegative
)

func (p Polarity) String() string {
	switch p {
	case PolarityPositive:
		return `+`
	case PolarityNegative:
		return `-`
	}
	return `?`
}

// MassList is a named set of data points derived from the raw data
// of a scan by a mass detector
type MassList struct {
	Name   string
	Points []DataPoint
}

// Scan is one acquired mass spectrum
type Scan struct {
	Number          int     // Unique within a data source, not necessarily contiguous
	MSLevel         int     // 1 = primary, >= 2 = fragmentation
	RetentionTime   float64 // Minutes
	PrecursorMz     float64 // Only meaningful for MSLevel >= 2
	PrecursorCharge int
	Polarity        Polarity
	SpectrumType    SpectrumType
	Points          []DataPoint // Ascending, unique m/z
	massLists       []MassList
}

// Range is a closed interval [Min, Max]
type Range struct {
	Min float64
	Max float64
}

// AllRange contains every value
var AllRange = Range{Min: -math.MaxFloat64, Max: math.MaxFloat64}

// Contains reports whether v lies in the closed interval
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Length returns Max-Min
func (r Range) Length() float64 {
	return r.Max - r.Min
}

// Valid reports whether the range is non-empty and not NaN
func (r Range) Valid() bool {
	return !math.IsNaN(r.Min) && !math.IsNaN(r.Max) && r.Min <= r.Max
}

var (
	// ErrScanNotFound means no scan with the requested number exists
	ErrScanNotFound = errors.New("msdata: scan not found")
	// ErrDuplicateScan means a scan number was added twice
	ErrDuplicateScan = errors.New("msdata: duplicate scan number")
	// ErrUnsortedPoints means data points are not in ascending, unique m/z order
	ErrUnsortedPoints = errors.New("msdata: data points not sorted by m/z")
	// ErrRetentionTimeOrder means retention time decreased
	ErrRetentionTimeOrder = errors.New("msdata: retention time decreases")
)

// RawDataSource gives read access to the scans of one raw data file
type RawDataSource interface {
	Name() string
	// Scan returns the scan with the given scan number
	Scan(scanNumber int) (*Scan, error)
	// ScanNumbers returns, in ascending order, the numbers of the scans with
	// the given MS level and a retention time within rtRange
	ScanNumbers(msLevel int, rtRange Range) []int
}

// WithPoints returns a copy of the scan with the data points replaced.
// Mass lists are not copied, they belong to the original data.
func (s *Scan) WithPoints(points []DataPoint) *Scan {
	c := *s
	c.Points = points
	c.massLists = nil
	return &c
}

// AddMassList attaches a mass list. An existing list with the same
// name is kept; mass lists are never removed.
func (s *Scan) AddMassList(ml MassList) {
	s.massLists = append(s.massLists, ml)
}

// MassList returns the most recently added mass list with the given name
func (s *Scan) MassList(name string) (MassList, bool) {
	for i := len(s.massLists) - 1; i >= 0; i-- {
		if s.massLists[i].Name == name {
			return s.massLists[i], true
		}
	}
	return MassList{}, false
}

// MassLists returns all mass lists in the order they were added
func (s *Scan) MassLists() []MassList {
	return s.massLists
}

// MzRange returns the lowest and highest m/z in the scan
func (s *Scan) MzRange() Range {
	if len(s.Points) == 0 {
		return Range{}
	}
	return Range{Min: s.Points[0].Mz, Max: s.Points[len(s.Points)-1].Mz}
}

// BasePeak returns the most intense data point. ok is false for an empty scan
func (s *Scan) BasePeak() (DataPoint, bool) {
	var best DataPoint
	if len(s.Points) == 0 {
		return best, false
	}
	for _, p := range s.Points {
		if p.Intens > best.Intens {
			best = p
		}
	}
	return best, true
}

// PointsSorted reports whether points have strictly ascending m/z
func PointsSorted(points []DataPoint) bool {
	for i := 1; i < len(points); i++ {
		if points[i].Mz <= points[i-1].Mz {
			return false
		}
	}
	return true
}
