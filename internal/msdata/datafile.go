package msdata

import (
	"fmt"
	"sort"
)

// DataFile is an in-memory RawDataSource. Scans must be added in
// acquisition order (non-decreasing retention time).
type DataFile struct {
	name     string
	scans    []*Scan
	num2Scan map[int]*Scan
}

// NewDataFile creates an empty data file
func NewDataFile(name string) *DataFile {
	return &DataFile{
		name:     name,
		num2Scan: make(map[int]*Scan),
	}
}

// Name returns the name of the data file
func (f *DataFile) Name() string {
	return f.name
}

// AddScan appends a scan. Scan numbers must be unique, data points must be
// sorted by m/z and retention time must not decrease.
func (f *DataFile) AddScan(s *Scan) error {
	if _, ok := f.num2Scan[s.Number]; ok {
		return fmt.Errorf("scan %d: %w", s.Number, ErrDuplicateScan)
	}
	if !PointsSorted(s.Points) {
		return fmt.Errorf("scan %d: %w", s.Number, ErrUnsortedPoints)
	}
	if n := len(f.scans); n > 0 && s.RetentionTime < f.scans[n-1].RetentionTime {
		return fmt.Errorf("scan %d: %w", s.Number, ErrRetentionTimeOrder)
	}
	f.scans = append(f.scans, s)
	f.num2Scan[s.Number] = s
	return nil
}

// NumScans returns the number of scans in the file
func (f *DataFile) NumScans() int {
	return len(f.scans)
}

// Scans returns all scans in acquisition order
func (f *DataFile) Scans() []*Scan {
	return f.scans
}

// Scan returns the scan with the given scan number
func (f *DataFile) Scan(scanNumber int) (*Scan, error) {
	s, ok := f.num2Scan[scanNumber]
	if !ok {
		return nil, fmt.Errorf("scan %d: %w", scanNumber, ErrScanNotFound)
	}
	return s, nil
}

// ScanNumbers returns the ascending scan numbers of the scans with the
// given MS level inside the retention time window. msLevel 0 matches
// all levels.
func (f *DataFile) ScanNumbers(msLevel int, rtRange Range) []int {
	// Scans are ordered by retention time, so the window can be found
	// by binary search
	i1 := sort.Search(len(f.scans), func(i int) bool { return f.scans[i].RetentionTime >= rtRange.Min })
	i2 := sort.Search(len(f.scans), func(i int) bool { return f.scans[i].RetentionTime > rtRange.Max })

	var nums []int
	for i := i1; i < i2; i++ {
		if msLevel == 0 || f.scans[i].MSLevel == msLevel {
			nums = append(nums, f.scans[i].Number)
		}
	}
	sort.Ints(nums)
	return nums
}

// RetentionTimes returns the retention times of the given scans
func RetentionTimes(src RawDataSource, scanNumbers []int) ([]float64, error) {
	rts := make([]float64, len(scanNumbers))
	for i, n := range scanNumbers {
		s, err := src.Scan(n)
		if err != nil {
			return nil, err
		}
		rts[i] = s.RetentionTime
	}
	return rts, nil
}
