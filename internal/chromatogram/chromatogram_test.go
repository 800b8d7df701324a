package chromatogram

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzpeaks/internal/msdata"
)

// twoTraceFile has an ion at ~300 in scans 1-4 and an ion at ~500 in
// scans 2-3, MS2 scans in between
func twoTraceFile(t *testing.T) *msdata.DataFile {
	t.Helper()
	f := msdata.NewDataFile("two")
	add := func(s *msdata.Scan) {
		require.NoError(t, f.AddScan(s))
	}
	add(&msdata.Scan{Number: 1, MSLevel: 1, RetentionTime: 1.0,
		Points: []msdata.DataPoint{{Mz: 300.000, Intens: 100}}})
	add(&msdata.Scan{Number: 2, MSLevel: 1, RetentionTime: 1.1,
		Points: []msdata.DataPoint{{Mz: 300.001, Intens: 400}, {Mz: 500.0, Intens: 50}}})
	add(&msdata.Scan{Number: 3, MSLevel: 2, RetentionTime: 1.15, PrecursorMz: 300.0,
		Points: []msdata.DataPoint{{Mz: 120, Intens: 10}}})
	add(&msdata.Scan{Number: 4, MSLevel: 1, RetentionTime: 1.2,
		Points: []msdata.DataPoint{{Mz: 299.999, Intens: 300}, {Mz: 500.002, Intens: 60}}})
	add(&msdata.Scan{Number: 5, MSLevel: 1, RetentionTime: 1.3,
		Points: []msdata.DataPoint{{Mz: 300.000, Intens: 80}}})
	return f
}

func TestChromatogramAccessors(t *testing.T) {
	f := twoTraceFile(t)
	c, err := New(f, []int{1, 2, 4, 5}, map[int]msdata.DataPoint{
		2: {Mz: 300, Intens: 10},
		4: {Mz: 302, Intens: 30},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, c.Len())
	assert.Equal(t, []float64{0, 10, 30, 0}, c.Intensities())
	assert.Equal(t, []float64{1.0, 1.1, 1.2, 1.3}, c.RetentionTimes())
	assert.Equal(t, 30.0, c.Intensity(2))
	assert.InDelta(t, 301.5, c.Mz(), 1e-9)
	assert.Len(t, c.DataPoints(0, 1), 1)

	_, ok := c.DataPoint(1)
	assert.False(t, ok)
	p, ok := c.DataPoint(4)
	require.True(t, ok)
	assert.Equal(t, 302.0, p.Mz)
}

func TestNewErrors(t *testing.T) {
	f := twoTraceFile(t)
	_, err := New(f, []int{2, 1}, nil)
	assert.Error(t, err)

	_, err = New(f, []int{1, 99}, nil)
	assert.True(t, errors.Is(err, msdata.ErrScanNotFound))
}

func TestBuild(t *testing.T) {
	f := twoTraceFile(t)
	b := Builder{
		Tolerance:   Tolerance{PPM: 10},
		MinScanSpan: 2,
		RTRange:     msdata.AllRange,
	}
	chroms, err := b.Build(f)
	require.NoError(t, err)
	require.Len(t, chroms, 2)

	assert.Equal(t, []int{1, 2, 4, 5}, chroms[0].ScanNumbers())
	assert.Equal(t, []float64{100, 400, 300, 80}, chroms[0].Intensities())
	assert.Equal(t, []float64{0, 50, 60, 0}, chroms[1].Intensities())
}

func TestBuildFilters(t *testing.T) {
	f := twoTraceFile(t)
	tests := []struct {
		name string
		b    Builder
		want int
	}{
		{"min height drops small trace", Builder{Tolerance: Tolerance{PPM: 10}, MinScanSpan: 1, MinHeight: 100, RTRange: msdata.AllRange}, 1},
		{"min span drops short trace", Builder{Tolerance: Tolerance{PPM: 10}, MinScanSpan: 3, RTRange: msdata.AllRange}, 1},
		{"tight tolerance splits trace", Builder{Tolerance: Tolerance{Abs: 0.0001}, MinScanSpan: 1, RTRange: msdata.AllRange}, 6},
		{"rt range", Builder{Tolerance: Tolerance{Abs: 0.01}, MinScanSpan: 1, RTRange: msdata.Range{Min: 1.25, Max: 2}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chroms, err := tt.b.Build(f)
			require.NoError(t, err)
			assert.Len(t, chroms, tt.want)
		})
	}
}

func TestBuildMassList(t *testing.T) {
	f := twoTraceFile(t)
	b := Builder{MassList: "centroid", Tolerance: Tolerance{Abs: 0.01}, MinScanSpan: 1, RTRange: msdata.AllRange}
	_, err := b.Build(f)
	assert.Error(t, err)

	for _, s := range f.Scans() {
		s.AddMassList(msdata.MassList{Name: "centroid", Points: s.Points[:1]})
	}
	chroms, err := b.Build(f)
	require.NoError(t, err)
	assert.Len(t, chroms, 1)
}

func TestBuildCoincidentTraces(t *testing.T) {
	// Two ions at the same m/z in scan 1 drift apart in scan 2. The more
	// intense point in scan 2 extends one of them, the other point must
	// still find the remaining trace.
	f := msdata.NewDataFile("coincident")
	s1 := &msdata.Scan{Number: 1, MSLevel: 1, RetentionTime: 1.0,
		Points: []msdata.DataPoint{{Mz: 100.009, Intens: 90}}}
	s1.AddMassList(msdata.MassList{Name: "exact", Points: []msdata.DataPoint{
		{Mz: 100.009, Intens: 76}, {Mz: 100.009, Intens: 90}}})
	s2 := &msdata.Scan{Number: 2, MSLevel: 1, RetentionTime: 1.1,
		Points: []msdata.DataPoint{{Mz: 100.003, Intens: 20}, {Mz: 100.016, Intens: 28}}}
	s2.AddMassList(msdata.MassList{Name: "exact", Points: s2.Points})
	require.NoError(t, f.AddScan(s1))
	require.NoError(t, f.AddScan(s2))

	b := Builder{MassList: "exact", Tolerance: Tolerance{Abs: 0.01}, MinScanSpan: 2, RTRange: msdata.AllRange}
	chroms, err := b.Build(f)
	require.NoError(t, err)
	require.Len(t, chroms, 2)
	for _, c := range chroms {
		assert.NotContains(t, c.Intensities(), 0.0)
	}
}

func TestBuilderValidate(t *testing.T) {
	assert.True(t, errors.Is(Builder{MinScanSpan: 1, RTRange: msdata.AllRange}.Validate(), ErrInvalidBuilder))
	assert.True(t, errors.Is(Builder{Tolerance: Tolerance{Abs: 1}, RTRange: msdata.AllRange}.Validate(), ErrInvalidBuilder))
	assert.NoError(t, Builder{Tolerance: Tolerance{Abs: 1}, MinScanSpan: 1, RTRange: msdata.AllRange}.Validate())
}
