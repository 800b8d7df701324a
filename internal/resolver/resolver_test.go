package resolver

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzpeaks/internal/chromatogram"
	"github.com/524D/mzpeaks/internal/msdata"
	"github.com/524D/mzpeaks/internal/snest"
)

// testChromatogram creates a chromatogram at m/z 400 with MS1 scan 10*i at
// retention time 0.1*i for each intensity. Extra scans are merged in
// retention time order.
func testChromatogram(t *testing.T, intens []float64, extra ...*msdata.Scan) *chromatogram.Chromatogram {
	t.Helper()
	var scans []*msdata.Scan
	nums := make([]int, len(intens))
	points := make(map[int]msdata.DataPoint)
	for i, v := range intens {
		nums[i] = 10 * i
		scans = append(scans, &msdata.Scan{Number: 10 * i, MSLevel: 1, RetentionTime: 0.1 * float64(i)})
		if v != 0 {
			points[10*i] = msdata.DataPoint{Mz: 400, Intens: v}
		}
	}
	scans = append(scans, extra...)
	sort.SliceStable(scans, func(i, j int) bool { return scans[i].RetentionTime < scans[j].RetentionTime })

	f := msdata.NewDataFile("resolver")
	for _, s := range scans {
		require.NoError(t, f.AddScan(s))
	}
	c, err := chromatogram.New(f, nums, points)
	require.NoError(t, err)
	return c
}

func baselineOpts(minHeight float64) Options {
	return Options{
		Duration:  msdata.Range{Min: 0.1, Max: 1.0},
		MinHeight: minHeight,
	}
}

func TestBaselineSinglePeak(t *testing.T) {
	c := testChromatogram(t, []float64{0, 0, 50, 80, 60, 0, 0})
	r, err := NewBaseline(10, baselineOpts(40))
	require.NoError(t, err)

	peaks, err := r.Resolve(c)
	require.NoError(t, err)
	require.Len(t, peaks, 1)
	p := peaks[0]
	assert.Equal(t, 2, p.Start)
	assert.Equal(t, 4, p.End)
	assert.InDelta(t, 0.2, p.Duration(), 1e-9)
	assert.Equal(t, 80.0, p.Height)
	assert.InDelta(t, 0.3, p.RT, 1e-9)
	assert.InDelta(t, 13.5, p.Area, 1e-9)
	assert.InDelta(t, 400, p.Mz, 1e-9)
	assert.Equal(t, []int{20, 30, 40}, p.ScanNumbers())
	assert.Equal(t, 0, p.FragmentScan)
	assert.Equal(t, "resolver", p.RawDataFile().Name())
}

func TestBaselineHeightTooLow(t *testing.T) {
	c := testChromatogram(t, []float64{0, 0, 50, 80, 60, 0, 0})
	r, err := NewBaseline(10, baselineOpts(90))
	require.NoError(t, err)

	peaks, err := r.Resolve(c)
	require.NoError(t, err)
	assert.Empty(t, peaks)
}

func TestBaselineRegions(t *testing.T) {
	tests := []struct {
		name   string
		intens []float64
		want   [][2]int
	}{
		{"region at end", []float64{0, 0, 0, 20, 50, 70}, [][2]int{{3, 5}}},
		{"region at start", []float64{20, 50, 70, 0, 0, 0}, [][2]int{{0, 2}}},
		{"two regions", []float64{50, 60, 55, 0, 0, 50, 60, 55, 0}, [][2]int{{0, 2}, {5, 7}}},
		{"too short", []float64{0, 0, 100, 0, 0}, nil},
		{"too long", []float64{0, 50, 50, 50, 50, 50, 50, 50, 50, 50, 50, 50, 50, 0}, nil},
		{"empty", nil, nil},
	}
	r, err := NewBaseline(10, baselineOpts(40))
	require.NoError(t, err)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			peaks, err := r.Resolve(testChromatogram(t, tt.intens))
			require.NoError(t, err)
			var got [][2]int
			for _, p := range peaks {
				got = append(got, [2]int{p.Start, p.End})
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBaselineDurationAtMinimum(t *testing.T) {
	// 0.3-0.2 rounds to just below 0.1
	f := msdata.NewDataFile("rounding")
	rts := []float64{0.1, 0.2, 0.3, 0.4}
	intens := []float64{0, 50, 80, 0}
	points := make(map[int]msdata.DataPoint)
	for i, rt := range rts {
		require.NoError(t, f.AddScan(&msdata.Scan{Number: i + 1, MSLevel: 1, RetentionTime: rt}))
		if intens[i] != 0 {
			points[i+1] = msdata.DataPoint{Mz: 400, Intens: intens[i]}
		}
	}
	c, err := chromatogram.New(f, []int{1, 2, 3, 4}, points)
	require.NoError(t, err)

	r, err := NewBaseline(10, baselineOpts(40))
	require.NoError(t, err)
	peaks, err := r.Resolve(c)
	require.NoError(t, err)
	require.Len(t, peaks, 1)
	assert.Equal(t, 1, peaks[0].Start)
	assert.Equal(t, 2, peaks[0].End)
}

func TestDurationWithin(t *testing.T) {
	r := msdata.Range{Min: 0.1, Max: 0.2}
	rt := []float64{0.1, 0.2, 0.3, 0.4}
	assert.True(t, durationWithin(r, rt[2]-rt[1]))
	assert.True(t, durationWithin(r, rt[3]-rt[1]))
	assert.False(t, durationWithin(r, 0.0999))
	assert.False(t, durationWithin(r, 0.2001))
	assert.True(t, durationWithin(msdata.Range{Min: 0, Max: math.Inf(1)}, 0))
}

func checkPeaks(t *testing.T, peaks []ResolvedPeak, opts Options) {
	t.Helper()
	for i, p := range peaks {
		require.LessOrEqual(t, p.Start, p.End)
		if i > 0 {
			require.Greater(t, p.Start, peaks[i-1].End, "peaks %d and %d overlap or are unsorted", i-1, i)
		}
		require.True(t, durationWithin(opts.Duration, p.Duration()), "duration %v", p.Duration())
		require.GreaterOrEqual(t, p.Height, opts.MinHeight)
		require.GreaterOrEqual(t, p.Area, 0.0)
	}
}

func TestResolversRandomChromatograms(t *testing.T) {
	opts := Options{Duration: msdata.Range{Min: 0.15, Max: 0.8}, MinHeight: 30}
	baseline, err := NewBaseline(20, opts)
	require.NoError(t, err)
	noise, err := NewNoiseAmplitude(15, opts)
	require.NoError(t, err)
	localMin, err := NewLocalMinimum(LocalMinimumParams{ChromThreshold: 0.2, SearchRT: 0.3, MinRatio: 1}, opts)
	require.NoError(t, err)
	wav, err := NewWavelet(WaveletParams{Scales: msdata.Range{Min: 1, Max: 8}, ScaleStep: 1, MinRidgeLength: 3}, opts)
	require.NoError(t, err)

	r := rand.New(rand.NewSource(5))
	for i := 0; i < 30; i++ {
		intens := make([]float64, 20+r.Intn(80))
		for j := range intens {
			if r.Float64() < 0.7 {
				intens[j] = r.Float64() * 100
			}
		}
		c := testChromatogram(t, intens)
		for _, res := range []Resolver{baseline, noise, localMin, wav} {
			peaks, err := res.Resolve(c)
			require.NoError(t, err)
			checkPeaks(t, peaks, opts)
		}
	}
}

func TestOptionsErrors(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		param string
	}{
		{"inverted duration", Options{Duration: msdata.Range{Min: 2, Max: 1}}, "duration"},
		{"nan duration", Options{Duration: msdata.Range{Min: math.NaN(), Max: 1}}, "duration"},
		{"negative height", Options{Duration: msdata.Range{Max: 1}, MinHeight: -1}, "min_height"},
		{"negative sn", Options{Duration: msdata.Range{Max: 1}, MinSN: -1}, "min_sn"},
		{"negative msms", Options{Duration: msdata.Range{Max: 1}, MSMS: &MSMSWindow{Mz: -1}}, "msms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBaseline(10, tt.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidParameter))
			var pe *ParamError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.param, pe.Param)
		})
	}

	_, err := NewBaseline(-1, baselineOpts(0))
	assert.True(t, errors.Is(err, ErrInvalidParameter))
	_, err = NewNoiseAmplitude(0, baselineOpts(0))
	assert.True(t, errors.Is(err, ErrInvalidParameter))
	_, err = NewLocalMinimum(LocalMinimumParams{ChromThreshold: 2}, baselineOpts(0))
	assert.True(t, errors.Is(err, ErrInvalidParameter))
	_, err = NewWavelet(WaveletParams{Scales: msdata.Range{Min: 0, Max: 4}, ScaleStep: 1, MinRidgeLength: 1}, baselineOpts(0))
	assert.True(t, errors.Is(err, ErrInvalidParameter))
	_, err = NewWavelet(WaveletParams{Scales: msdata.Range{Min: 1, Max: 4}, ScaleStep: 0, MinRidgeLength: 1}, baselineOpts(0))
	assert.True(t, errors.Is(err, ErrInvalidParameter))
}

func TestSignalToNoiseGate(t *testing.T) {
	intens := []float64{10, 12, 8, 10, 11, 60, 90, 70, 10, 9, 12, 10, 8}
	opts := baselineOpts(0)
	opts.SNEstimator = snest.IntensityWindow{}

	for _, tt := range []struct {
		minSN float64
		want  int
	}{{3, 1}, {1e6, 0}} {
		opts.MinSN = tt.minSN
		r, err := NewBaseline(50, opts)
		require.NoError(t, err)
		peaks, err := r.Resolve(testChromatogram(t, intens))
		require.NoError(t, err)
		require.Len(t, peaks, tt.want, "min sn %v", tt.minSN)
		if tt.want > 0 {
			assert.Greater(t, peaks[0].SN, tt.minSN)
		}
	}
}

func TestSignalToNoiseError(t *testing.T) {
	opts := baselineOpts(0)
	opts.SNEstimator = snest.IntensityWindow{}
	r, err := NewBaseline(50, opts)
	require.NoError(t, err)

	c := testChromatogram(t, []float64{10, math.NaN(), 60, 90, 70, 10, 9})
	_, err = r.Resolve(c)
	assert.True(t, errors.Is(err, snest.ErrNaN))
}

func TestFragmentScan(t *testing.T) {
	ms2 := func(num int, rt, precursor, intens float64) *msdata.Scan {
		return &msdata.Scan{Number: num, MSLevel: 2, RetentionTime: rt, PrecursorMz: precursor,
			Points: []msdata.DataPoint{{Mz: 150, Intens: intens}}}
	}
	c := testChromatogram(t, []float64{0, 0, 50, 80, 60, 0, 0},
		ms2(15, 0.15, 400, 5000),
		ms2(25, 0.25, 400.001, 50),
		ms2(35, 0.35, 400.5, 500),
		ms2(36, 0.36, 399.999, 70),
		ms2(45, 0.45, 400, 1000),
	)
	opts := baselineOpts(40)
	opts.MSMS = &MSMSWindow{Mz: 0.01, RT: 0.01}
	r, err := NewBaseline(10, opts)
	require.NoError(t, err)

	peaks, err := r.Resolve(c)
	require.NoError(t, err)
	require.Len(t, peaks, 1)
	assert.Equal(t, 36, peaks[0].FragmentScan)
}

func TestNoiseAmplitude(t *testing.T) {
	r, err := NewNoiseAmplitude(10, Options{Duration: msdata.Range{Min: 0, Max: 1}})
	require.NoError(t, err)

	intens := []float64{0, 12, 15, 11, 18, 14, 200, 400, 300, 13, 16, 12, 0}
	assert.Equal(t, 20.0, r.NoiseLevel(intens))
	assert.Equal(t, 0.0, r.NoiseLevel([]float64{0, 0}))

	peaks, err := r.Resolve(testChromatogram(t, intens))
	require.NoError(t, err)
	require.Len(t, peaks, 1)
	assert.Equal(t, 6, peaks[0].Start)
	assert.Equal(t, 8, peaks[0].End)
	assert.Equal(t, 400.0, peaks[0].Height)
}

func twoGaussians(n int) []float64 {
	y := make([]float64, n)
	for i := range y {
		d1 := (float64(i) - 30) / 3
		d2 := (float64(i) - 45) / 3
		y[i] = 1000*math.Exp(-d1*d1/2) + 600*math.Exp(-d2*d2/2)
	}
	return y
}

func TestLocalMinimum(t *testing.T) {
	opts := Options{Duration: msdata.Range{Min: 0, Max: 10}}
	tests := []struct {
		name   string
		params LocalMinimumParams
		rts    []float64
	}{
		{"no threshold", LocalMinimumParams{SearchRT: 0.5, MinRelHeight: 0.1, MinRatio: 2}, []float64{3.0, 4.5}},
		{"median threshold", LocalMinimumParams{ChromThreshold: 0.5, SearchRT: 0.5, MinRelHeight: 0.1, MinRatio: 2}, []float64{3.0, 4.5}},
		{"relative height", LocalMinimumParams{SearchRT: 0.5, MinRelHeight: 0.7, MinRatio: 2}, []float64{3.0}},
		{"top edge ratio", LocalMinimumParams{SearchRT: 0.5, MinRelHeight: 0.1, MinRatio: 10}, []float64{3.0}},
		{"wide search window merges", LocalMinimumParams{SearchRT: 5, MinRelHeight: 0.1, MinRatio: 2}, []float64{3.0}},
	}
	c := testChromatogram(t, twoGaussians(80))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewLocalMinimum(tt.params, opts)
			require.NoError(t, err)
			peaks, err := r.Resolve(c)
			require.NoError(t, err)
			checkPeaks(t, peaks, opts)
			require.Len(t, peaks, len(tt.rts))
			for i, rt := range tt.rts {
				assert.InDelta(t, rt, peaks[i].RT, 1e-9)
			}
		})
	}
}

func noisyGaussians(r *rand.Rand, n int) []float64 {
	y := make([]float64, n)
	for i := range y {
		d1 := (float64(i) - 80) / 4
		d2 := (float64(i) - 200) / 4
		y[i] = 1000*math.Exp(-d1*d1/2) + 500*math.Exp(-d2*d2/2) + r.Float64()*10
	}
	return y
}

func TestWavelet(t *testing.T) {
	opts := Options{
		Duration:    msdata.Range{Min: 0, Max: 10},
		MinHeight:   100,
		SNEstimator: snest.IntensityWindow{},
		MinSN:       3,
	}
	for _, shape := range []float64{0, 0.9} {
		r, err := NewWavelet(WaveletParams{
			Scales:             msdata.Range{Min: 1, Max: 16},
			ScaleStep:          1,
			MinRidgeLength:     5,
			MinCoefAreaRatio:   0.02,
			MinShapeSimilarity: shape,
		}, opts)
		require.NoError(t, err)

		c := testChromatogram(t, noisyGaussians(rand.New(rand.NewSource(6)), 300))
		peaks, err := r.Resolve(c)
		require.NoError(t, err)
		checkPeaks(t, peaks, opts)
		require.Len(t, peaks, 2, "shape %v", shape)
		assert.InDelta(t, 8.0, peaks[0].RT, 0.21)
		assert.InDelta(t, 20.0, peaks[1].RT, 0.21)
		assert.InDelta(t, 1000, peaks[0].Height, 15)
		assert.InDelta(t, 500, peaks[1].Height, 15)
	}
}

func TestWaveletFlatChromatogram(t *testing.T) {
	r, err := NewWavelet(WaveletParams{Scales: msdata.Range{Min: 1, Max: 8}, ScaleStep: 1, MinRidgeLength: 20},
		Options{Duration: msdata.Range{Min: 0, Max: 10}})
	require.NoError(t, err)
	assert.Equal(t, 8, r.params.MinRidgeLength)

	peaks, err := r.Resolve(testChromatogram(t, make([]float64, 40)))
	require.NoError(t, err)
	assert.Empty(t, peaks)
}

func TestGaussianSimilarity(t *testing.T) {
	x := make([]float64, 21)
	g := make([]float64, 21)
	for i := range x {
		x[i] = 0.1 * float64(i)
		g[i] = gaussian(x[i], 500, 1.0, 0.3)
	}
	assert.Greater(t, gaussianSimilarity(x, g), 0.99)

	saw := make([]float64, 21)
	for i := range saw {
		saw[i] = float64(i % 4)
	}
	assert.Less(t, gaussianSimilarity(x, saw), 0.5)
	assert.Equal(t, 1.0, gaussianSimilarity(x[:2], g[:2]))
}
