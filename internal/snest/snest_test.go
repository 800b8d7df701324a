package snest

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzpeaks/internal/chromatogram"
	"github.com/524D/mzpeaks/internal/msdata"
)

// newChromatogram creates a chromatogram with one MS1 scan per intensity,
// 0.1 minute apart
func newChromatogram(t *testing.T, intens []float64) *chromatogram.Chromatogram {
	t.Helper()
	f := msdata.NewDataFile("sn")
	nums := make([]int, len(intens))
	points := make(map[int]msdata.DataPoint)
	for i, v := range intens {
		nums[i] = i + 1
		require.NoError(t, f.AddScan(&msdata.Scan{Number: i + 1, MSLevel: 1, RetentionTime: 0.1 * float64(i)}))
		points[i+1] = msdata.DataPoint{Mz: 400, Intens: v}
	}
	c, err := chromatogram.New(f, nums, points)
	require.NoError(t, err)
	return c
}

func TestIntensityWindow(t *testing.T) {
	c := newChromatogram(t, []float64{10, 12, 8, 10, 100, 200, 100, 10, 12, 8})
	sn, err := IntensityWindow{}.Estimate(c, 4, 6)
	require.NoError(t, err)
	assert.InDelta(t, 190/math.Sqrt(64.0/6), sn, 1e-9)
}

func TestIntensityWindowEdges(t *testing.T) {
	tests := []struct {
		name   string
		intens []float64
		left   int
		right  int
		want   float64
	}{
		{"zero noise", []float64{5, 5, 50, 5, 5}, 2, 2, math.Inf(1)},
		{"zero signal", []float64{0, 0, 0, 0, 0}, 1, 3, 0},
		{"peak below baseline", []float64{9, 9, 1, 9, 9}, 2, 2, 0},
		{"whole chromatogram", []float64{1, 5, 1}, 0, 2, math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sn, err := IntensityWindow{}.Estimate(newChromatogram(t, tt.intens), tt.left, tt.right)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sn)
		})
	}
}

func TestEstimateErrors(t *testing.T) {
	c := newChromatogram(t, []float64{1, math.NaN(), 3, 50, 3, 2, 1})
	_, err := IntensityWindow{}.Estimate(c, 2, 2)
	assert.True(t, errors.Is(err, ErrNaN))

	_, err = IntensityWindow{}.Estimate(c, 5, 9)
	assert.True(t, errors.Is(err, ErrInvalidRange))
	_, err = WaveletCoefficients{PeakWidthMult: 1}.Estimate(c, 3, 2)
	assert.True(t, errors.Is(err, ErrInvalidRange))
}

func noisyPeak(r *rand.Rand) []float64 {
	intens := make([]float64, 200)
	for i := range intens {
		d := (float64(i) - 100) / 3
		intens[i] = 1000*math.Exp(-d*d/2) + r.Float64()*20
	}
	return intens
}

func TestWaveletCoefficients(t *testing.T) {
	c := newChromatogram(t, noisyPeak(rand.New(rand.NewSource(4))))
	for _, abs := range []bool{false, true} {
		est := WaveletCoefficients{PeakWidthMult: 10, AbsWaveCoeffs: abs}
		require.NoError(t, est.Validate())

		peak, err := est.Estimate(c, 93, 107)
		require.NoError(t, err)
		noise, err := est.Estimate(c, 20, 34)
		require.NoError(t, err)

		assert.False(t, math.IsInf(peak, 0))
		assert.Greater(t, peak, 3.0, "abs %v", abs)
		assert.Greater(t, peak, noise, "abs %v", abs)
	}
}

func TestWaveletCoefficientsZeroSignal(t *testing.T) {
	c := newChromatogram(t, make([]float64, 50))
	sn, err := WaveletCoefficients{PeakWidthMult: 2}.Estimate(c, 20, 30)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sn)
}

func TestWaveletCoefficientsValidate(t *testing.T) {
	assert.True(t, errors.Is(WaveletCoefficients{}.Validate(), ErrInvalidParameter))
	assert.True(t, errors.Is(WaveletCoefficients{PeakWidthMult: math.NaN()}.Validate(), ErrInvalidParameter))
}
