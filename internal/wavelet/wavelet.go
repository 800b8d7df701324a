// Package wavelet implements the continuous wavelet transform with the
// Mexican hat (Ricker) wavelet, used to find chromatographic peaks and to
// estimate their signal to noise ratio.
//
// Scales and positions are in points (scan indices), the signal is
// assumed to be sampled at a constant rate.
package wavelet

import (
	"math"
)

// kernelWidth is the half width of the sampled wavelet in scales. Beyond
// 5 scales the wavelet is below 1e-4 of its maximum.
const kernelWidth = 5

var rickerNorm = 2 / (math.Sqrt(3) * math.Pow(math.Pi, 0.25))

// Ricker returns the Mexican hat wavelet with scale s at position t
func Ricker(t, s float64) float64 {
	x := t * t / (s * s)
	return rickerNorm / math.Sqrt(s) * (1 - x) * math.Exp(-x/2)
}

// Kernel returns the sampled wavelet for scale s, centred at index
// len/2
func Kernel(s float64) []float64 {
	half := int(math.Ceil(kernelWidth * s))
	k := make([]float64, 2*half+1)
	for j := range k {
		k[j] = Ricker(float64(j-half), s)
	}
	return k
}

// Transform returns the wavelet coefficients of signal at scale s. The
// signal is zero padded at both ends.
func Transform(signal []float64, s float64) []float64 {
	k := Kernel(s)
	half := len(k) / 2
	coef := make([]float64, len(signal))
	for i := range signal {
		lo := i - half
		jStart := 0
		if lo < 0 {
			jStart = -lo
		}
		jEnd := len(k)
		if lo+jEnd > len(signal) {
			jEnd = len(signal) - lo
		}
		var c float64
		for j := jStart; j < jEnd; j++ {
			c += signal[lo+j] * k[j]
		}
		coef[i] = c
	}
	return coef
}

// TransformScales returns the coefficients for each scale, indexed as
// [scale][position]
func TransformScales(signal []float64, scales []float64) [][]float64 {
	coef := make([][]float64, len(scales))
	for i, s := range scales {
		coef[i] = Transform(signal, s)
	}
	return coef
}

// Scales returns the scales from min to max (inclusive) with the given step
func Scales(min, max, step float64) []float64 {
	if step <= 0 {
		return []float64{min}
	}
	var scales []float64
	for s := min; s <= max+step*1e-9; s += step {
		scales = append(scales, s)
	}
	return scales
}

// LocalMaxima returns the indices of the positive local maxima of coef.
// For a plateau the first index is returned.
func LocalMaxima(coef []float64) []int {
	var idx []int
	for i, c := range coef {
		if c <= 0 {
			continue
		}
		if i > 0 && coef[i-1] >= c {
			continue
		}
		j := i + 1
		for j < len(coef) && coef[j] == c {
			j++
		}
		if j < len(coef) && coef[j] > c {
			continue
		}
		idx = append(idx, i)
	}
	return idx
}

// ZeroCrossings returns the last index left of center and the first index
// right of center where coef is not positive, clipped to the slice
func ZeroCrossings(coef []float64, center int) (left, right int) {
	left = center
	for left > 0 && coef[left] > 0 {
		left--
	}
	right = center
	for right < len(coef)-1 && coef[right] > 0 {
		right++
	}
	return left, right
}
