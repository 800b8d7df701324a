package resolver

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// gaussian evaluates h*exp(-(x-mu)^2/(2*sigma^2))
func gaussian(x, h, mu, sigma float64) float64 {
	d := (x - mu) / sigma
	return h * math.Exp(-d*d/2)
}

// gaussianSimilarity fits a Gaussian to the points (x, y) and returns the
// coefficient of determination R^2 of the fit, clipped to [0, 1]. Fewer
// than three points can't be judged and return 1.
func gaussianSimilarity(x, y []float64) float64 {
	if len(x) < 3 {
		return 1
	}
	top := floats.MaxIdx(y)
	sst := stat.Variance(y, nil) * float64(len(y)-1)
	if sst == 0 {
		return 1
	}

	sse := func(p []float64) float64 {
		var sum float64
		for i := range x {
			d := y[i] - gaussian(x[i], p[0], p[1], p[2])
			sum += d * d
		}
		return sum
	}
	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			if p[2] == 0 {
				return math.Inf(1)
			}
			return sse(p)
		},
	}
	// Start from the apex and a width estimated from the span
	pIn := []float64{y[top], x[top], (x[len(x)-1] - x[0]) / 4}
	if pIn[2] == 0 {
		pIn[2] = 1
	}
	res, err := optimize.Minimize(problem, pIn, nil, nil)
	fit := sse(pIn)
	if err == nil && res != nil && res.F < fit {
		fit = res.F
	}
	r2 := 1 - fit/sst
	return math.Max(0, math.Min(1, r2))
}
