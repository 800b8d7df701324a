package resolver

import (
	"math"

	"github.com/524D/mzpeaks/internal/chromatogram"
)

type regionState int

const (
	scanning regionState = iota
	inRegion
	emit
)

// region is a contiguous run of scans at or above a level
type region struct {
	start  int
	end    int
	height float64
}

// regionsAbove returns the maximal runs of intens at or above level, in
// order. The height of a run is tracked while it grows.
func regionsAbove(intens []float64, level float64) []region {
	var regions []region
	state := scanning
	var cur region
	for i := 0; i <= len(intens); i++ {
		// i == len(intens) is the end of the chromatogram
		above := i < len(intens) && intens[i] >= level
		switch state {
		case scanning:
			if above {
				cur = region{start: i, end: i, height: intens[i]}
				state = inRegion
			}
		case inRegion:
			if above {
				cur.end = i
				cur.height = math.Max(cur.height, intens[i])
			} else {
				state = emit
			}
		}
		if state == emit {
			regions = append(regions, cur)
			state = scanning
		}
	}
	return regions
}

// resolveRegions turns regions into peaks, dropping those that fail
// the gates of opts
func resolveRegions(opts *Options, c *chromatogram.Chromatogram, regions []region) ([]ResolvedPeak, error) {
	b := newPeakBuilder(opts, c)
	var peaks []ResolvedPeak
	for _, r := range regions {
		if r.height < opts.MinHeight {
			continue
		}
		p, ok, err := b.accept(r.start, r.end)
		if err != nil {
			return nil, err
		}
		if ok {
			peaks = append(peaks, p)
		}
	}
	return peaks, nil
}

// Baseline reports every run of scans at or above a fixed baseline level
// as a peak
type Baseline struct {
	level float64
	opts  Options
}

// NewBaseline creates a baseline cut-off resolver
func NewBaseline(level float64, opts Options) (*Baseline, error) {
	if !(level >= 0) {
		return nil, paramError("baseline_level", "must be >= 0, got %v", level)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Baseline{level: level, opts: opts}, nil
}

// Resolve implements Resolver
func (r *Baseline) Resolve(c *chromatogram.Chromatogram) ([]ResolvedPeak, error) {
	return resolveRegions(&r.opts, c, regionsAbove(c.Intensities(), r.level))
}

// NoiseAmplitude is a baseline resolver that derives the baseline from
// the data: intensities are binned with the expected noise amplitude as
// bin width, and the upper edge of the most populated bin is the level.
type NoiseAmplitude struct {
	amplitude float64
	opts      Options
}

// NewNoiseAmplitude creates a noise amplitude resolver
func NewNoiseAmplitude(amplitude float64, opts Options) (*NoiseAmplitude, error) {
	if !(amplitude > 0) {
		return nil, paramError("noise_amplitude", "must be > 0, got %v", amplitude)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &NoiseAmplitude{amplitude: amplitude, opts: opts}, nil
}

// NoiseLevel returns the baseline level for the intensities. Zero
// intensities (scans without data) are not counted.
func (r *NoiseAmplitude) NoiseLevel(intens []float64) float64 {
	bins := make(map[int]int)
	bestBin, bestCount := 0, 0
	for _, v := range intens {
		if !(v > 0) {
			continue
		}
		bin := int(math.Floor(v / r.amplitude))
		bins[bin]++
		// Ties go to the lowest bin
		if n := bins[bin]; n > bestCount || (n == bestCount && bin < bestBin) {
			bestBin, bestCount = bin, n
		}
	}
	if bestCount == 0 {
		return 0
	}
	return float64(bestBin+1) * r.amplitude
}

// Resolve implements Resolver
func (r *NoiseAmplitude) Resolve(c *chromatogram.Chromatogram) ([]ResolvedPeak, error) {
	intens := c.Intensities()
	level := r.NoiseLevel(intens)
	if level == 0 {
		return nil, nil
	}
	return resolveRegions(&r.opts, c, regionsAbove(intens, level))
}
