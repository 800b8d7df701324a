package config

import (
	"sort"

	"github.com/524D/mzpeaks/internal/center"
	"github.com/524D/mzpeaks/internal/chromatogram"
	"github.com/524D/mzpeaks/internal/massdetect"
	"github.com/524D/mzpeaks/internal/msdata"
	"github.com/524D/mzpeaks/internal/resolver"
	"github.com/524D/mzpeaks/internal/scanfilter"
	"github.com/524D/mzpeaks/internal/snest"
)

var detectors = map[string]func(MassDetection) massdetect.Detector{
	"centroid": func(c MassDetection) massdetect.Detector {
		return massdetect.Centroid{NoiseLevel: c.NoiseLevel}
	},
	"local_maxima": func(c MassDetection) massdetect.Detector {
		return massdetect.LocalMaxima{NoiseLevel: c.NoiseLevel}
	},
	"exact_mass": func(c MassDetection) massdetect.Detector {
		return massdetect.ExactMass{NoiseLevel: c.NoiseLevel}
	},
}

var filters = map[string]func(ScanFilter) (scanfilter.Filter, error){
	"none": func(ScanFilter) (scanfilter.Filter, error) {
		return nil, nil
	},
	"mean": func(c ScanFilter) (scanfilter.Filter, error) {
		return scanfilter.NewMean(c.WindowLength, c.KeepSpectrumType)
	},
	"savitzky_golay": func(c ScanFilter) (scanfilter.Filter, error) {
		return scanfilter.NewSavitzkyGolay(c.HalfWidth, c.Order)
	},
	"crop": func(c ScanFilter) (scanfilter.Filter, error) {
		return scanfilter.NewCrop(c.MzRange.Value())
	},
}

var estimators = map[string]func(SNEstimator) (snest.Estimator, error){
	"none": func(SNEstimator) (snest.Estimator, error) {
		return nil, nil
	},
	"intensity_window": func(SNEstimator) (snest.Estimator, error) {
		return snest.IntensityWindow{}, nil
	},
	"wavelet": func(c SNEstimator) (snest.Estimator, error) {
		w := snest.WaveletCoefficients{PeakWidthMult: c.PeakWidthMult, AbsWaveCoeffs: c.AbsWaveCoeffs}
		if err := w.Validate(); err != nil {
			return nil, err
		}
		return w, nil
	},
}

var resolvers = map[string]func(Resolver, resolver.Options) (resolver.Resolver, error){
	"baseline": func(c Resolver, opts resolver.Options) (resolver.Resolver, error) {
		return resolver.NewBaseline(c.BaselineLevel, opts)
	},
	"noise_amplitude": func(c Resolver, opts resolver.Options) (resolver.Resolver, error) {
		return resolver.NewNoiseAmplitude(c.NoiseAmplitude, opts)
	},
	"local_minimum": func(c Resolver, opts resolver.Options) (resolver.Resolver, error) {
		return resolver.NewLocalMinimum(resolver.LocalMinimumParams{
			ChromThreshold: c.LocalMinimum.ChromThreshold,
			SearchRT:       c.LocalMinimum.SearchRT,
			MinRelHeight:   c.LocalMinimum.MinRelHeight,
			MinRatio:       c.LocalMinimum.MinRatio,
		}, opts)
	},
	"wavelet": func(c Resolver, opts resolver.Options) (resolver.Resolver, error) {
		return resolver.NewWavelet(resolver.WaveletParams{
			Scales:             msdata.Range{Min: c.Wavelet.Scales.Min, Max: c.Wavelet.Scales.Max},
			ScaleStep:          c.Wavelet.ScaleStep,
			MinRidgeLength:     c.Wavelet.MinRidgeLength,
			MinCoefAreaRatio:   c.Wavelet.MinCoefAreaRatio,
			MinShapeSimilarity: c.Wavelet.MinShapeSimilarity,
		}, opts)
	},
}

func names[T any](m map[string]T) []string {
	n := make([]string, 0, len(m))
	for k := range m {
		n = append(n, k)
	}
	sort.Strings(n)
	return n
}

// ResolverNames returns the names of the available resolvers
func ResolverNames() []string {
	return names(resolvers)
}

// Detector creates the configured mass detector
func (c MassDetection) Detector() (massdetect.Detector, error) {
	newDetector, ok := detectors[c.Method]
	if !ok {
		return nil, fieldError("mass_detection.method", "unknown method %q, use one of %v", c.Method, names(detectors))
	}
	if !(c.NoiseLevel >= 0) {
		return nil, fieldError("mass_detection.noise_level", "must be >= 0, got %v", c.NoiseLevel)
	}
	return newDetector(c), nil
}

// Filter creates the configured scan filter, nil for method none
func (c ScanFilter) Filter() (scanfilter.Filter, error) {
	newFilter, ok := filters[c.Method]
	if !ok {
		return nil, fieldError("scan_filter.method", "unknown method %q, use one of %v", c.Method, names(filters))
	}
	f, err := newFilter(c)
	if err != nil {
		return nil, fieldError("scan_filter", "%v", err)
	}
	return f, nil
}

// Estimator creates the configured signal to noise estimator, nil for
// method none
func (c SNEstimator) Estimator() (snest.Estimator, error) {
	newEstimator, ok := estimators[c.Method]
	if !ok {
		return nil, fieldError("sn_estimator.method", "unknown method %q, use one of %v", c.Method, names(estimators))
	}
	e, err := newEstimator(c)
	if err != nil {
		return nil, fieldError("sn_estimator", "%v", err)
	}
	return e, nil
}

// Func creates the configured centering function
func (c Center) Func() (center.Func, error) {
	m, err := center.ParseMeasure(c.Measure)
	if err != nil {
		return nil, fieldError("center.measure", "%v", err)
	}
	w, err := center.ParseWeighting(c.Weighting)
	if err != nil {
		return nil, fieldError("center.weighting", "%v", err)
	}
	return center.Function{Measure: m, Weighting: w}, nil
}

// Builder returns the chromatogram builder reading the named mass list
func (c Chromatogram) Builder(massList string) chromatogram.Builder {
	return chromatogram.Builder{
		MassList:    massList,
		Tolerance:   chromatogram.Tolerance{Abs: c.MzToleranceAbs, PPM: c.MzTolerancePPM},
		MinScanSpan: c.MinScanSpan,
		MinHeight:   c.MinHeight,
		RTRange:     c.RTRange.Value(),
	}
}

// NewResolver creates the configured resolver with its signal to noise
// estimator and centering function
func (c *Config) NewResolver() (resolver.Resolver, error) {
	rc := c.Resolver
	newResolver, ok := resolvers[rc.Method]
	if !ok {
		return nil, fieldError("resolver.method", "unknown method %q, use one of %v", rc.Method, ResolverNames())
	}
	est, err := c.SNEstimator.Estimator()
	if err != nil {
		return nil, err
	}
	cf, err := c.Center.Func()
	if err != nil {
		return nil, err
	}
	opts := resolver.Options{
		Duration:    msdata.Range{Min: rc.Duration.Min, Max: rc.Duration.Max},
		MinHeight:   rc.MinHeight,
		Center:      cf,
		SNEstimator: est,
		MinSN:       rc.MinSN,
	}
	if rc.MSMS != nil {
		opts.MSMS = &resolver.MSMSWindow{Mz: rc.MSMS.MzWindow, RT: rc.MSMS.RTWindow}
	}
	r, err := newResolver(rc, opts)
	if err != nil {
		return nil, fieldError("resolver", "%v", err)
	}
	return r, nil
}
