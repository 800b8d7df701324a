// Package config reads the parameter file of mzpeaks and creates the
// processing strategies it names.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/524D/mzpeaks/internal/msdata"
)

// ErrInvalidConfig is wrapped by every configuration error
var ErrInvalidConfig = errors.New("invalid configuration")

// Error is a configuration error in a single field
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Field, e.Message)
}

func (e *Error) Unwrap() error {
	return ErrInvalidConfig
}

func fieldError(field, format string, a ...interface{}) error {
	return &Error{Field: field, Message: fmt.Sprintf(format, a...)}
}

// Range is a closed interval. A zero Range means "everything".
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Value returns the range as msdata.Range, AllRange for the zero value
func (r Range) Value() msdata.Range {
	if r == (Range{}) {
		return msdata.AllRange
	}
	return msdata.Range{Min: r.Min, Max: r.Max}
}

// MassDetection selects the mass detector
type MassDetection struct {
	Method     string  `yaml:"method"` // centroid, local_maxima, exact_mass
	NoiseLevel float64 `yaml:"noise_level"`
	MassList   string  `yaml:"mass_list"`
	MSLevel    int     `yaml:"ms_level"` // 0 is all levels
}

// ScanFilter selects the optional scan filter
type ScanFilter struct {
	Method           string  `yaml:"method"` // none, mean, savitzky_golay, crop
	WindowLength     float64 `yaml:"window_length"`
	KeepSpectrumType bool    `yaml:"keep_spectrum_type"`
	HalfWidth        int     `yaml:"half_width"`
	Order            int     `yaml:"order"`
	MzRange          Range   `yaml:"mz_range"`
	MSLevel          int     `yaml:"ms_level"`
}

// Chromatogram configures the chromatogram builder
type Chromatogram struct {
	MzToleranceAbs float64 `yaml:"mz_tolerance_abs"`
	MzTolerancePPM float64 `yaml:"mz_tolerance_ppm"`
	MinScanSpan    int     `yaml:"min_scan_span"`
	MinHeight      float64 `yaml:"min_height"`
	RTRange        Range   `yaml:"rt_range"`
}

// SNEstimator selects the signal to noise estimator
type SNEstimator struct {
	Method        string  `yaml:"method"` // none, intensity_window, wavelet
	PeakWidthMult float64 `yaml:"peak_width_mult"`
	AbsWaveCoeffs bool    `yaml:"abs_wave_coeffs"`
}

// Center selects the centering function
type Center struct {
	Measure   string `yaml:"measure"`   // mean, median, highest
	Weighting string `yaml:"weighting"` // none, linear, log10
}

// MSMS configures fragmentation scan linkage
type MSMS struct {
	MzWindow float64 `yaml:"mz_window"`
	RTWindow float64 `yaml:"rt_window"`
}

// LocalMinimum holds the local minimum search parameters
type LocalMinimum struct {
	ChromThreshold float64 `yaml:"chromatographic_threshold"`
	SearchRT       float64 `yaml:"search_rt"`
	MinRelHeight   float64 `yaml:"min_relative_height"`
	MinRatio       float64 `yaml:"min_ratio"`
}

// Wavelet holds the wavelet resolver parameters
type Wavelet struct {
	Scales             Range   `yaml:"scales"`
	ScaleStep          float64 `yaml:"scale_step"`
	MinRidgeLength     int     `yaml:"min_ridge_length"`
	MinCoefAreaRatio   float64 `yaml:"min_coef_area_ratio"`
	MinShapeSimilarity float64 `yaml:"min_shape_similarity"`
}

// Resolver selects the peak resolver and holds its parameters
type Resolver struct {
	Method         string       `yaml:"method"` // baseline, noise_amplitude, local_minimum, wavelet
	Duration       Range        `yaml:"duration"`
	MinHeight      float64      `yaml:"min_height"`
	MinSN          float64      `yaml:"min_sn"`
	BaselineLevel  float64      `yaml:"baseline_level"`
	NoiseAmplitude float64      `yaml:"noise_amplitude"`
	LocalMinimum   LocalMinimum `yaml:"local_minimum"`
	Wavelet        Wavelet      `yaml:"wavelet"`
	MSMS           *MSMS        `yaml:"msms"`
}

// Batch configures parallel processing
type Batch struct {
	Workers int `yaml:"workers"` // 0 is the number of CPUs
}

// Config is the complete parameter set
type Config struct {
	MassDetection MassDetection `yaml:"mass_detection"`
	ScanFilter    ScanFilter    `yaml:"scan_filter"`
	Chromatogram  Chromatogram  `yaml:"chromatogram"`
	SNEstimator   SNEstimator   `yaml:"sn_estimator"`
	Center        Center        `yaml:"center"`
	Resolver      Resolver      `yaml:"resolver"`
	Batch         Batch         `yaml:"batch"`
}

// Default returns the default parameters
func Default() Config {
	return Config{
		MassDetection: MassDetection{
			Method:     "centroid",
			NoiseLevel: 1000,
			MassList:   "masses",
			MSLevel:    1,
		},
		ScanFilter: ScanFilter{
			Method:       "none",
			WindowLength: 0.02,
			HalfWidth:    2,
			Order:        2,
			MSLevel:      1,
		},
		Chromatogram: Chromatogram{
			MzToleranceAbs: 0.001,
			MzTolerancePPM: 10,
			MinScanSpan:    5,
			MinHeight:      10000,
		},
		SNEstimator: SNEstimator{
			Method:        "intensity_window",
			PeakWidthMult: 3,
		},
		Center: Center{
			Measure:   "mean",
			Weighting: "linear",
		},
		Resolver: Resolver{
			Method:         "wavelet",
			Duration:       Range{Min: 0.02, Max: 3},
			MinHeight:      10000,
			MinSN:          10,
			BaselineLevel:  1000,
			NoiseAmplitude: 1000,
			LocalMinimum: LocalMinimum{
				ChromThreshold: 0.9,
				SearchRT:       0.05,
				MinRelHeight:   0.05,
				MinRatio:       1.7,
			},
			Wavelet: Wavelet{
				Scales:           Range{Min: 1, Max: 10},
				ScaleStep:        1,
				MinRidgeLength:   3,
				MinCoefAreaRatio: 0.02,
			},
		},
	}
}

// Load reads a YAML parameter file. Settings that are not in the file keep
// their default value. Unknown keys are an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates YAML parameters on top of the defaults
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Write encodes the configuration as YAML
func (c *Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// Validate checks every setting by constructing the strategies they select
func (c *Config) Validate() error {
	if _, err := c.MassDetection.Detector(); err != nil {
		return err
	}
	if c.MassDetection.MassList == "" {
		return fieldError("mass_detection.mass_list", "must not be empty")
	}
	if c.MassDetection.MSLevel < 0 {
		return fieldError("mass_detection.ms_level", "must be >= 0, got %d", c.MassDetection.MSLevel)
	}
	if _, err := c.ScanFilter.Filter(); err != nil {
		return err
	}
	if c.ScanFilter.MSLevel < 0 {
		return fieldError("scan_filter.ms_level", "must be >= 0, got %d", c.ScanFilter.MSLevel)
	}
	if err := c.Chromatogram.Builder("").Validate(); err != nil {
		return fieldError("chromatogram", "%v", err)
	}
	if c.Batch.Workers < 0 {
		return fieldError("batch.workers", "must be >= 0, got %d", c.Batch.Workers)
	}
	_, err := c.NewResolver()
	return err
}
