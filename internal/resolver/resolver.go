// Package resolver splits chromatograms into chromatographic peaks.
//
// All resolvers share the same contract: a chromatogram goes in, zero or
// more non-overlapping peaks sorted by start index come out, each with a
// duration inside the configured range and a height of at least the
// configured minimum. Parameters are checked when a resolver is created;
// Resolve only fails when the signal to noise estimator fails.
package resolver

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"

	"github.com/524D/mzpeaks/internal/center"
	"github.com/524D/mzpeaks/internal/chromatogram"
	"github.com/524D/mzpeaks/internal/msdata"
	"github.com/524D/mzpeaks/internal/snest"
)

// Resolver finds the peaks in a chromatogram
type Resolver interface {
	Resolve(c *chromatogram.Chromatogram) ([]ResolvedPeak, error)
}

// ErrInvalidParameter is wrapped by all parameter errors of the
// resolver constructors
var ErrInvalidParameter = errors.New("resolver: invalid parameter")

// ParamError reports which parameter is wrong
type ParamError struct {
	Param   string
	Message string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("resolver parameter %s: %s", e.Param, e.Message)
}

func (e *ParamError) Unwrap() error {
	return ErrInvalidParameter
}

func paramError(param, format string, a ...interface{}) error {
	return &ParamError{Param: param, Message: fmt.Sprintf(format, a...)}
}

// MSMSWindow selects the fragmentation scan linked to a peak: the most
// intense MS2 scan with a precursor within Mz of the peak m/z and a
// retention time within RT minutes of the peak span
type MSMSWindow struct {
	Mz float64
	RT float64
}

// Options holds the settings shared by all resolvers
type Options struct {
	// Duration is the accepted range of end minus start retention time
	Duration msdata.Range
	// MinHeight is the minimum peak height
	MinHeight float64
	// Center computes the peak m/z, center.Default when nil
	Center center.Func
	// SNEstimator gates peaks on MinSN when set
	SNEstimator snest.Estimator
	MinSN       float64
	// MSMS links fragmentation scans when set
	MSMS *MSMSWindow
}

func (o *Options) validate() error {
	if !o.Duration.Valid() || o.Duration.Min < 0 {
		return paramError("duration", "invalid range %v", o.Duration)
	}
	if !(o.MinHeight >= 0) {
		return paramError("min_height", "must be >= 0, got %v", o.MinHeight)
	}
	if !(o.MinSN >= 0) {
		return paramError("min_sn", "must be >= 0, got %v", o.MinSN)
	}
	if o.MSMS != nil && (!(o.MSMS.Mz >= 0) || !(o.MSMS.RT >= 0)) {
		return paramError("msms", "windows must be >= 0, got %+v", *o.MSMS)
	}
	if o.Center == nil {
		o.Center = center.Default
	}
	return nil
}

// ResolvedPeak is the inclusive index range [Start, End] of a chromatogram
// that was accepted as a peak
type ResolvedPeak struct {
	Chromatogram *chromatogram.Chromatogram
	Start        int
	End          int
	Mz           float64
	RT           float64 // Retention time of the most intense point
	Height       float64
	Area         float64 // Intensity integrated over retention time
	SN           float64 // Signal to noise ratio, 0 when not estimated
	FragmentScan int     // Scan number of the linked MS2 scan, 0 for none
}

// RawDataFile returns the raw data source of the peak
func (p *ResolvedPeak) RawDataFile() msdata.RawDataSource {
	return p.Chromatogram.File()
}

// ScanNumbers returns the scan numbers the peak spans
func (p *ResolvedPeak) ScanNumbers() []int {
	return p.Chromatogram.ScanNumbers()[p.Start : p.End+1]
}

// RTRange returns the retention time of the first and last scan
func (p *ResolvedPeak) RTRange() msdata.Range {
	return msdata.Range{
		Min: p.Chromatogram.RetentionTime(p.Start),
		Max: p.Chromatogram.RetentionTime(p.End),
	}
}

// Duration returns the retention time span of the peak
func (p *ResolvedPeak) Duration() float64 {
	return p.RTRange().Length()
}

// peakBuilder evaluates candidate ranges of one chromatogram against the
// shared options
type peakBuilder struct {
	opts   *Options
	c      *chromatogram.Chromatogram
	intens []float64
	rts    []float64
}

func newPeakBuilder(opts *Options, c *chromatogram.Chromatogram) *peakBuilder {
	return &peakBuilder{
		opts:   opts,
		c:      c,
		intens: c.Intensities(),
		rts:    c.RetentionTimes(),
	}
}

// durationRelTol absorbs the rounding of retention time differences, so
// scans 0.1 minutes apart make a duration of 0.1
const durationRelTol = 1e-9

// durationWithin reports whether d lies in r, allowing a small relative
// tolerance on both bounds
func durationWithin(r msdata.Range, d float64) bool {
	return d >= r.Min-durationRelTol*math.Abs(r.Min) && d <= r.Max+durationRelTol*math.Abs(r.Max)
}

// accept returns the peak for [start, end] if it passes the duration,
// height and signal to noise gates
func (b *peakBuilder) accept(start, end int) (ResolvedPeak, bool, error) {
	if !durationWithin(b.opts.Duration, b.rts[end]-b.rts[start]) {
		return ResolvedPeak{}, false, nil
	}
	top := start + floats.MaxIdx(b.intens[start:end+1])
	if b.intens[top] < b.opts.MinHeight {
		return ResolvedPeak{}, false, nil
	}
	var sn float64
	if b.opts.SNEstimator != nil {
		var err error
		sn, err = b.opts.SNEstimator.Estimate(b.c, start, end)
		if err != nil {
			return ResolvedPeak{}, false, fmt.Errorf("signal to noise of [%d, %d]: %w", start, end, err)
		}
		if sn < b.opts.MinSN {
			return ResolvedPeak{}, false, nil
		}
	}

	p := ResolvedPeak{
		Chromatogram: b.c,
		Start:        start,
		End:          end,
		Mz:           b.opts.Center.Center(b.c.DataPoints(start, end)),
		RT:           b.rts[top],
		Height:       b.intens[top],
		SN:           sn,
	}
	if end > start {
		p.Area = integrate.Trapezoidal(b.rts[start:end+1], b.intens[start:end+1])
	}
	if b.opts.MSMS != nil {
		frag, err := b.fragmentScan(&p)
		if err != nil {
			return ResolvedPeak{}, false, err
		}
		p.FragmentScan = frag
	}
	return p, true, nil
}

// fragmentScan returns the most intense MS2 scan within the MS/MS windows
// of p, 0 if there is none
func (b *peakBuilder) fragmentScan(p *ResolvedPeak) (int, error) {
	w := b.opts.MSMS
	rt := p.RTRange()
	rt.Min -= w.RT
	rt.Max += w.RT
	file := b.c.File()

	best, bestIntens := 0, -1.0
	for _, num := range file.ScanNumbers(2, rt) {
		s, err := file.Scan(num)
		if err != nil {
			return 0, err
		}
		if math.Abs(s.PrecursorMz-p.Mz) > w.Mz {
			continue
		}
		bp, _ := s.BasePeak()
		if bp.Intens > bestIntens {
			best, bestIntens = num, bp.Intens
		}
	}
	return best, nil
}
