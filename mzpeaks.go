// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/524D/mzpeaks/internal/batch"
	"github.com/524D/mzpeaks/internal/config"
	"github.com/524D/mzpeaks/internal/featurelist"
	"github.com/524D/mzpeaks/internal/massdetect"
	"github.com/524D/mzpeaks/internal/msdata"
	"github.com/524D/mzpeaks/internal/mzml"
	"github.com/524D/mzpeaks/internal/scanfilter"
)

// Program name and version, appended to software list in mzML output
const progName = "mzPeaks"

var progVersion = `Unknown`

const (
	infoDefault = iota
	infoSilent
	infoVerbose
)

// ErrRangeSpec means a min:max range could not be parsed
var ErrRangeSpec = errors.New("invalid range specified")

// Data processing step added to smoothed mzML files
var smoothProcessing = mzml.DataProcessing{
	ID: progName + "_smoothing",
	ProcessingMethod: []mzml.ProcessingMethod{
		{
			SoftwareRef: progName,
			CvPar: []mzml.CVParam{
				{
					CvRef:     `MS`,
					Accession: `MS:1000592`,
					Name:      `smoothing`,
				},
			},
		},
	},
}

// Global command line parameters
type params struct {
	configFile string
	verbose    bool
	quiet      bool
	debug      string // Chromatogram index range to dump
	verbosity  int
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	par := &params{}
	root := &cobra.Command{
		Use:   "mzpeaks",
		Short: "Detect chromatographic peaks in mzML files",
		Long: `mzpeaks detects masses in the scans of an mzML file, builds
extracted ion chromatograms from them and resolves these into
chromatographic peaks.`,
		Version:       progVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if par.verbose && par.quiet {
				return errors.New("--verbose and --quiet can't be combined")
			}
			switch {
			case par.verbose:
				par.verbosity = infoVerbose
			case par.quiet:
				par.verbosity = infoSilent
			}
			if _, _, err := parseIntRange(par.debug, 0, math.MaxInt32); err != nil {
				return fmt.Errorf("--debug %q: %w", par.debug, err)
			}
			return nil
		},
	}
	root.SetVersionTemplate(progName + " version {{.Version}}\n")
	root.PersistentFlags().StringVar(&par.configFile, "config", "",
		"YAML parameter `file` (default: built-in parameters)")
	root.PersistentFlags().BoolVar(&par.verbose, "verbose", false,
		"print more verbose progress information")
	root.PersistentFlags().BoolVar(&par.quiet, "quiet", false,
		"don't print any output except for errors")
	root.PersistentFlags().StringVar(&par.debug, "debug", "",
		"print debug output for given chromatogram `range` e.g. 3:6")

	root.AddCommand(newDetectCmd(par), newSmoothCmd(par), newResolveCmd(par))
	return root
}

// loadConfig reads the parameter file, or returns the defaults if
// there is none
func (par *params) loadConfig() (config.Config, error) {
	if par.configFile == "" {
		return config.Default(), nil
	}
	return config.Load(par.configFile)
}

// stage prints the start of a processing step in verbose mode. The
// returned function prints the time it took.
func (par *params) stage(format string, a ...interface{}) func() {
	if par.verbosity != infoVerbose {
		return func() {}
	}
	fmt.Fprintf(os.Stderr, format+": ", a...)
	t := time.Now()
	return func() {
		fmt.Fprintf(os.Stderr, "%s\n", time.Since(t))
	}
}

// progressLine returns a batch progress callback that keeps one status
// line on w, rewritten when the percentage changes
func progressLine(w io.Writer, start time.Time) func(done, total int) {
	last := -1
	return func(done, total int) {
		pct := 100 * done / total
		if pct == last && done != total {
			return
		}
		last = pct
		fmt.Fprintf(w, "\rResolving chromatograms: %d/%d", done, total)
		if done == total {
			fmt.Fprintf(w, ": %s\n", time.Since(start))
		}
	}
}

// info prints a line unless in quiet mode
func (par *params) info(format string, a ...interface{}) {
	if par.verbosity != infoSilent {
		fmt.Fprintf(os.Stderr, format+"\n", a...)
	}
}

// readMzML reads an mzML file and converts it to a data file
func (par *params) readMzML(filename string) (*mzml.MzML, *msdata.DataFile, error) {
	done := par.stage("Reading MS data from %s", filename)
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	m, err := mzml.Read(bufio.NewReader(f))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", filename, err)
	}
	file, err := m.DataFile(filepath.Base(filename))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", filename, err)
	}
	done()
	return m, file, nil
}

// outputName derives an output filename from the input filename
func outputName(filename, suffix string) string {
	ext := filepath.Ext(filename)
	return filename[:len(filename)-len(ext)] + suffix
}

func newDetectCmd(par *params) *cobra.Command {
	var (
		method string
		noise  float64
	)
	cmd := &cobra.Command{
		Use:   "detect <mzMLfile>",
		Short: "Run mass detection and print the number of masses per MS level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := par.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("method") {
				cfg.MassDetection.Method = method
			}
			if cmd.Flags().Changed("noise") {
				cfg.MassDetection.NoiseLevel = noise
			}
			d, err := cfg.MassDetection.Detector()
			if err != nil {
				return err
			}
			_, file, err := par.readMzML(args[0])
			if err != nil {
				return err
			}
			done := par.stage("Detecting masses")
			massdetect.AddMassLists(file, d, cfg.MassDetection.MassList, cfg.MassDetection.MSLevel)
			done()
			printDetectCounts(cmd, file, cfg.MassDetection.MassList)
			return nil
		},
	}
	cmd.Flags().StringVar(&method, "method", "", "mass detector (centroid, local_maxima, exact_mass)")
	cmd.Flags().Float64Var(&noise, "noise", 0, "noise level of the mass detector")
	return cmd
}

func printDetectCounts(cmd *cobra.Command, file *msdata.DataFile, massList string) {
	type count struct {
		scans, points, masses int
	}
	counts := make(map[int]*count)
	for _, s := range file.Scans() {
		c, ok := counts[s.MSLevel]
		if !ok {
			c = &count{}
			counts[s.MSLevel] = c
		}
		c.scans++
		c.points += len(s.Points)
		if ml, ok := s.MassList(massList); ok {
			c.masses += len(ml.Points)
		}
	}
	levels := make([]int, 0, len(counts))
	for l := range counts {
		levels = append(levels, l)
	}
	sort.Ints(levels)
	for _, l := range levels {
		c := counts[l]
		fmt.Fprintf(cmd.OutOrStdout(), "MS%d scans:%d points:%d masses:%d\n", l, c.scans, c.points, c.masses)
	}
}

func newSmoothCmd(par *params) *cobra.Command {
	var (
		output string
		method string
	)
	cmd := &cobra.Command{
		Use:   "smooth <mzMLfile>",
		Short: "Apply the scan filter and write the result as mzML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := par.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("filter") {
				cfg.ScanFilter.Method = method
			}
			f, err := cfg.ScanFilter.Filter()
			if err != nil {
				return err
			}
			if f == nil {
				return errors.New("no scan filter selected, use --filter or scan_filter.method")
			}
			if output == "" {
				output = outputName(args[0], "-smoothed.mzML")
			}

			m, file, err := par.readMzML(args[0])
			if err != nil {
				return err
			}
			done := par.stage("Filtering scans")
			filtered, err := scanfilter.FilterFile(file, f, cfg.ScanFilter.MSLevel)
			if err != nil {
				return err
			}
			if err := m.UpdateFromDataFile(filtered); err != nil {
				return err
			}
			done()

			proc := smoothProcessing
			proc.ProcessingMethod = []mzml.ProcessingMethod{smoothProcessing.ProcessingMethod[0]}
			proc.ProcessingMethod[0].UserPar = []mzml.UserParam{
				{Name: "scan filter", Value: cfg.ScanFilter.Method, Type: "xsd:string"},
			}
			m.AppendSoftwareInfo(progName, progVersion)
			m.AppendDataProcessing(proc)

			done = par.stage("Writing MS data to %s", output)
			if err := writeMzML(m, output); err != nil {
				return err
			}
			done()
			par.info("Smoothed %d scans into %s", filtered.NumScans(), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "`filename` of smoothed mzML (default <mzMLfile>-smoothed.mzML)")
	cmd.Flags().StringVar(&method, "filter", "", "scan filter (mean, savitzky_golay, crop)")
	return cmd
}

func writeMzML(m *mzml.MzML, filename string) (err error) {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	w := bufio.NewWriter(f)
	if err := m.Write(w); err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}
	return w.Flush()
}

func newResolveCmd(par *params) *cobra.Command {
	var (
		dbFile   string
		method   string
		workers  int
		rtWindow string
	)
	cmd := &cobra.Command{
		Use:   "resolve <mzMLfile>",
		Short: "Run the complete peak detection pipeline and store the features",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := par.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("resolver") {
				cfg.Resolver.Method = method
			}
			if cmd.Flags().Changed("workers") {
				cfg.Batch.Workers = workers
			}
			if rtWindow != "" {
				rtMin, rtMax, err := parseFloat64Range(rtWindow, 0, math.MaxFloat64)
				if err != nil {
					return fmt.Errorf("--rt %q: %w", rtWindow, err)
				}
				cfg.Chromatogram.RTRange = config.Range{Min: rtMin, Max: rtMax}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if dbFile == "" {
				dbFile = outputName(args[0], "-features.db")
			}
			return par.resolve(cmd.Context(), cmd, cfg, args[0], dbFile)
		},
	}
	cmd.Flags().StringVar(&dbFile, "db", "", "SQLite `filename` for the feature list (default <mzMLfile>-features.db)")
	cmd.Flags().StringVar(&method, "resolver", "", fmt.Sprintf("peak resolver %v", config.ResolverNames()))
	cmd.Flags().IntVar(&workers, "workers", 0, "number of parallel resolvers, 0 is the number of CPUs")
	cmd.Flags().StringVar(&rtWindow, "rt", "", "retention time `range` in minutes, e.g. 5:30")
	return cmd
}

func (par *params) resolve(ctx context.Context, cmd *cobra.Command, cfg config.Config,
	filename, dbFile string) error {

	_, file, err := par.readMzML(filename)
	if err != nil {
		return err
	}

	if f, err := cfg.ScanFilter.Filter(); err != nil {
		return err
	} else if f != nil {
		done := par.stage("Filtering scans")
		if file, err = scanfilter.FilterFile(file, f, cfg.ScanFilter.MSLevel); err != nil {
			return err
		}
		done()
	}

	d, err := cfg.MassDetection.Detector()
	if err != nil {
		return err
	}
	done := par.stage("Detecting masses")
	massdetect.AddMassLists(file, d, cfg.MassDetection.MassList, cfg.MassDetection.MSLevel)
	done()

	done = par.stage("Building chromatograms")
	chroms, err := cfg.Chromatogram.Builder(cfg.MassDetection.MassList).Build(file)
	if err != nil {
		return err
	}
	done()

	res, err := cfg.NewResolver()
	if err != nil {
		return err
	}

	store, err := featurelist.Open(dbFile)
	if err != nil {
		return err
	}
	defer store.Close()
	w, err := store.BeginRun(file.Name(), cfg.Resolver.Method)
	if err != nil {
		return err
	}

	// A range outside the chromatograms dumps nothing
	debugMin, debugMax := -1, -1
	if par.debug != "" {
		if lo, hi, err := parseIntRange(par.debug, 0, len(chroms)-1); err == nil {
			debugMin, debugMax = lo, hi
		}
	}
	runner := batch.Runner{Resolver: res, Workers: cfg.Batch.Workers}
	if par.verbosity == infoVerbose {
		runner.Progress = progressLine(os.Stderr, time.Now())
	}
	sum, err := runner.Run(ctx, chroms, func(r batch.Result) error {
		if r.Index >= debugMin && r.Index <= debugMax {
			debugDumpChromatogram(cmd.OutOrStdout(), r)
		}
		if r.Err != nil {
			return nil
		}
		return w.Add(r.Index, r.Peaks)
	})
	switch {
	case errors.Is(err, batch.ErrNoneSucceeded):
		// Keep the empty run as a record of the attempt
		log.Printf("%s: %v", filename, err)
	case err != nil:
		w.Rollback()
		return err
	}
	if err := w.Commit(); err != nil {
		return err
	}

	par.info("Chromatograms:%d resolved:%d failed:%d features:%d run:%s",
		sum.Total, sum.Succeeded, len(sum.Errors), w.Count(), w.Run().ID)
	return nil
}

var (
	intRangeRe   = regexp.MustCompile(`^\s*(\-?\d*):(\-?\d*)\s*$`)
	floatRangeRe = regexp.MustCompile(`^\s*([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?):([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?)\s*$`)
)

// Parse string like "-12:6" into 2 values, -12 and 6
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12:"), the default is assigned.
// A single number selects just that value.
func parseIntRange(r string, min int, max int) (int, int, error) {
	if r == "" {
		return min, max, nil
	}
	if _, err := strconv.Atoi(strings.TrimSpace(r)); err == nil {
		r = r + ":" + r
	}
	m := intRangeRe.FindStringSubmatch(r)
	if m == nil {
		return min, max, ErrRangeSpec
	}
	minOut := min
	maxOut := max
	if m[1] != "" {
		minOut, _ = strconv.Atoi(m[1])
		if minOut < min {
			minOut = min
		}
	}
	if m[2] != "" {
		maxOut, _ = strconv.Atoi(m[2])
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

// Parse string like "-12.01e1:+6" into 2 values, -120.1 and 6.0
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12.01e1:"), the default is assigned
func parseFloat64Range(r string, min float64, max float64) (
	float64, float64, error) {
	if r == "" {
		return min, max, nil
	}
	m := floatRangeRe.FindStringSubmatch(r)
	if m == nil {
		return min, max, ErrRangeSpec
	}
	minOut := min
	maxOut := max
	if m[1] != "" {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return min, max, ErrRangeSpec
		}
		minOut = math.Max(v, min)
	}
	if m[3] != "" {
		v, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return min, max, ErrRangeSpec
		}
		maxOut = math.Min(v, max)
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}
