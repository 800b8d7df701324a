package mzml

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/524D/mzpeaks/internal/msdata"
)

// Read reads mzML file from an io.Reader
func Read(reader io.Reader) (*MzML, error) {
	var mzML MzML

	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel

	// We are only interested in mzML content, so skip over indexedmzML
	// and everything else
	for {
		t, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if t, ok := t.(xml.StartElement); ok && t.Name.Local == "mzML" {
			if err := d.DecodeElement(&mzML.content, &t); err != nil {
				return nil, err
			}
		}
	}
	if err := mzML.traverseScan(); err != nil {
		return nil, err
	}
	return &mzML, nil
}

// arrayInfo holds the CV terms of a binaryDataArray
type arrayInfo struct {
	zlib      bool // Default: no compression
	bits64    bool // Default: 32 bits
	mz        bool
	intensity bool
}

// binaryDataPars decodes the CV terms in a mzML binarydata section
//
// CV Terms for binary data compression
// MS:1000574 zlib compression
// MS:1000576 No Compression
// MS:1002312-MS:1002314, MS:1002746-MS:1002748 MS-Numpress variants
//
// CV Terms for binary data array types
// MS:1000514 m/z array
// MS:1000515 intensity array
//
// CV Terms for binary-data-type
// MS:1000521 32-bit float
// MS:1000523 64-bit float
func binaryDataPars(b *binaryDataArray) (arrayInfo, error) {
	var info arrayInfo
	for _, cvParam := range b.CvPar {
		switch cvParam.Accession {
		case `MS:1000574`:
			info.zlib = true
		case `MS:1000514`:
			info.mz = true
		case `MS:1000515`:
			info.intensity = true
		case `MS:1000523`:
			info.bits64 = true
		case `MS:1002312`, `MS:1002313`, `MS:1002314`,
			`MS:1002746`, `MS:1002747`, `MS:1002748`:
			return info, fmt.Errorf("%w (CV term %s)", ErrUnsupportedCompression, cvParam.Accession)
		}
	}
	return info, nil
}

// decodeArray decodes the floats of a binary data array
func decodeArray(b *binaryDataArray, info arrayInfo) ([]float64, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b.Binary))
	if err != nil {
		return nil, err
	}
	if info.zlib && len(data) > 0 {
		z, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer z.Close()
		if data, err = io.ReadAll(z); err != nil {
			return nil, err
		}
	}
	if info.bits64 {
		v := make([]float64, len(data)/8)
		for i := range v {
			v[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
		return v, nil
	}
	v := make([]float64, len(data)/4)
	for i := range v {
		v[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return v, nil
}

// NumSpecs returns the number of spectra
func (f *MzML) NumSpecs() int {
	return len(f.content.Run.SpectrumList.Spectrum)
}

func (f *MzML) spectrum(scanIndex int) (*spectrum, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return nil, ErrInvalidScanIndex
	}
	return &f.content.Run.SpectrumList.Spectrum[scanIndex], nil
}

// RetentionTime returns the retention time of a spectrum in minutes,
// -1 if the spectrum has none
func (f *MzML) RetentionTime(scanIndex int) (float64, error) {
	spec, err := f.spectrum(scanIndex)
	if err != nil {
		return 0, err
	}
	for _, scan := range spec.ScanList.Scan {
		for _, cvParam := range scan.CvPar {
			if cvParam.Accession == "MS:1000016" {
				rt, err := strconv.ParseFloat(cvParam.Value, 64)
				// Minutes if marked as such, otherwise assume seconds
				if cvParam.UnitAccession != "UO:0000031" &&
					cvParam.UnitAccession != "MS:1000038" {
					rt /= 60
				}
				return rt, err
			}
		}
	}
	return -1.0, nil
}

// ReadScan reads the data points of a single scan.
// scanIndex is the sequence number of the scan in the mzML file,
// which is not the same as the scan number.
func (f *MzML) ReadScan(scanIndex int) ([]msdata.DataPoint, error) {
	spec, err := f.spectrum(scanIndex)
	if err != nil {
		return nil, err
	}
	var mz, intens []float64
	for i := range spec.BinaryDataArrayList.BinaryDataArray {
		b := &spec.BinaryDataArrayList.BinaryDataArray[i]
		info, err := binaryDataPars(b)
		if err != nil {
			return nil, err
		}
		// We are only interested in mz and intensity
		if !info.mz && !info.intensity {
			continue
		}
		v, err := decodeArray(b, info)
		if err != nil {
			return nil, fmt.Errorf("spectrum %s: %w", spec.ID, err)
		}
		if info.mz {
			mz = v
		} else {
			intens = v
		}
	}
	if len(mz) != len(intens) {
		return nil, fmt.Errorf("spectrum %s: %d m/z values but %d intensities",
			spec.ID, len(mz), len(intens))
	}
	p := make([]msdata.DataPoint, len(mz))
	for i := range mz {
		p[i] = msdata.DataPoint{Mz: mz[i], Intens: intens[i]}
	}
	return p, nil
}

// sortPoints orders points by m/z. Of points with equal m/z, only
// the most intense one is kept.
func sortPoints(p []msdata.DataPoint) []msdata.DataPoint {
	if msdata.PointsSorted(p) {
		return p
	}
	sort.SliceStable(p, func(i, j int) bool { return p[i].Mz < p[j].Mz })
	out := p[:0]
	for _, dp := range p {
		if n := len(out); n > 0 && out[n-1].Mz == dp.Mz {
			if dp.Intens > out[n-1].Intens {
				out[n-1] = dp
			}
			continue
		}
		out = append(out, dp)
	}
	return out
}

// Centroid returns true is the spectrum contains centroid peaks
func (f *MzML) Centroid(scanIndex int) (bool, error) {
	spec, err := f.spectrum(scanIndex)
	if err != nil {
		return false, err
	}
	return hasCV(spec.CvPar, "MS:1000127"), nil
}

func hasCV(params []CVParam, accession string) bool {
	for _, cvParam := range params {
		if cvParam.Accession == accession {
			return true
		}
	}
	return false
}

// MSLevel returns the MS level of a scan
func (f *MzML) MSLevel(scanIndex int) (int, error) {
	spec, err := f.spectrum(scanIndex)
	if err != nil {
		return 0, err
	}
	for _, cvParam := range spec.CvPar {
		if cvParam.Accession == "MS:1000511" {
			return strconv.Atoi(cvParam.Value)
		}
	}
	return 1, nil // If nothing else, guess it's MS1
}

// Polarity returns the scan polarity
func (f *MzML) Polarity(scanIndex int) (msdata.Polarity, error) {
	spec, err := f.spectrum(scanIndex)
	if err != nil {
		return msdata.PolarityUnknown, err
	}
	switch {
	case hasCV(spec.CvPar, "MS:1000130"):
		return msdata.PolarityPositive, nil
	case hasCV(spec.CvPar, "MS:1000129"):
		return msdata.PolarityNegative, nil
	}
	return msdata.PolarityUnknown, nil
}

// Precursor returns m/z and charge of the first selected ion of a
// fragmentation spectrum. Both are 0 when not present.
func (f *MzML) Precursor(scanIndex int) (float64, int, error) {
	spec, err := f.spectrum(scanIndex)
	if err != nil {
		return 0, 0, err
	}
	if len(spec.PrecursorList) == 0 || len(spec.PrecursorList[0].Precursor) == 0 {
		return 0, 0, nil
	}
	ions := spec.PrecursorList[0].Precursor[0].SelectedIonList.SelectedIon
	if len(ions) == 0 {
		return 0, 0, nil
	}
	var (
		mz     float64
		charge int
	)
	for _, cvParam := range ions[0].CvPar {
		switch cvParam.Accession {
		case "MS:1000744": // selected ion m/z
			if mz, err = strconv.ParseFloat(cvParam.Value, 64); err != nil {
				return 0, 0, err
			}
		case "MS:1000041": // charge state
			if charge, err = strconv.Atoi(cvParam.Value); err != nil {
				return 0, 0, err
			}
		}
	}
	return mz, charge, nil
}

// ScanNumber returns the scan number from the "scan=" part of the
// spectrum id. Spectra without one are numbered by index, starting at 1.
func (f *MzML) ScanNumber(scanIndex int) (int, error) {
	id, err := f.ScanID(scanIndex)
	if err != nil {
		return 0, err
	}
	for _, field := range strings.Fields(id) {
		if v, ok := strings.CutPrefix(field, "scan="); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("%w: %q", ErrInvalidScanID, id)
			}
			return n, nil
		}
	}
	return scanIndex + 1, nil
}

// traverseScan traverses all scans and fills the arrays f.index2id and
// f.id2Index to make scans accessible
func (f *MzML) traverseScan() error {
	f.index2id = make([]string, f.NumSpecs())
	f.id2Index = make(map[string]int, f.NumSpecs())

	for i, spec := range f.content.Run.SpectrumList.Spectrum {
		if i != spec.Index {
			return ErrInvalidScanIndex
		}
		f.index2id[i] = spec.ID
		f.id2Index[spec.ID] = i
	}
	return nil
}

// ScanIndex converts a scan identifier (the string used in the mzML file)
// into an index that is used to access the scans
func (f *MzML) ScanIndex(scanID string) (int, error) {
	if index, ok := f.id2Index[scanID]; ok {
		return index, nil
	}
	return 0, ErrInvalidScanID
}

// ScanID converts a scan index (used to access the scan data) into a scan id
// (used in the mzML file)
func (f *MzML) ScanID(scanIndex int) (string, error) {
	if scanIndex >= 0 && scanIndex < f.NumSpecs() {
		return f.index2id[scanIndex], nil
	}
	return "", ErrInvalidScanIndex
}

// Scan converts one spectrum into a scan
func (f *MzML) Scan(scanIndex int) (*msdata.Scan, error) {
	num, err := f.ScanNumber(scanIndex)
	if err != nil {
		return nil, err
	}
	s := msdata.Scan{Number: num, SpectrumType: msdata.Profile}
	if s.RetentionTime, err = f.RetentionTime(scanIndex); err != nil {
		return nil, err
	}
	if s.MSLevel, err = f.MSLevel(scanIndex); err != nil {
		return nil, err
	}
	if s.Polarity, err = f.Polarity(scanIndex); err != nil {
		return nil, err
	}
	if centroid, _ := f.Centroid(scanIndex); centroid {
		s.SpectrumType = msdata.Centroided
	}
	if s.MSLevel >= 2 {
		if s.PrecursorMz, s.PrecursorCharge, err = f.Precursor(scanIndex); err != nil {
			return nil, err
		}
	}
	p, err := f.ReadScan(scanIndex)
	if err != nil {
		return nil, err
	}
	s.Points = sortPoints(p)
	return &s, nil
}

// DataFile converts all spectra into an in-memory data file
func (f *MzML) DataFile(name string) (*msdata.DataFile, error) {
	file := msdata.NewDataFile(name)
	for i := 0; i < f.NumSpecs(); i++ {
		s, err := f.Scan(i)
		if err != nil {
			return nil, err
		}
		if err := file.AddScan(s); err != nil {
			return nil, err
		}
	}
	return file, nil
}
