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

	"github.com/524D/mzpeaks/internal/msdata"
)

// Write writes the (updated) mzML file
func (f *MzML) Write(writer io.Writer) error {
	if _, err := io.WriteString(writer, `<?xml version="1.0" encoding="utf-8"?>
`); err != nil {
		return err
	}
	enc := xml.NewEncoder(writer)
	enc.Indent(` `, `  `)

	content := mzMLContentWrite{
		XMLName:                     f.content.XMLName,
		SchemaLocation:              "http://psi.hupo.org/ms/mzml http://psidev.info/files/ms/mzML/xsd/mzML1.1.0.xsd",
		Version:                     "1.1.0",
		XSI:                         "http://www.w3.org/2001/XMLSchema-instance",
		CvList:                      f.content.CvList,
		FileDescription:             f.content.FileDescription,
		ReferenceableParamGroupList: f.content.ReferenceableParamGroupList,
		SoftwareList:                f.content.SoftwareList,
		InstrumentConfigurationList: f.content.InstrumentConfigurationList,
		DataProcessingList:          f.content.DataProcessingList,
		Run:                         f.content.Run,
	}
	if err := enc.Encode(&content); err != nil {
		return err
	}
	return enc.Flush()
}

// AppendSoftwareInfo adds info to the SoftwareList tag of the mzML file
func (f *MzML) AppendSoftwareInfo(id string, version string) {
	if f.content.SoftwareList == nil {
		f.content.SoftwareList = &softwareList{}
	}
	f.content.SoftwareList.Count++
	f.content.SoftwareList.Software = append(f.content.SoftwareList.Software,
		software{ID: id, Version: version})
}

// AppendDataProcessing adds info to the DataProcessing tag of the mzML file
func (f *MzML) AppendDataProcessing(proc DataProcessing) {
	if f.content.DataProcessingList == nil {
		f.content.DataProcessingList = &dataProcessingList{}
	}
	f.content.DataProcessingList.Count++
	f.content.DataProcessingList.DataProcessing = append(f.content.DataProcessingList.DataProcessing, proc)
}

// UpdateScan sets the mz/intensity info of a scan
func (f *MzML) UpdateScan(scanIndex int, p []msdata.DataPoint,
	updateMz bool, updateIntens bool) error {
	spec, err := f.spectrum(scanIndex)
	if err != nil {
		return err
	}
	// Workaround for msConvert:
	// Insert a dummy peak if there is none, otherwise msConvert generates an error
	if len(p) == 0 {
		p = []msdata.DataPoint{{}}
	}

	spec.DefaultArrayLength = int64(len(p))
	for i := range spec.BinaryDataArrayList.BinaryDataArray {
		b := &spec.BinaryDataArrayList.BinaryDataArray[i]
		info, err := binaryDataPars(b)
		if err != nil {
			return err
		}
		if (info.mz && updateMz) || (info.intensity && updateIntens) {
			b64, err := encodeBinary(p, info)
			if err != nil {
				return err
			}
			b.Binary = b64
			b.ArrayLength = len(p)
			b.EncodedLength = len(b64)
		}
	}
	return nil
}

// UpdateFromDataFile replaces the data points of every spectrum with
// the points of the scan with the same scan number in file
func (f *MzML) UpdateFromDataFile(file msdata.RawDataSource) error {
	for i := 0; i < f.NumSpecs(); i++ {
		num, err := f.ScanNumber(i)
		if err != nil {
			return err
		}
		s, err := file.Scan(num)
		if err != nil {
			return fmt.Errorf("spectrum %d: %w", i, err)
		}
		if err := f.UpdateScan(i, s.Points, true, true); err != nil {
			return err
		}
		spec := &f.content.Run.SpectrumList.Spectrum[i]
		setSpectrumType(spec, s.SpectrumType)
	}
	return nil
}

// setSpectrumType replaces the centroid/profile CV term of a spectrum
func setSpectrumType(spec *spectrum, t msdata.SpectrumType) {
	term := CVParam{Accession: "MS:1000128", Name: "profile spectrum"}
	if t == msdata.Centroided {
		term = CVParam{Accession: "MS:1000127", Name: "centroid spectrum"}
	}
	for i, cvParam := range spec.CvPar {
		if cvParam.Accession == "MS:1000127" || cvParam.Accession == "MS:1000128" {
			term.CvRef = cvParam.CvRef
			spec.CvPar[i] = term
			return
		}
	}
	term.CvRef = "MS"
	spec.CvPar = append(spec.CvPar, term)
}

func encodeBinary(p []msdata.DataPoint, info arrayInfo) (string, error) {
	value := func(dp msdata.DataPoint) float64 { return dp.Intens }
	if info.mz {
		value = func(dp msdata.DataPoint) float64 { return dp.Mz }
	}

	var raw []byte
	if info.bits64 {
		raw = make([]byte, len(p)*8)
		for i, dp := range p {
			binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(value(dp)))
		}
	} else {
		raw = make([]byte, len(p)*4)
		for i, dp := range p {
			binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(float32(value(dp))))
		}
	}
	if info.zlib {
		var b bytes.Buffer
		z := zlib.NewWriter(&b)
		if _, err := z.Write(raw); err != nil {
			return "", err
		}
		// zlib writer must explicitly be closed here, otherwise the result is invalid
		if err := z.Close(); err != nil {
			return "", err
		}
		raw = b.Bytes()
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
