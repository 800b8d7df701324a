// Package mzml reads mzML files into msdata and writes them back with
// updated peak arrays.
package mzml

import (
	"encoding/xml"
	"errors"
)

// MzML wraps the contents of the mzML file
type MzML struct {
	content  mzMLContent
	index2id []string
	id2Index map[string]int
}

// The mzML content that we read. Only the parts needed to build scans are
// parsed, everything else is kept as raw XML so that it can be written
// back unchanged.
type mzMLContent struct {
	XMLName         xml.Name `xml:"http://psi.hupo.org/ms/mzml mzML"`
	CvList          rawList  `xml:"cvList"`
	FileDescription struct {
		XML string `xml:",innerxml"`
	} `xml:"fileDescription"`
	ReferenceableParamGroupList *rawList            `xml:"referenceableParamGroupList"`
	SoftwareList                *softwareList       `xml:"softwareList"`
	InstrumentConfigurationList *rawList            `xml:"instrumentConfigurationList"`
	DataProcessingList          *dataProcessingList `xml:"dataProcessingList"`
	Run                         run                 `xml:"run"`
}

// mzMLContentWrite adds the namespace attributes, which encoding/xml
// can't write from mzMLContent
type mzMLContentWrite struct {
	XMLName         xml.Name `xml:"http://psi.hupo.org/ms/mzml mzML"`
	SchemaLocation  string   `xml:"xsi:schemaLocation,attr"`
	Version         string   `xml:"version,attr"`
	XSI             string   `xml:"xmlns:xsi,attr"`
	CvList          rawList  `xml:"cvList"`
	FileDescription struct {
		XML string `xml:",innerxml"`
	} `xml:"fileDescription"`
	ReferenceableParamGroupList *rawList            `xml:"referenceableParamGroupList,omitempty"`
	SoftwareList                *softwareList       `xml:"softwareList"`
	InstrumentConfigurationList *rawList            `xml:"instrumentConfigurationList"`
	DataProcessingList          *dataProcessingList `xml:"dataProcessingList"`
	Run                         run                 `xml:"run"`
}

// rawList is a counted list that is passed through unparsed
type rawList struct {
	Count int    `xml:"count,attr,omitempty"`
	XML   []byte `xml:",innerxml"`
}

type softwareList struct {
	Count    int        `xml:"count,attr,omitempty"`
	Software []software `xml:"software"`
}

type software struct {
	ID      string    `xml:"id,attr,omitempty"`
	Version string    `xml:"version,attr,omitempty"`
	CvPar   []CVParam `xml:"cvParam,omitempty"`
}

type dataProcessingList struct {
	Count          int              `xml:"count,attr,omitempty"`
	DataProcessing []DataProcessing `xml:"dataProcessing,omitempty"`
}

// DataProcessing describes one processing step applied to the data
type DataProcessing struct {
	ID               string             `xml:"id,attr,omitempty"`
	ProcessingMethod []ProcessingMethod `xml:"processingMethod"`
}

// ProcessingMethod is a single method of a DataProcessing step
type ProcessingMethod struct {
	Order       int         `xml:"order,attr"`
	SoftwareRef string      `xml:"softwareRef,attr,omitempty"`
	CvPar       []CVParam   `xml:"cvParam,omitempty"`
	UserPar     []UserParam `xml:"userParam,omitempty"`
}

type run struct {
	ID                                string           `xml:"id,attr,omitempty"`
	DefaultInstrumentConfigurationRef string           `xml:"defaultInstrumentConfigurationRef,attr,omitempty"`
	StartTimeStamp                    string           `xml:"startTimeStamp,attr,omitempty"`
	DefaultSourceFileRef              string           `xml:"defaultSourceFileRef,attr,omitempty"`
	SpectrumList                      spectrumList     `xml:"spectrumList,omitempty"`
	ChromatogramList                  chromatogramList `xml:"chromatogramList,omitempty"`
}

type spectrumList struct {
	Count                    int        `xml:"count,attr,omitempty"`
	DefaultDataProcessingRef string     `xml:"defaultDataProcessingRef,attr,omitempty"`
	Spectrum                 []spectrum `xml:"spectrum,omitempty"`
}

type chromatogramList struct {
	Count                    int    `xml:"count,attr,omitempty"`
	DefaultDataProcessingRef string `xml:"defaultDataProcessingRef,attr,omitempty"`
	XML                      []byte `xml:",innerxml"`
}

type spectrum struct {
	Index              int       `xml:"index,attr"`
	ID                 string    `xml:"id,attr"`
	DefaultArrayLength int64     `xml:"defaultArrayLength,attr"`
	CvPar              []CVParam `xml:"cvParam,omitempty"`
	ScanList           scanList  `xml:"scanList"`
	// A slice, so that no empty precursorList is written for MS1 spectra
	PrecursorList       []precursorList     `xml:"precursorList,omitempty"`
	BinaryDataArrayList binaryDataArrayList `xml:"binaryDataArrayList"`
}

type binaryDataArrayList struct {
	Count           int               `xml:"count,attr,omitempty"`
	BinaryDataArray []binaryDataArray `xml:"binaryDataArray"`
}

type binaryDataArray struct {
	EncodedLength int       `xml:"encodedLength,attr,omitempty"`
	ArrayLength   int       `xml:"arrayLength,attr,omitempty"`
	CvPar         []CVParam `xml:"cvParam,omitempty"`
	Binary        string    `xml:"binary"`
}

type scanList struct {
	Count int       `xml:"count,attr,omitempty"`
	CvPar []CVParam `xml:"cvParam,omitempty"`
	Scan  []scan    `xml:"scan"`
}

type scan struct {
	InstrConfRef   string      `xml:"instrumentConfigurationRef,attr,omitempty"`
	CvPar          []CVParam   `xml:"cvParam,omitempty"`
	UserPar        []UserParam `xml:"userParam,omitempty"`
	ScanWindowList struct {
		Count int    `xml:"count,attr,omitempty"`
		XML   string `xml:",innerxml"`
	} `xml:"scanWindowList"`
}

// UserParam is an mzML user parameter
type UserParam struct {
	Name  string `xml:"name,attr,omitempty"`
	Value string `xml:"value,attr,omitempty"`
	Type  string `xml:"type,attr,omitempty"`
}

type precursorList struct {
	Count     int         `xml:"count,attr,omitempty"`
	Precursor []precursor `xml:"precursor"`
}

type precursor struct {
	SpectrumRef     string `xml:"spectrumRef,attr,omitempty"`
	IsolationWindow struct {
		CvPar []CVParam `xml:"cvParam,omitempty"`
	} `xml:"isolationWindow,omitempty"`
	SelectedIonList struct {
		Count       int `xml:"count,attr,omitempty"`
		SelectedIon []struct {
			CvPar []CVParam `xml:"cvParam,omitempty"`
		} `xml:"selectedIon"`
	} `xml:"selectedIonList"`
	Activation struct {
		CvPar []CVParam `xml:"cvParam,omitempty"`
	} `xml:"activation"`
}

// CVParam contains values and attributes of a mzML Controlled Vocabulary term
// (http://www.peptideatlas.org/tmp/mzML1.1.0.html)
type CVParam struct {
	CvRef         string `xml:"cvRef,attr,omitempty"`
	Accession     string `xml:"accession,attr,omitempty"`
	Name          string `xml:"name,attr,omitempty"`
	Value         string `xml:"value,attr,omitempty"`
	UnitCvRef     string `xml:"unitCvRef,attr,omitempty"`
	UnitAccession string `xml:"unitAccession,attr,omitempty"`
	UnitName      string `xml:"unitName,attr,omitempty"`
}

var (
	// ErrInvalidScanID means an invalid scan id is supplied
	ErrInvalidScanID = errors.New("MzML: invalid scan id")
	// ErrInvalidScanIndex means an invalid scan index is supplied
	ErrInvalidScanIndex = errors.New("MzML: invalid scan index")
	// ErrUnsupportedCompression means the binary data uses a compression
	// other than zlib
	ErrUnsupportedCompression = errors.New("MzML: unsupported binary compression")
)
