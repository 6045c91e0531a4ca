package io

import (
	"fmt"
	"strconv"
	"strings"
)

// ManifestRow is one flagged scan.
type ManifestRow struct {
	ParticipantID string // "sub-0071"
	Session       string
	Centre        string
	Sagittal      float64
	Coronal       float64
	Transverse    float64
	Path          string
}

// Subject returns the participant id without its "sub-" prefix.
func (r ManifestRow) Subject() string {
	return strings.TrimPrefix(r.ParticipantID, "sub-")
}

var manifestHeader = []string{"participant_id", "session", "centre", "sagittal", "coronal", "transverse", "path"}

// ReadManifest reads an outlier manifest. Only participant_id (or subject)
// and session are required; an unnamed leading index column is ignored.
func ReadManifest(path string) ([]ManifestRow, error) {
	t, err := readTable(path, ',')
	if err != nil {
		return nil, err
	}

	subjectCol := t.column("participant_id")
	bareSubject := false
	if subjectCol < 0 {
		subjectCol = t.column("subject")
		bareSubject = true
	}
	if subjectCol < 0 {
		return nil, fmt.Errorf("%s: missing column %q", path, "participant_id")
	}
	sessionCol, err := t.mustColumn("session", "month")
	if err != nil {
		return nil, err
	}

	centreCol := t.column("centre")
	sagCol, corCol, traCol := t.column("sagittal"), t.column("coronal"), t.column("transverse")
	pathCol := t.column("path")

	rows := make([]ManifestRow, 0, len(t.rows))
	for i, record := range t.rows {
		r := ManifestRow{
			ParticipantID: field(record, subjectCol),
			Session:       field(record, sessionCol),
			Centre:        field(record, centreCol),
			Path:          field(record, pathCol),
		}
		if bareSubject {
			r.ParticipantID = "sub-" + r.ParticipantID
		}
		if r.ParticipantID == "" || r.ParticipantID == "sub-" {
			return nil, fmt.Errorf("%s: line %d has no participant id", path, i+2)
		}
		if r.Sagittal, err = parseFloatField(record, sagCol); err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", path, i+2, err)
		}
		if r.Coronal, err = parseFloatField(record, corCol); err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", path, i+2, err)
		}
		if r.Transverse, err = parseFloatField(record, traCol); err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", path, i+2, err)
		}
		rows = append(rows, r)
	}

	return rows, nil
}

// WriteManifest writes rows with a header line.
func WriteManifest(path string, rows []ManifestRow) error {
	records := make([][]string, len(rows))
	for i, r := range rows {
		records[i] = []string{
			r.ParticipantID, r.Session, r.Centre,
			formatFloat(r.Sagittal), formatFloat(r.Coronal), formatFloat(r.Transverse),
			r.Path,
		}
	}

	return writeTable(path, manifestHeader, records)
}

// LagRow is one line of the lag report.
type LagRow struct {
	Subject string
	Session string
	Centre  string
	Machine string
	Path    string
	Lag     float64 // TR units
}

var lagHeader = []string{"subject", "session", "centre", "machine", "path", "lag"}

// WriteLagReport writes the lag report.
func WriteLagReport(path string, rows []LagRow) error {
	records := make([][]string, len(rows))
	for i, r := range rows {
		records[i] = []string{r.Subject, r.Session, r.Centre, r.Machine, r.Path, formatFloat(r.Lag)}
	}

	return writeTable(path, lagHeader, records)
}

// ReadLagReport reads a report written by WriteLagReport.
func ReadLagReport(path string) ([]LagRow, error) {
	t, err := readTable(path, ',')
	if err != nil {
		return nil, err
	}

	cols := make([]int, len(lagHeader))
	for i, name := range lagHeader {
		if cols[i], err = t.mustColumn(name); err != nil {
			return nil, err
		}
	}

	rows := make([]LagRow, 0, len(t.rows))
	for i, record := range t.rows {
		r := LagRow{
			Subject: field(record, cols[0]),
			Session: field(record, cols[1]),
			Centre:  field(record, cols[2]),
			Machine: field(record, cols[3]),
			Path:    field(record, cols[4]),
		}
		if r.Lag, err = parseFloatField(record, cols[5]); err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", path, i+2, err)
		}
		rows = append(rows, r)
	}

	return rows, nil
}

// TRRow is one scan whose repetition time had to be inferred.
type TRRow struct {
	Subject string
	Session string
	Centre  string
	Slices  int
	Path    string
	TR      float64 // seconds; 0 when nothing could be inferred
}

var trHeader = []string{"subject", "session", "centre", "slices", "path", "inferred_tr"}

// WriteTRReport writes the inferred repetition times.
func WriteTRReport(path string, rows []TRRow) error {
	records := make([][]string, len(rows))
	for i, r := range rows {
		records[i] = []string{r.Subject, r.Session, r.Centre, strconv.Itoa(r.Slices), r.Path, formatFloat(r.TR)}
	}

	return writeTable(path, trHeader, records)
}

// ReadTRReport reads a report written by WriteTRReport.
func ReadTRReport(path string) ([]TRRow, error) {
	t, err := readTable(path, ',')
	if err != nil {
		return nil, err
	}

	cols := make([]int, len(trHeader))
	for i, name := range trHeader {
		if cols[i], err = t.mustColumn(name); err != nil {
			return nil, err
		}
	}

	rows := make([]TRRow, 0, len(t.rows))
	for i, record := range t.rows {
		r := TRRow{
			Subject: field(record, cols[0]),
			Session: field(record, cols[1]),
			Centre:  field(record, cols[2]),
			Path:    field(record, cols[4]),
		}
		if r.Slices, err = strconv.Atoi(field(record, cols[3])); err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", path, i+2, err)
		}
		if r.TR, err = parseFloatField(record, cols[5]); err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", path, i+2, err)
		}
		rows = append(rows, r)
	}

	return rows, nil
}
