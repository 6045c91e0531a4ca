package slicetiming

import (
	"fmt"
	"sort"

	"github.com/KyungWonPark/MementoQC/internal/bids"
	qcio "github.com/KyungWonPark/MementoQC/internal/io"
	"github.com/KyungWonPark/MementoQC/internal/nii"
)

// Acquisition is the metadata a missing TR is inferred from.
type Acquisition struct {
	Subject string
	Session string
	Centre  string
	Slices  int
	Path    string
	TR      float64 // seconds; 0 when unknown
}

func trKey(a Acquisition) string {
	return fmt.Sprintf("%s/%d", a.Centre, a.Slices)
}

// InferTRs returns one row per acquisition without a TR, holding the median
// known TR of acquisitions from the same centre with the same slice count.
// The TR stays 0 when no such acquisition exists.
func InferTRs(acqs []Acquisition) []qcio.TRRow {
	known := make(map[string][]float64)
	for _, a := range acqs {
		if a.TR > 0 {
			known[trKey(a)] = append(known[trKey(a)], a.TR)
		}
	}
	for _, trs := range known {
		sort.Float64s(trs)
	}

	var rows []qcio.TRRow
	for _, a := range acqs {
		if a.TR > 0 {
			continue
		}
		row := qcio.TRRow{
			Subject: a.Subject,
			Session: a.Session,
			Centre:  a.Centre,
			Slices:  a.Slices,
			Path:    a.Path,
		}
		if trs := known[trKey(a)]; len(trs) > 0 {
			row.TR = median(trs)
		}
		rows = append(rows, row)
	}

	return rows
}

// CompleteTR writes tr into pixdim[4] of the scan and into the
// RepetitionTime field of its sidecar. The header is written first so a
// failure leaves the sidecar untouched.
func CompleteTR(scanPath, sidecarPath string, tr float64, backup bool) error {
	if tr <= 0 {
		return fmt.Errorf("%s: no repetition time to write", scanPath)
	}

	sidecar, err := bids.LoadSidecar(sidecarPath)
	if err != nil {
		return err
	}
	if err := nii.SetTR(scanPath, tr); err != nil {
		return err
	}

	sidecar.Set("RepetitionTime", tr)

	return sidecar.Save(backup)
}
