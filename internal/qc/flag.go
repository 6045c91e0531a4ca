package qc

import (
	"github.com/mkmik/argsort"

	qcio "github.com/KyungWonPark/MementoQC/internal/io"
	"github.com/KyungWonPark/MementoQC/internal/volume"
)

// DefaultThreshold is the sagittal score under which a scan is flagged.
const DefaultThreshold = 1000

// Assess fills the gradient scores of row from vol.
func Assess(row qcio.ManifestRow, vol *volume.Volume) (qcio.ManifestRow, error) {
	scores, err := MiddleGradients(vol)
	if err != nil {
		return row, err
	}

	row.Sagittal = scores.Sagittal
	row.Coronal = scores.Coronal
	row.Transverse = scores.Transverse

	return row, nil
}

// Rank returns the indices of rows ordered by ascending sagittal score.
func Rank(rows []qcio.ManifestRow) []int {
	return argsort.SortSlice(rows, func(i, j int) bool {
		return rows[i].Sagittal < rows[j].Sagittal
	})
}

// Flag returns the rows whose sagittal score is below threshold, lowest
// score first.
func Flag(rows []qcio.ManifestRow, threshold float64) []qcio.ManifestRow {
	var flagged []qcio.ManifestRow
	for _, i := range Rank(rows) {
		if rows[i].Sagittal < threshold {
			flagged = append(flagged, rows[i])
		}
	}
	return flagged
}
