package qc

import (
	"math"
	"testing"

	"github.com/gonum/matrix/mat64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KyungWonPark/MementoQC/internal/destripe"
	qcio "github.com/KyungWonPark/MementoQC/internal/io"
	"github.com/KyungWonPark/MementoQC/internal/volume"
)

func TestReflect(t *testing.T) {
	assert.Equal(t, 0, reflect(-1, 5))
	assert.Equal(t, 1, reflect(-2, 5))
	assert.Equal(t, 4, reflect(5, 5))
	assert.Equal(t, 3, reflect(6, 5))
	assert.Equal(t, 0, reflect(1, 1))
	assert.Equal(t, 0, reflect(-1, 1))
}

func TestConvolveColumnRamp(t *testing.T) {
	rows, cols := 4, 6
	img := mat64.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			img.Set(i, j, float64(j))
		}
	}

	got := Convolve2D(img, SobelX)
	for i := 0; i < rows; i++ {
		assert.Equal(t, 4.0, got.At(i, 0))
		for j := 1; j < cols-1; j++ {
			assert.Equal(t, 8.0, got.At(i, j))
		}
		assert.Equal(t, 4.0, got.At(i, cols-1))
	}
}

func TestConvolveRowRampHasNoXGradient(t *testing.T) {
	img := mat64.NewDense(5, 5, nil)
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			img.Set(i, j, float64(i*i))
		}
	}

	got := Convolve2D(img, SobelX)
	assert.True(t, mat64.Equal(mat64.NewDense(5, 5, nil), got))
	assert.Zero(t, GradientScore(img))
}

func TestGradientScoreConstantPlane(t *testing.T) {
	plane := mat64.NewDense(3, 4, []float64{7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7})
	assert.Zero(t, GradientScore(plane))
}

func TestGradientScoreIsScaleFree(t *testing.T) {
	plane := mat64.NewDense(3, 3, []float64{1, 4, 2, 8, 5, 7, 3, 9, 6})
	scaled := mat64.NewDense(3, 3, nil)
	scaled.Scale(250, plane)

	assert.InDelta(t, GradientScore(plane), GradientScore(scaled), 1e-9)
}

// blob is a smooth volume whose intensity varies along every axis.
func blob(x, y, z, t int) *volume.Volume {
	v, _ := volume.New(x, y, z, t)
	for tt := 0; tt < t; tt++ {
		for zz := 0; zz < z; zz++ {
			for yy := 0; yy < y; yy++ {
				for xx := 0; xx < x; xx++ {
					dx := float64(xx) - float64(x)/2
					dy := float64(yy) - float64(y)/2
					dz := float64(zz) - float64(z)/2
					v.Set(xx, yy, zz, tt, 1000*math.Exp(-(dx*dx+dy*dy+dz*dz)/40)+float64(tt))
				}
			}
		}
	}
	return v
}

func TestMiddlePlanesShapes(t *testing.T) {
	sag, cor, tra := MiddlePlanes(blob(6, 5, 4, 3))
	r, c := sag.Dims()
	assert.Equal(t, [2]int{5, 4}, [2]int{r, c})
	r, c = cor.Dims()
	assert.Equal(t, [2]int{6, 4}, [2]int{r, c})
	r, c = tra.Dims()
	assert.Equal(t, [2]int{6, 5}, [2]int{r, c})
}

func TestMiddleGradientsRejectsBadVolume(t *testing.T) {
	_, err := MiddleGradients(&volume.Volume{X: 2, Y: 2, Z: 2, T: 1, Data: make([]float64, 3)})
	assert.ErrorIs(t, err, volume.ErrShape)
}

func TestAssessFillsScores(t *testing.T) {
	row, err := Assess(qcio.ManifestRow{ParticipantID: "sub-0001", Session: "M000"}, blob(8, 8, 6, 12))
	require.NoError(t, err)
	assert.Equal(t, "sub-0001", row.ParticipantID)
	assert.Greater(t, row.Sagittal, 0.0)
	assert.Greater(t, row.Coronal, 0.0)
	assert.Greater(t, row.Transverse, 0.0)
}

func TestDestripeRestoresSagittalGradient(t *testing.T) {
	clean := blob(8, 8, 6, 12)
	cleanScores, err := MiddleGradients(clean)
	require.NoError(t, err)

	// destripe is a permutation; its inverse recreates the striped input
	plan, err := destripe.NewPlan(clean.Z, clean.T)
	require.NoError(t, err)
	striped := clean.Clone()
	for _, seg := range plan.Segments {
		for k := 0; k < seg.Len(); k++ {
			copy(striped.Plane(seg.SrcStart+k, seg.Channel), clean.Plane(seg.Slice, seg.TimeStart+k))
		}
	}

	repaired, err := destripe.Destripe(striped)
	require.NoError(t, err)
	assert.Equal(t, clean.Data, repaired.Data)

	repairedScores, err := MiddleGradients(repaired)
	require.NoError(t, err)
	assert.InDelta(t, cleanScores.Sagittal, repairedScores.Sagittal, 1e-9)
}

func TestRankAndFlag(t *testing.T) {
	rows := []qcio.ManifestRow{
		{ParticipantID: "sub-a", Sagittal: 2400},
		{ParticipantID: "sub-b", Sagittal: 640},
		{ParticipantID: "sub-c", Sagittal: 999.5},
		{ParticipantID: "sub-d", Sagittal: 1000},
	}

	assert.Equal(t, []int{1, 2, 3, 0}, Rank(rows))

	flagged := Flag(rows, DefaultThreshold)
	require.Len(t, flagged, 2)
	assert.Equal(t, "sub-b", flagged[0].ParticipantID)
	assert.Equal(t, "sub-c", flagged[1].ParticipantID)

	assert.Empty(t, Flag(rows, 0))
	assert.Equal(t, "sub-a", rows[0].ParticipantID)
}
