// Package qc scores scans for the slice permutation artefact. Permuted
// scans show stripes along x, so their x gradient is unusually weak.
package qc

import (
	"math"

	"github.com/gonum/matrix/mat64"
	"gonum.org/v1/gonum/stat"

	"github.com/KyungWonPark/MementoQC/internal/volume"
)

// SobelX is the horizontal Sobel kernel.
var SobelX = mat64.NewDense(3, 3, []float64{
	1, 0, -1,
	2, 0, -2,
	1, 0, -1,
})

// reflect maps an out-of-range index back inside [0, n) by mirroring about
// the edge, repeating the edge sample.
func reflect(i, n int) int {
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}

// Convolve2D returns the 2D convolution of img with an odd-sized kernel,
// cropped to the size of img, with symmetric boundary extension.
func Convolve2D(img, kernel *mat64.Dense) *mat64.Dense {
	rows, cols := img.Dims()
	kr, kc := kernel.Dims()
	cr, cc := kr/2, kc/2

	out := mat64.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			var acc float64
			for a := 0; a < kr; a++ {
				si := reflect(i-a+cr, rows)
				for b := 0; b < kc; b++ {
					acc += kernel.At(a, b) * img.At(si, reflect(j-b+cc, cols))
				}
			}
			out.Set(i, j, acc)
		}
	}

	return out
}

// GradientScore is the summed absolute x gradient of plane divided by the
// plane's population standard deviation. A constant plane scores 0.
func GradientScore(plane *mat64.Dense) float64 {
	grad := Convolve2D(plane, SobelX)

	var sum float64
	rows, cols := grad.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			sum += math.Abs(grad.At(i, j))
		}
	}

	values := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		values = append(values, plane.RawRowView(i)...)
	}
	_, variance := stat.PopMeanVariance(values, nil)
	if variance == 0 {
		return 0
	}

	return sum / math.Sqrt(variance)
}

// Scores holds the gradient score of the three middle planes.
type Scores struct {
	Sagittal   float64
	Coronal    float64
	Transverse float64
}

// MiddlePlanes returns the middle sagittal (y by z), coronal (x by z) and
// transverse (x by y) planes of the time-averaged volume.
func MiddlePlanes(vol *volume.Volume) (sagittal, coronal, transverse *mat64.Dense) {
	mean := vol
	if vol.T > 1 {
		mean = vol.MeanOverTime()
	}

	mx, my, mz := vol.X/2, vol.Y/2, vol.Z/2

	sagittal = mat64.NewDense(vol.Y, vol.Z, nil)
	for y := 0; y < vol.Y; y++ {
		for z := 0; z < vol.Z; z++ {
			sagittal.Set(y, z, mean.At(mx, y, z, 0))
		}
	}

	coronal = mat64.NewDense(vol.X, vol.Z, nil)
	for x := 0; x < vol.X; x++ {
		for z := 0; z < vol.Z; z++ {
			coronal.Set(x, z, mean.At(x, my, z, 0))
		}
	}

	transverse = mat64.NewDense(vol.X, vol.Y, nil)
	for x := 0; x < vol.X; x++ {
		for y := 0; y < vol.Y; y++ {
			transverse.Set(x, y, mean.At(x, y, mz, 0))
		}
	}

	return sagittal, coronal, transverse
}

// MiddleGradients scores the middle planes of vol.
func MiddleGradients(vol *volume.Volume) (Scores, error) {
	if err := vol.Validate(); err != nil {
		return Scores{}, err
	}

	sagittal, coronal, transverse := MiddlePlanes(vol)

	return Scores{
		Sagittal:   GradientScore(sagittal),
		Coronal:    GradientScore(coronal),
		Transverse: GradientScore(transverse),
	}, nil
}
