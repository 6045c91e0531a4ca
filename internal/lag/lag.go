// Package lag estimates the delay between even and odd slice signals of a
// scan. A lag near half a TR points to interleaved slice acquisition.
package lag

import (
	"errors"
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/KyungWonPark/MementoQC/internal/calc"
	"github.com/KyungWonPark/MementoQC/internal/volume"
)

// DefaultOversampling is the resampling factor used when none is given.
const DefaultOversampling = 10

var (
	// ErrDegenerateSignal is returned when the correlation is undefined.
	ErrDegenerateSignal = errors.New("lag: degenerate signal")

	// ErrTooFewSlices is returned for fewer than two rows or two frames.
	ErrTooFewSlices = errors.New("lag: need at least two slices and two frames")
)

// Result carries the estimate and the curves it was read from.
type Result struct {
	// Lag is in TR units. A negative lag means the odd slices trail the
	// even slices.
	Lag          float64
	Oversampling int
	Skipped      []int // rows left out for holding NaN or Inf

	Even []float64 // oversampled mean of even rows
	Odd  []float64 // oversampled mean of odd rows
	Lags []float64 // correlation lags in TR units
	Corr []float64
}

// Estimate computes the even/odd lag of a (slices, frames) matrix whose rows
// are already detrended and z-scored. k is the oversampling factor.
func Estimate(signals *mat64.Dense, k int) (*Result, error) {
	if k < 1 {
		return nil, fmt.Errorf("lag: oversampling factor %d must be at least 1", k)
	}

	rows, cols := signals.Dims()
	if rows < 2 || cols < 2 {
		return nil, fmt.Errorf("%w: got %d by %d", ErrTooFewSlices, rows, cols)
	}

	even := make([]float64, cols)
	odd := make([]float64, cols)
	row := make([]float64, cols)
	var skipped []int
	nEven, nOdd, flat := 0, 0, 0

	for i := 0; i < rows; i++ {
		for t := 0; t < cols; t++ {
			row[t] = signals.At(i, t)
		}
		// z-scoring a flat slice leaves NaN
		if !allFinite(row) {
			skipped = append(skipped, i)
			continue
		}
		if stat.Variance(row, nil) == 0 {
			flat++
		}

		if i%2 == 0 {
			floats.Add(even, row)
			nEven++
		} else {
			floats.Add(odd, row)
			nOdd++
		}
	}
	if nEven == 0 || nOdd == 0 {
		return nil, fmt.Errorf("%w: %d of %d rows hold NaN or Inf, leaving no even or odd slice",
			ErrDegenerateSignal, len(skipped), rows)
	}
	if flat == nEven+nOdd {
		return nil, fmt.Errorf("%w: every row has zero variance", ErrDegenerateSignal)
	}

	// resampling is linear, so averaging first gives the same means
	floats.Scale(1/float64(nEven), even)
	floats.Scale(1/float64(nOdd), odd)

	res := &Result{
		Oversampling: k,
		Skipped:      skipped,
		Even:         Resample(even, k*cols),
		Odd:          Resample(odd, k*cols),
	}
	if stat.Variance(res.Even, nil) == 0 || stat.Variance(res.Odd, nil) == 0 {
		return nil, fmt.Errorf("%w: even or odd mean signal is flat", ErrDegenerateSignal)
	}

	corr := Correlate(res.Even, res.Odd)
	floats.Scale(1/float64(len(res.Even)), corr)
	lags := Lags(len(corr))

	res.Corr = corr
	res.Lags = make([]float64, len(lags))
	for i, l := range lags {
		res.Lags[i] = float64(l) / float64(k)
	}
	res.Lag = res.Lags[floats.MaxIdx(corr)]

	return res, nil
}

// ScanLag runs the full path from a raw scan: slice means, detrend, z-score,
// then Estimate.
func ScanLag(vol *volume.Volume, pl *calc.PipeLine, k int) (*Result, error) {
	signals, err := pl.StandardSignals(vol)
	if err != nil {
		return nil, err
	}

	return Estimate(signals, k)
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
