package calc

import (
	"math"
	"testing"

	"github.com/gonum/matrix/mat64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KyungWonPark/MementoQC/internal/volume"
)

func rowMoments(m *mat64.Dense, i int) (float64, float64) {
	_, cols := m.Dims()
	var acc, sq float64
	for t := 0; t < cols; t++ {
		acc += m.At(i, t)
	}
	mean := acc / float64(cols)
	for t := 0; t < cols; t++ {
		d := m.At(i, t) - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(cols))
}

func TestZScoring(t *testing.T) {
	pl := Init(3)
	in := mat64.NewDense(3, 5, []float64{
		1, 2, 3, 4, 5,
		10, 0, 10, 0, 10,
		-3, 7, 2, 2, 9,
	})
	out := mat64.NewDense(3, 5, nil)
	require.NoError(t, pl.ZScoring(in, out))

	for i := 0; i < 3; i++ {
		mean, std := rowMoments(out, i)
		assert.InDelta(t, 0, mean, 1e-12)
		assert.InDelta(t, 1, std, 1e-12)
	}
}

func TestZScoringFlatRowIsNaN(t *testing.T) {
	pl := Init(1)
	in := mat64.NewDense(1, 4, []float64{2, 2, 2, 2})
	require.NoError(t, pl.ZScoring(in, in))
	assert.True(t, math.IsNaN(in.At(0, 0)))
}

func TestZScoringDimsMismatch(t *testing.T) {
	pl := Init(1)
	err := pl.ZScoring(mat64.NewDense(2, 3, nil), mat64.NewDense(3, 2, nil))
	assert.ErrorIs(t, err, ErrDims)
}

func TestDetrendRemovesLine(t *testing.T) {
	pl := Init(2)
	const n = 20
	data := make([]float64, 2*n)
	for i := 0; i < n; i++ {
		data[i] = 3 + 0.5*float64(i)
		data[n+i] = -1 + 2*float64(i) + math.Sin(float64(i))
	}
	in := mat64.NewDense(2, n, data)
	out := mat64.NewDense(2, n, nil)
	require.NoError(t, pl.Detrend(in, out))

	for i := 0; i < n; i++ {
		assert.InDelta(t, 0, out.At(0, i), 1e-9)
	}
	mean, _ := rowMoments(out, 1)
	assert.InDelta(t, 0, mean, 1e-9)
}

func TestPearsonOfZScoredRows(t *testing.T) {
	pl := Init(4)
	in := mat64.NewDense(3, 4, []float64{
		1, 2, 3, 4,
		2, 4, 6, 8,
		4, 3, 2, 1,
	})
	out := mat64.NewDense(3, 3, nil)
	require.NoError(t, pl.Pearson(in, out))

	for i := 0; i < 3; i++ {
		assert.InDelta(t, 1, out.At(i, i), 1e-12)
	}
	assert.InDelta(t, 1, out.At(0, 1), 1e-12)
	assert.InDelta(t, -1, out.At(0, 2), 1e-12)
	assert.InDelta(t, out.At(2, 1), out.At(1, 2), 1e-15)
}

func TestSliceSignals(t *testing.T) {
	v, err := volume.New(2, 2, 3, 4)
	require.NoError(t, err)
	for z := 0; z < 3; z++ {
		for tt := 0; tt < 4; tt++ {
			plane := v.Plane(z, tt)
			for i := range plane {
				plane[i] = float64(10*z+tt) + float64(i) - 1.5
			}
		}
	}

	pl := Init(0)
	assert.Greater(t, pl.Workers(), 0)

	signals, err := pl.SliceSignals(v)
	require.NoError(t, err)
	rows, cols := signals.Dims()
	require.Equal(t, 3, rows)
	require.Equal(t, 4, cols)
	for z := 0; z < 3; z++ {
		for tt := 0; tt < 4; tt++ {
			assert.InDelta(t, float64(10*z+tt), signals.At(z, tt), 1e-12)
		}
	}
}

func TestSliceMatrix(t *testing.T) {
	v, err := volume.New(2, 2, 4, 32)
	require.NoError(t, err)
	for z := 0; z < 4; z++ {
		for tt := 0; tt < 32; tt++ {
			val := math.Sin(float64(tt)/3+float64(z%2)) + 0.1*float64(tt)
			for i := range v.Plane(z, tt) {
				v.Plane(z, tt)[i] = val
			}
		}
	}

	signals, corr, err := Init(2).SliceMatrix(v)
	require.NoError(t, err)
	for z := 0; z < 4; z++ {
		mean, std := rowMoments(signals, z)
		assert.InDelta(t, 0, mean, 1e-9)
		assert.InDelta(t, 1, std, 1e-9)
	}
	// slices 0 and 2 carry the same signal
	assert.InDelta(t, 1, corr.At(0, 2), 1e-9)
	assert.InDelta(t, 1, corr.At(1, 3), 1e-9)
}

func TestAccAndAvg(t *testing.T) {
	pl := Init(3)
	sum := mat64.NewDense(2, 2, nil)

	for _, m := range []*mat64.Dense{
		mat64.NewDense(2, 2, []float64{1, 2, 3, 4}),
		mat64.NewDense(2, 2, []float64{3, 2, 1, 0}),
	} {
		require.NoError(t, pl.Acc(m, sum))
	}
	assert.Equal(t, []float64{4, 4, 4, 4}, sum.RawMatrix().Data)

	mean := mat64.NewDense(2, 2, nil)
	require.NoError(t, pl.Avg(sum, mean, 2))
	assert.Equal(t, []float64{2, 2, 2, 2}, mean.RawMatrix().Data)

	assert.Error(t, pl.Avg(sum, mean, 0))
	assert.ErrorIs(t, pl.Acc(mat64.NewDense(3, 2, nil), sum), ErrDims)
}
