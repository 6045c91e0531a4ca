package lag

import (
	"math"
	"testing"

	"github.com/gonum/matrix/mat64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KyungWonPark/MementoQC/internal/calc"
	"github.com/KyungWonPark/MementoQC/internal/volume"
)

// ---------------------------------------------------------------------------
// signal helpers
// ---------------------------------------------------------------------------

func TestResamplePreservesSamples(t *testing.T) {
	x := []float64{0.3, -1.2, 2.5, 0.1, -0.7, 1.9, 0.0, -2.2, 1.1, 0.4, -0.5, 0.8, 1.6, -1.0, 0.2, 0.9}
	for _, k := range []int{2, 5, 10} {
		y := Resample(x, k*len(x))
		require.Len(t, y, k*len(x))
		for i, want := range x {
			assert.InDeltaf(t, want, y[k*i], 1e-9, "k=%d sample %d", k, i)
		}
	}
}

func TestResampleOddLength(t *testing.T) {
	x := []float64{1, 3, -2, 0.5, 4, -1, 2}
	y := Resample(x, 3*len(x))
	for i, want := range x {
		assert.InDelta(t, want, y[3*i], 1e-9)
	}
}

func TestResampleInterpolatesBandLimited(t *testing.T) {
	const n, k = 64, 10
	f := 5.0 / n
	x := make([]float64, n)
	for i := range x {
		x[i] = math.Cos(2 * math.Pi * f * float64(i))
	}

	y := Resample(x, k*n)
	for m := range y {
		want := math.Cos(2 * math.Pi * f * float64(m) / k)
		assert.InDelta(t, want, y[m], 1e-9)
	}
}

func TestResampleDegenerateInputs(t *testing.T) {
	assert.Nil(t, Resample(nil, 10))
	assert.Nil(t, Resample([]float64{1, 2}, 0))
	assert.Equal(t, []float64{1, 2}, Resample([]float64{1, 2}, 2))
}

func TestCorrelateSameMode(t *testing.T) {
	got := Correlate([]float64{1, 2, 3}, []float64{0, 1, 0.5})
	assert.InDeltaSlice(t, []float64{2, 3.5, 3}, got, 1e-12)
}

func TestLags(t *testing.T) {
	assert.Equal(t, []int{-2, -1, 0, 1}, Lags(4))
	assert.Equal(t, []int{-2, -1, 0, 1, 2}, Lags(5))
}

func TestPeriodogramPeak(t *testing.T) {
	const n = 64
	x := make([]float64, n)
	for i := range x {
		x[i] = 3 + math.Sin(2*math.Pi*5*float64(i)/n)
	}

	freqs, power := Periodogram(x, 2.0)
	require.Len(t, freqs, n/2+1)

	best := 0
	for i := range power {
		if power[i] > power[best] {
			best = i
		}
	}
	assert.Equal(t, 5, best)
	assert.InDelta(t, 5*2.0/n, freqs[best], 1e-12)
	assert.InDelta(t, 0, power[0], 1e-9)
}

// ---------------------------------------------------------------------------
// Estimate
// ---------------------------------------------------------------------------

func sineRows(rows, frames int, cycles, oddShift float64) *mat64.Dense {
	m := mat64.NewDense(rows, frames, nil)
	f := cycles / float64(frames)
	for i := 0; i < rows; i++ {
		shift := 0.0
		if i%2 == 1 {
			shift = oddShift
		}
		for tt := 0; tt < frames; tt++ {
			m.Set(i, tt, math.Sqrt2*math.Sin(2*math.Pi*f*(float64(tt)-shift)))
		}
	}
	return m
}

func TestEstimateIdenticalSignalsGiveZeroLag(t *testing.T) {
	m := mat64.NewDense(4, 50, nil)
	for tt := 0; tt < 50; tt++ {
		v := math.Sin(float64(tt)/4) + 0.3*math.Cos(float64(tt)*1.7) + 0.01*float64(tt%7)
		for i := 0; i < 4; i++ {
			m.Set(i, tt, v)
		}
	}

	res, err := Estimate(m, DefaultOversampling)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Lag)
	assert.Len(t, res.Corr, 500)
	assert.Len(t, res.Lags, 500)
}

func TestEstimateKnownShift(t *testing.T) {
	m := sineRows(6, 64, 10, 0.3)

	res, err := Estimate(m, DefaultOversampling)
	require.NoError(t, err)
	assert.InDelta(t, -0.3, res.Lag, 1.0/DefaultOversampling+1e-9)
	assert.Equal(t, DefaultOversampling, res.Oversampling)
}

func TestEstimateOppositeShiftFlipsSign(t *testing.T) {
	m := sineRows(4, 64, 10, -0.5)

	res, err := Estimate(m, DefaultOversampling)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.Lag, 1.0/DefaultOversampling+1e-9)
}

func TestEstimateDegenerate(t *testing.T) {
	_, err := Estimate(mat64.NewDense(4, 20, nil), DefaultOversampling)
	assert.ErrorIs(t, err, ErrDegenerateSignal)

	// no finite odd row left
	nan := sineRows(4, 20, 2, 0)
	nan.Set(1, 3, math.NaN())
	nan.Set(3, 0, math.Inf(1))
	_, err = Estimate(nan, DefaultOversampling)
	assert.ErrorIs(t, err, ErrDegenerateSignal)

	// even rows cancel out
	cancel := sineRows(4, 20, 2, 0)
	for tt := 0; tt < 20; tt++ {
		cancel.Set(2, tt, -cancel.At(0, tt))
	}
	_, err = Estimate(cancel, DefaultOversampling)
	assert.ErrorIs(t, err, ErrDegenerateSignal)
}

func TestEstimateSkipsNonFiniteRows(t *testing.T) {
	m := sineRows(6, 64, 10, 0.3)
	for tt := 0; tt < 64; tt++ {
		m.Set(2, tt, math.NaN())
	}

	res, err := Estimate(m, DefaultOversampling)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, res.Skipped)
	assert.InDelta(t, -0.3, res.Lag, 1.0/DefaultOversampling+1e-9)
}

func TestScanLagWithEmptySlice(t *testing.T) {
	const z, frames = 6, 64
	v, err := volume.New(2, 2, z, frames)
	require.NoError(t, err)
	f := 10.0 / frames
	for s := 0; s < z-1; s++ {
		shift := 0.0
		if s%2 == 1 {
			shift = 0.3
		}
		for tt := 0; tt < frames; tt++ {
			val := 100 + math.Sin(2*math.Pi*f*(float64(tt)-shift))
			plane := v.Plane(s, tt)
			for i := range plane {
				plane[i] = val
			}
		}
	}

	res, err := ScanLag(v, calc.Init(2), DefaultOversampling)
	require.NoError(t, err)
	assert.Equal(t, []int{z - 1}, res.Skipped)
	assert.InDelta(t, -0.3, res.Lag, 0.2)
}

func TestEstimateRejectsBadShapes(t *testing.T) {
	_, err := Estimate(mat64.NewDense(1, 20, nil), DefaultOversampling)
	assert.ErrorIs(t, err, ErrTooFewSlices)

	_, err = Estimate(sineRows(4, 20, 2, 0), 0)
	assert.Error(t, err)
}

func TestScanLag(t *testing.T) {
	const z, frames = 6, 64
	v, err := volume.New(2, 2, z, frames)
	require.NoError(t, err)
	f := 10.0 / frames
	for s := 0; s < z; s++ {
		shift := 0.0
		if s%2 == 1 {
			shift = 0.5
		}
		for tt := 0; tt < frames; tt++ {
			val := 100 + 0.05*float64(tt) + math.Sin(2*math.Pi*f*(float64(tt)-shift))
			plane := v.Plane(s, tt)
			for i := range plane {
				plane[i] = val
			}
		}
	}

	res, err := ScanLag(v, calc.Init(2), DefaultOversampling)
	require.NoError(t, err)
	assert.InDelta(t, -0.5, res.Lag, 0.2)
}
