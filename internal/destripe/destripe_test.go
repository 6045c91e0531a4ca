package destripe

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KyungWonPark/MementoQC/internal/volume"
)

// ramp returns a volume whose every sample is unique.
func ramp(t *testing.T, x, y, z, tt int) *volume.Volume {
	t.Helper()
	v, err := volume.New(x, y, z, tt)
	require.NoError(t, err)
	for i := range v.Data {
		v.Data[i] = float64(i + 1)
	}
	return v
}

func sorted(data []float64) []float64 {
	out := append([]float64(nil), data...)
	sort.Float64s(out)
	return out
}

func TestNewPlanSmall(t *testing.T) {
	p, err := NewPlan(2, 3)
	require.NoError(t, err)

	want := []Segment{
		{Slice: 0, TimeStart: 0, TimeEnd: 2, Channel: 0, SrcStart: 0, SrcEnd: 2},
		{Slice: 0, TimeStart: 2, TimeEnd: 3, Channel: 1, SrcStart: 0, SrcEnd: 1},
		{Slice: 1, TimeStart: 0, TimeEnd: 1, Channel: 1, SrcStart: 1, SrcEnd: 2},
		{Slice: 1, TimeStart: 1, TimeEnd: 3, Channel: 2, SrcStart: 0, SrcEnd: 2},
	}
	if diff := cmp.Diff(want, p.Segments); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int{1, 0}, p.Offsets)
	assert.Equal(t, 3, p.Channels)
	assert.Equal(t, 0, p.Dropped)
}

func TestOffsetSequenceRealigns(t *testing.T) {
	p, err := NewPlan(5, 13)
	require.NoError(t, err)

	// (13-5+0)%5=3, (13-5+3)%5=1, (13-5+1)%5=4, (13-5+4)%5=2, (13-5+2)%5=0
	assert.Equal(t, []int{3, 1, 4, 2, 0}, p.Offsets)
	assert.Equal(t, 13, p.Channels)
	assert.Equal(t, 0, p.Dropped)
}

func TestPlanCoversEveryDestinationOnce(t *testing.T) {
	shapes := [][2]int{{6, 12}, {5, 13}, {7, 30}, {4, 4}, {3, 11}, {66, 250}}
	for _, s := range shapes {
		z, tt := s[0], s[1]
		p, err := NewPlan(z, tt)
		require.NoError(t, err)

		hits := make([]int, z*tt)
		src := make([]int, z*tt)
		for _, seg := range p.Segments {
			for j := 0; j < seg.Len(); j++ {
				hits[seg.Slice*tt+seg.TimeStart+j]++
				src[seg.Channel*z+seg.SrcStart+j]++
			}
		}
		for i, n := range hits {
			assert.Equalf(t, 1, n, "z=%d t=%d destination %d written %d times", z, tt, i, n)
		}
		for i, n := range src {
			assert.LessOrEqualf(t, n, 1, "z=%d t=%d source %d read %d times", z, tt, i, n)
		}
		assert.Equal(t, 0, p.Dropped)
		assert.Equal(t, z, len(p.Offsets))
		assert.Equal(t, 0, p.Offsets[len(p.Offsets)-1])
	}
}

func TestDestripeIsBijection(t *testing.T) {
	cases := []struct {
		name       string
		x, y, z, t int
	}{
		{"exact division", 4, 4, 6, 12},
		{"remainder", 2, 3, 5, 13},
		{"square", 2, 2, 4, 4},
		{"long run", 1, 1, 7, 30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := ramp(t, tc.x, tc.y, tc.z, tc.t)
			orig := in.Clone()

			out, err := Destripe(in)
			require.NoError(t, err)

			assert.Equal(t, orig.Data, in.Data, "input must not be modified")
			assert.Equal(t, sorted(in.Data), sorted(out.Data))
			assert.NotSame(t, &in.Data[0], &out.Data[0])
		})
	}
}

func TestDestripeExactDivisionMatchesReshape(t *testing.T) {
	in := ramp(t, 4, 4, 6, 12)
	out, err := Destripe(in)
	require.NoError(t, err)

	runs := in.T / in.Z
	for x := 0; x < in.X; x++ {
		for y := 0; y < in.Y; y++ {
			for s := 0; s < in.Z; s++ {
				for k := 0; k < runs; k++ {
					for j := 0; j < in.Z; j++ {
						want := in.At(x, y, j, s*runs+k)
						got := out.At(x, y, s, k*in.Z+j)
						if want != got {
							t.Fatalf("out[%d,%d,%d,%d] = %v, want %v", x, y, s, k*in.Z+j, got, want)
						}
					}
				}
			}
		}
	}
}

func TestDestripeSquareIsTransposeAndInvolution(t *testing.T) {
	in := ramp(t, 3, 2, 5, 5)
	once, err := Destripe(in)
	require.NoError(t, err)

	for z := 0; z < 5; z++ {
		for tt := 0; tt < 5; tt++ {
			assert.Equal(t, in.At(1, 1, tt, z), once.At(1, 1, z, tt))
		}
	}

	twice, err := Destripe(once)
	require.NoError(t, err)
	assert.Equal(t, in.Data, twice.Data)
}

func TestDestripeRemainderTrace(t *testing.T) {
	// one voxel column so every sample is (z, t) addressable
	in := ramp(t, 1, 1, 5, 13)
	out, err := Destripe(in)
	require.NoError(t, err)

	// slice 0 ends with the first three samples of channel 2
	for j := 0; j < 3; j++ {
		assert.Equal(t, in.At(0, 0, j, 2), out.At(0, 0, 0, 10+j))
	}
	// slice 1 starts with the last two samples of channel 2
	for j := 0; j < 2; j++ {
		assert.Equal(t, in.At(0, 0, 3+j, 2), out.At(0, 0, 1, j))
	}
	// slice 4 is filled by channels 11 and 12
	assert.Equal(t, in.At(0, 0, 4, 12), out.At(0, 0, 4, 12))
}

func TestDestripeRejectsMalformed(t *testing.T) {
	short := ramp(t, 2, 2, 6, 5)
	_, err := Destripe(short)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedVolume)

	bad := &volume.Volume{X: 2, Y: 2, Z: 2, T: 2, Data: make([]float64, 3)}
	_, err = Destripe(bad)
	assert.ErrorIs(t, err, ErrMalformedVolume)

	_, err = Destripe(nil)
	assert.ErrorIs(t, err, ErrMalformedVolume)

	_, err = NewPlan(0, 10)
	assert.ErrorIs(t, err, ErrMalformedVolume)
}

func TestApplyRejectsMismatchedPlan(t *testing.T) {
	p, err := NewPlan(4, 8)
	require.NoError(t, err)

	_, err = Apply(ramp(t, 1, 1, 4, 9), p)
	assert.ErrorIs(t, err, ErrMalformedVolume)
}
