// Package volume holds the 4D scan array shared by the repair and QC tools.
package volume

import (
	"errors"
	"fmt"
)

// ErrShape is returned when dimensions and data length disagree.
var ErrShape = errors.New("volume: bad shape")

// Volume is a 4D array indexed by (x, y, z, t).
// Data is stored with x varying fastest, then y, z and t, the same order
// NIfTI uses on disk.
type Volume struct {
	X, Y, Z, T int
	Data       []float64
}

// New allocates a zeroed volume.
func New(x, y, z, t int) (*Volume, error) {
	if x <= 0 || y <= 0 || z <= 0 || t <= 0 {
		return nil, fmt.Errorf("%w: dims (%d, %d, %d, %d) must be positive", ErrShape, x, y, z, t)
	}

	return &Volume{X: x, Y: y, Z: z, T: t, Data: make([]float64, x*y*z*t)}, nil
}

// FromData wraps an existing buffer. The buffer is not copied.
func FromData(x, y, z, t int, data []float64) (*Volume, error) {
	v := &Volume{X: x, Y: y, Z: z, T: t, Data: data}
	if err := v.Validate(); err != nil {
		return nil, err
	}

	return v, nil
}

// Validate checks the shape invariant.
func (v *Volume) Validate() error {
	if v == nil {
		return fmt.Errorf("%w: nil volume", ErrShape)
	}
	if v.X <= 0 || v.Y <= 0 || v.Z <= 0 || v.T <= 0 {
		return fmt.Errorf("%w: dims (%d, %d, %d, %d) must be positive", ErrShape, v.X, v.Y, v.Z, v.T)
	}
	if want := v.X * v.Y * v.Z * v.T; len(v.Data) != want {
		return fmt.Errorf("%w: %d samples for dims (%d, %d, %d, %d), want %d",
			ErrShape, len(v.Data), v.X, v.Y, v.Z, v.T, want)
	}

	return nil
}

// Dims returns (x, y, z, t).
func (v *Volume) Dims() (int, int, int, int) {
	return v.X, v.Y, v.Z, v.T
}

// PlaneSize is the number of voxels in one (x, y) plane.
func (v *Volume) PlaneSize() int {
	return v.X * v.Y
}

// Index returns the flat offset of (x, y, z, t).
func (v *Volume) Index(x, y, z, t int) int {
	return x + v.X*(y+v.Y*(z+v.Z*t))
}

// At returns the sample at (x, y, z, t).
func (v *Volume) At(x, y, z, t int) float64 {
	return v.Data[v.Index(x, y, z, t)]
}

// Set stores val at (x, y, z, t).
func (v *Volume) Set(x, y, z, t int, val float64) {
	v.Data[v.Index(x, y, z, t)] = val
}

// Plane returns the (x, y) plane at slice z, frame t. The result aliases Data.
func (v *Volume) Plane(z, t int) []float64 {
	n := v.PlaneSize()
	start := n * (z + v.Z*t)
	return v.Data[start : start+n]
}

// Clone returns a deep copy.
func (v *Volume) Clone() *Volume {
	data := make([]float64, len(v.Data))
	copy(data, v.Data)
	return &Volume{X: v.X, Y: v.Y, Z: v.Z, T: v.T, Data: data}
}

// MeanOverTime averages every voxel over t and returns a volume with T == 1.
func (v *Volume) MeanOverTime() *Volume {
	n := v.X * v.Y * v.Z
	mean := make([]float64, n)
	for t := 0; t < v.T; t++ {
		frame := v.Data[t*n : (t+1)*n]
		for i, val := range frame {
			mean[i] += val
		}
	}
	for i := range mean {
		mean[i] /= float64(v.T)
	}

	return &Volume{X: v.X, Y: v.Y, Z: v.Z, T: 1, Data: mean}
}

// GlobalSignal averages every frame over all voxels.
func (v *Volume) GlobalSignal() []float64 {
	n := v.X * v.Y * v.Z
	ts := make([]float64, v.T)
	for t := 0; t < v.T; t++ {
		var acc float64
		for _, val := range v.Data[t*n : (t+1)*n] {
			acc += val
		}
		ts[t] = acc / float64(n)
	}

	return ts
}
