// Package destripe repairs scans whose slice and time axes were scrambled on
// export. In a corrupted scan each frame is a "virtual channel": its slice axis
// holds a run of consecutive time samples belonging to a single true slice.
// The mapping back depends only on the slice count Z and the frame count T.
package destripe

import (
	"errors"
	"fmt"

	"github.com/KyungWonPark/MementoQC/internal/volume"
)

// ErrMalformedVolume is returned for arrays that cannot be re-sliced.
var ErrMalformedVolume = errors.New("destripe: malformed volume")

// Segment copies source slices [SrcStart, SrcEnd) of virtual channel Channel
// into destination frames [TimeStart, TimeEnd) of slice Slice.
type Segment struct {
	Slice     int
	TimeStart int
	TimeEnd   int
	Channel   int
	SrcStart  int
	SrcEnd    int
}

// Len is the number of (x, y) planes moved by the segment.
func (s Segment) Len() int {
	return s.TimeEnd - s.TimeStart
}

// Plan is the full copy schedule for a (Z, T) pair.
type Plan struct {
	Z, T     int
	Segments []Segment

	// Offsets holds the offset computed each time a slice can no longer take
	// a full run of Z samples, one entry per destination slice.
	Offsets []int

	// Channels is the number of virtual channels read, fully or partially.
	Channels int

	// Dropped counts source planes per (x, y) column that were never copied.
	// The loop stops as soon as the last slice is filled, so any remainder of
	// the channel in flight is discarded here rather than written anywhere.
	Dropped int
}

// cursor is the walking state of the repair: destination slice and frame,
// source channel, and the running offset.
type cursor struct {
	slice   int
	time    int
	channel int
	offset  int
}

// NewPlan computes the copy schedule for z slices and t frames.
func NewPlan(z, t int) (*Plan, error) {
	if z <= 0 || t <= 0 {
		return nil, fmt.Errorf("%w: z=%d t=%d must be positive", ErrMalformedVolume, z, t)
	}
	if t < z {
		return nil, fmt.Errorf("%w: %d frames is fewer than %d slices", ErrMalformedVolume, t, z)
	}

	p := &Plan{Z: z, T: t}
	var c cursor
	touched := 0

	for c.slice < z {
		// steady state: one whole channel per run of z frames
		for c.time+z <= t {
			p.Segments = append(p.Segments, Segment{
				Slice: c.slice, TimeStart: c.time, TimeEnd: c.time + z,
				Channel: c.channel, SrcStart: 0, SrcEnd: z,
			})
			c.time += z
			c.channel++
			touched = c.channel
		}

		c.offset = (t - z + c.offset) % z
		p.Offsets = append(p.Offsets, c.offset)

		if c.offset == 0 {
			c.slice++
			c.time = 0
			continue
		}

		// the channel in flight straddles two slices
		p.Segments = append(p.Segments, Segment{
			Slice: c.slice, TimeStart: c.time, TimeEnd: c.time + c.offset,
			Channel: c.channel, SrcStart: 0, SrcEnd: c.offset,
		})
		touched = c.channel + 1
		c.slice++

		if c.slice < z {
			p.Segments = append(p.Segments, Segment{
				Slice: c.slice, TimeStart: 0, TimeEnd: z - c.offset,
				Channel: c.channel, SrcStart: c.offset, SrcEnd: z,
			})
			c.time = z - c.offset
			c.channel++
		} else {
			p.Dropped += z - c.offset
		}
	}

	p.Channels = touched
	p.Dropped += (t - touched) * z

	return p, nil
}

// Apply executes p on v and returns a new volume of the same shape.
func Apply(v *volume.Volume, p *Plan) (*volume.Volume, error) {
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedVolume, err)
	}
	if p == nil || v.Z != p.Z || v.T != p.T {
		return nil, fmt.Errorf("%w: plan does not match volume shape", ErrMalformedVolume)
	}

	out, err := volume.New(v.X, v.Y, v.Z, v.T)
	if err != nil {
		return nil, err
	}

	for _, seg := range p.Segments {
		if seg.Len() != seg.SrcEnd-seg.SrcStart {
			return nil, fmt.Errorf("%w: segment %+v is unbalanced", ErrMalformedVolume, seg)
		}
		for j := 0; j < seg.Len(); j++ {
			copy(out.Plane(seg.Slice, seg.TimeStart+j), v.Plane(seg.SrcStart+j, seg.Channel))
		}
	}

	return out, nil
}

// Destripe reconstructs the correctly ordered volume from a corrupted one.
// The input is left untouched.
func Destripe(v *volume.Volume) (*volume.Volume, error) {
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedVolume, err)
	}

	p, err := NewPlan(v.Z, v.T)
	if err != nil {
		return nil, err
	}

	return Apply(v, p)
}
