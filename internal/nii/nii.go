// Package nii reads and writes NIfTI-1 scans as volume.Volume values.
package nii

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/KyungWonPark/nifti"
	gzip "github.com/klauspost/pgzip"

	qcio "github.com/KyungWonPark/MementoQC/internal/io"
	"github.com/KyungWonPark/MementoQC/internal/volume"
)

var (
	// ErrShapeMismatch is returned when a volume does not fit the header it is
	// written under.
	ErrShapeMismatch = errors.New("nii: volume does not match header")

	// ErrBadHeader is returned for headers the loader cannot decode.
	ErrBadHeader = errors.New("nii: unsupported header")

	// ErrTruncated is returned when a file holds fewer voxels than its header
	// announces.
	ErrTruncated = errors.New("nii: voxel data shorter than header")

	// ErrUncompressed is returned for a destination without ".gz": the
	// writer always produces gzip streams.
	ErrUncompressed = errors.New("nii: destination must end in .gz")
)

const headerSize = 348

// Info summarises a scan header.
type Info struct {
	Path       string
	X, Y, Z, T int
	Is4D       bool
	TR         float64 // pixdim[4]; zero when the scan is 3D
	VoxelSize  [3]float64
}

// safely turns loader and writer panics into errors.
func safely(what, path string, fn func()) (err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%s %s: %v", what, path, panicErr)
		}
	}()

	fn()

	return nil
}

func isGzip(path string) bool {
	return strings.HasSuffix(path, ".gz")
}

func loadHeader(path string) (nifti.Nifti1Header, error) {
	var hdr nifti.Nifti1Header
	if _, err := os.Stat(path); err != nil {
		return hdr, err
	}
	if err := safely("load header", path, func() { hdr.LoadHeader(path) }); err != nil {
		return hdr, err
	}
	if err := checkHeader(hdr); err != nil {
		return hdr, fmt.Errorf("%s: %w", path, err)
	}

	return hdr, nil
}

func checkHeader(hdr nifti.Nifti1Header) error {
	if hdr.SizeofHdr != headerSize {
		return fmt.Errorf("%w: sizeof_hdr %d", ErrBadHeader, hdr.SizeofHdr)
	}
	if hdr.Dim[0] < 1 || hdr.Dim[0] > 7 {
		return fmt.Errorf("%w: dim[0] %d", ErrBadHeader, hdr.Dim[0])
	}
	for i := 1; i <= int(hdr.Dim[0]); i++ {
		if hdr.Dim[i] < 1 {
			return fmt.Errorf("%w: dim[%d] %d", ErrBadHeader, i, hdr.Dim[i])
		}
	}
	switch hdr.Bitpix {
	case 8, 16, 32, 64:
	default:
		return fmt.Errorf("%w: bitpix %d", ErrBadHeader, hdr.Bitpix)
	}
	if hdr.VoxOffset < headerSize {
		return fmt.Errorf("%w: vox_offset %g", ErrBadHeader, hdr.VoxOffset)
	}

	return nil
}

// payloadSize is the byte count a complete file must reach.
func payloadSize(hdr nifti.Nifti1Header) int64 {
	nvox := int64(1)
	for i := 1; i <= int(hdr.Dim[0]); i++ {
		nvox *= int64(hdr.Dim[i])
	}
	return int64(hdr.VoxOffset) + nvox*int64(hdr.Bitpix)/8
}

// dataSize returns the decompressed length of path.
func dataSize(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var r io.Reader = f
	if isGzip(path) {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return n, fmt.Errorf("%s: %w", path, err)
	}

	return n, nil
}

func checkPayload(path string, hdr nifti.Nifti1Header) error {
	got, err := dataSize(path)
	if err != nil {
		return err
	}
	if want := payloadSize(hdr); got < want {
		return fmt.Errorf("%w: %s holds %d bytes, header needs %d", ErrTruncated, path, got, want)
	}

	return nil
}

// loadImage reads the header of path and, when rdata is set, its voxels once
// the file is known to hold all of them.
func loadImage(path string, rdata bool) (*nifti.Nifti1Image, nifti.Nifti1Header, error) {
	hdr, err := loadHeader(path)
	if err != nil {
		return nil, hdr, err
	}
	if rdata {
		if err := checkPayload(path, hdr); err != nil {
			return nil, hdr, err
		}
	}

	img := new(nifti.Nifti1Image)
	if err := safely("load", path, func() { img.LoadImage(path, rdata) }); err != nil {
		return nil, hdr, err
	}

	return img, hdr, nil
}

func dimsOf(hdr nifti.Nifti1Header) (int, int, int, int) {
	dim := [4]int{1, 1, 1, 1}
	for i := 0; i < 4 && i < int(hdr.Dim[0]); i++ {
		dim[i] = int(hdr.Dim[i+1])
	}
	return dim[0], dim[1], dim[2], dim[3]
}

// Describe reads the header of path.
func Describe(path string) (Info, error) {
	hdr, err := loadHeader(path)
	if err != nil {
		return Info{}, err
	}

	info := Info{Path: path}
	info.X, info.Y, info.Z, info.T = dimsOf(hdr)
	info.Is4D = info.T > 1
	if info.Is4D {
		info.TR = float64(hdr.Pixdim[4])
	}
	for i := range info.VoxelSize {
		info.VoxelSize[i] = float64(hdr.Pixdim[i+1])
	}

	return info, nil
}

// Store is the file-backed image store used by the repair driver.
type Store struct{}

// Read loads every voxel of path.
func (Store) Read(path string) (*volume.Volume, error) {
	img, hdr, err := loadImage(path, true)
	if err != nil {
		return nil, err
	}

	x, y, z, t := dimsOf(hdr)
	vol, err := volume.New(x, y, z, t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	err = safely("read", path, func() {
		i := 0
		for tt := 0; tt < t; tt++ {
			for zz := 0; zz < z; zz++ {
				for yy := 0; yy < y; yy++ {
					for xx := 0; xx < x; xx++ {
						vol.Data[i] = float64(img.GetAt(uint32(xx), uint32(yy), uint32(zz), uint32(tt)))
						i++
					}
				}
			}
		}
	})
	if err != nil {
		return nil, err
	}

	return vol, nil
}

// Write saves vol to dst under the header and affine of src. dst may equal
// src and must be gzip compressed. The file only appears at dst once it is
// complete.
func (Store) Write(src, dst string, vol *volume.Volume) error {
	if err := vol.Validate(); err != nil {
		return err
	}
	if !isGzip(dst) {
		return fmt.Errorf("%w: %s", ErrUncompressed, dst)
	}

	img, hdr, err := loadImage(src, true)
	if err != nil {
		return err
	}

	x, y, z, t := dimsOf(hdr)
	if x != vol.X || y != vol.Y || z != vol.Z || t != vol.T {
		return fmt.Errorf("%w: %s is (%d, %d, %d, %d), volume is (%d, %d, %d, %d)",
			ErrShapeMismatch, src, x, y, z, t, vol.X, vol.Y, vol.Z, vol.T)
	}

	err = safely("fill", src, func() {
		i := 0
		for tt := 0; tt < t; tt++ {
			for zz := 0; zz < z; zz++ {
				for yy := 0; yy < y; yy++ {
					for xx := 0; xx < x; xx++ {
						img.SetAt(uint32(xx), uint32(yy), uint32(zz), uint32(tt), float32(vol.Data[i]))
						i++
					}
				}
			}
		}
	})
	if err != nil {
		return err
	}

	return save(img, hdr, dst)
}

// save writes img through a temporary sibling of dst. The library appends
// ".gz" to the name it is given.
func save(img *nifti.Nifti1Image, hdr nifti.Nifti1Header, dst string) error {
	return qcio.WriteAtomic(dst, func(tmp string) error {
		if err := safely("save", dst, func() { img.Save(strings.TrimSuffix(tmp, ".gz")) }); err != nil {
			return err
		}
		return checkPayload(tmp, hdr)
	})
}

// SetTR rewrites pixdim[4] of the scan at path, leaving the voxels as they
// are. path must be gzip compressed.
func SetTR(path string, tr float64) error {
	if tr <= 0 {
		return fmt.Errorf("nii: repetition time %g must be positive", tr)
	}
	if !isGzip(path) {
		return fmt.Errorf("%w: %s", ErrUncompressed, path)
	}

	img, hdr, err := loadImage(path, true)
	if err != nil {
		return err
	}

	hdr.Pixdim[4] = float32(tr)
	img.SetNewHeader(hdr)

	return save(img, hdr, path)
}

// Load reads a scan together with its header summary.
func Load(path string) (*volume.Volume, Info, error) {
	info, err := Describe(path)
	if err != nil {
		return nil, Info{}, err
	}
	vol, err := Store{}.Read(path)
	if err != nil {
		return nil, Info{}, err
	}

	return vol, info, nil
}
