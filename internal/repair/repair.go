// Package repair converts the scans listed in an outlier manifest: each one
// is located in the archive, de-interleaved and written back either in place
// or to a staging directory.
package repair

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/KyungWonPark/MementoQC/internal/destripe"
	qcio "github.com/KyungWonPark/MementoQC/internal/io"
	"github.com/KyungWonPark/MementoQC/internal/monitoring"
	"github.com/KyungWonPark/MementoQC/internal/volume"
)

// Archive locates a scan by subject, session, suffix and extension.
type Archive interface {
	Find(subject, session, suffix, extension string) (string, error)
}

// Images reads and writes scans. Write saves vol to dst under the header of
// src and must not leave a partial file at dst.
type Images interface {
	Read(path string) (*volume.Volume, error)
	Write(src, dst string, vol *volume.Volume) error
}

// Recorder receives the outcome of every manifest row.
type Recorder interface {
	RecordOutcome(o Outcome) error
}

// Reporter draws QC material for a repaired scan.
type Reporter interface {
	Report(path string, vol *volume.Volume) error
}

// Reason says why a row was skipped.
type Reason string

const (
	ReasonLookupMiss Reason = "lookup miss"
	ReasonRead       Reason = "read failed"
	ReasonMalformed  Reason = "malformed volume"
	ReasonWrite      Reason = "write failed"
	ReasonDuplicate  Reason = "duplicate destination"
)

// ErrDuplicate is returned for a row whose destination was already written
// in the same run. Converting it again would scramble the repaired scan.
var ErrDuplicate = errors.New("repair: destination already written in this run")

// SkipError is the error of a row that could not be repaired.
type SkipError struct {
	Reason Reason
	Err    error
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *SkipError) Unwrap() error {
	return e.Err
}

func skip(reason Reason, err error) error {
	return &SkipError{Reason: reason, Err: err}
}

// Options selects where repaired scans go.
type Options struct {
	// Overwrite replaces the archived scan; otherwise the result is written
	// to StagingDir under the scan's file name.
	Overwrite  bool
	StagingDir string

	Suffix    string // defaults to "bold"
	Extension string // defaults to "nii.gz"
}

// Driver runs the conversion over a manifest.
type Driver struct {
	archive Archive
	images  Images
	opts    Options

	// Recorder and Reporter are optional.
	Recorder Recorder
	Reporter Reporter
}

// New returns a driver over archive and images.
func New(archive Archive, images Images, opts Options) (*Driver, error) {
	if archive == nil || images == nil {
		return nil, errors.New("repair: archive and images are required")
	}
	if !opts.Overwrite && opts.StagingDir == "" {
		return nil, errors.New("repair: a staging directory is required unless overwriting")
	}
	if opts.Suffix == "" {
		opts.Suffix = "bold"
	}
	if opts.Extension == "" {
		opts.Extension = "nii.gz"
	}
	opts.Extension = strings.TrimPrefix(opts.Extension, ".")

	return &Driver{archive: archive, images: images, opts: opts}, nil
}

// Destination is where the repaired copy of src goes.
func (d *Driver) Destination(src string) string {
	if d.opts.Overwrite {
		return src
	}
	return filepath.Join(d.opts.StagingDir, filepath.Base(src))
}

// Repaired is a row that was converted.
type Repaired struct {
	Row         qcio.ManifestRow
	Source      string
	Destination string
}

// Skip is a row that was not converted.
type Skip struct {
	Row    qcio.ManifestRow
	Source string
	Reason Reason
	Err    error
}

// Outcome is what the Recorder gets for each row. Reason is empty for a
// repaired row.
type Outcome struct {
	Row         qcio.ManifestRow
	Source      string
	Destination string
	Reason      Reason
	Err         error
}

// Summary lists the repaired and skipped rows of a run in manifest order.
type Summary struct {
	Repaired []Repaired
	Skipped  []Skip
}

// Reasons counts skipped rows per reason.
func (s Summary) Reasons() map[Reason]int {
	counts := make(map[Reason]int)
	for _, sk := range s.Skipped {
		counts[sk.Reason]++
	}
	return counts
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d repaired, %d skipped", len(s.Repaired), len(s.Skipped))

	counts := s.Reasons()
	reasons := make([]string, 0, len(counts))
	for r := range counts {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(&b, "; %s: %d", r, counts[Reason(r)])
	}

	return b.String()
}

func (d *Driver) locate(row qcio.ManifestRow) (string, error) {
	src, err := d.archive.Find(row.Subject(), row.Session, d.opts.Suffix, d.opts.Extension)
	if err != nil {
		return "", skip(ReasonLookupMiss, err)
	}
	return src, nil
}

// convert reads src, de-interleaves it and writes the result to dst.
func (d *Driver) convert(src, dst string) (*volume.Volume, error) {
	in, err := d.images.Read(src)
	if err != nil {
		return nil, skip(ReasonRead, err)
	}

	out, err := destripe.Destripe(in)
	if err != nil {
		return nil, skip(ReasonMalformed, err)
	}

	if err := d.images.Write(src, dst, out); err != nil {
		return nil, skip(ReasonWrite, err)
	}

	return out, nil
}

// Convert repairs the scan of one row and returns its destination. Errors
// are *SkipError values.
func (d *Driver) Convert(row qcio.ManifestRow) (string, error) {
	src, err := d.locate(row)
	if err != nil {
		return "", err
	}

	dst := d.Destination(src)
	if _, err := d.convert(src, dst); err != nil {
		return "", err
	}

	return dst, nil
}

// Run converts every row in order. Failures are logged and recorded in the
// summary; the batch always runs to the end.
func (d *Driver) Run(rows []qcio.ManifestRow) Summary {
	var summary Summary
	written := make(map[string]bool)

	for i, row := range rows {
		monitoring.Logf("repair %d/%d: %s ses-%s", i+1, len(rows), row.ParticipantID, row.Session)

		var (
			dst string
			vol *volume.Volume
		)
		src, err := d.locate(row)
		if err == nil {
			dst = d.Destination(src)
			if written[dst] {
				err = skip(ReasonDuplicate, fmt.Errorf("%w: %s", ErrDuplicate, dst))
			} else {
				vol, err = d.convert(src, dst)
			}
		}

		outcome := Outcome{Row: row, Source: src, Destination: dst}
		if err != nil {
			var se *SkipError
			if !errors.As(err, &se) {
				se = &SkipError{Reason: ReasonWrite, Err: err}
			}
			monitoring.Logf("skip %s ses-%s (%s): %v", row.ParticipantID, row.Session, se.Reason, se.Err)
			summary.Skipped = append(summary.Skipped, Skip{Row: row, Source: src, Reason: se.Reason, Err: se.Err})
			outcome.Destination = ""
			outcome.Reason, outcome.Err = se.Reason, se.Err
		} else {
			written[dst] = true
			summary.Repaired = append(summary.Repaired, Repaired{Row: row, Source: src, Destination: dst})
			if d.Reporter != nil {
				if err := d.Reporter.Report(dst, vol); err != nil {
					monitoring.Logf("report %s: %v", dst, err)
				}
			}
		}

		if d.Recorder != nil {
			if err := d.Recorder.RecordOutcome(outcome); err != nil {
				monitoring.Logf("record %s ses-%s: %v", row.ParticipantID, row.Session, err)
			}
		}
	}

	monitoring.Logf("repair run: %s", summary)

	return summary
}
