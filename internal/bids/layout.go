// Package bids indexes a BIDS directory so scans can be looked up by
// subject, session, suffix and extension.
package bids

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when no file matches a lookup.
	ErrNotFound = errors.New("bids: no matching file")

	// ErrAmbiguous is returned when a single-file lookup matches several.
	ErrAmbiguous = errors.New("bids: several matching files")
)

// RejectedAcquisition marks scans set aside during conversion.
const RejectedAcquisition = "rejected"

// File is one indexed imaging or sidecar file.
type File struct {
	Path        string
	Filename    string
	Subject     string
	Session     string
	Task        string
	Acquisition string
	Run         string
	Datatype    string // parent directory: func, anat, ...
	Suffix      string // bold, T1w, ...
	Extension   string // without the leading dot: nii.gz, json
}

// ParseFilename splits a BIDS file name into entities. The second result is
// false for names without a subject entity or a suffix.
func ParseFilename(name string) (File, bool) {
	f := File{Filename: name}

	stem := name
	if i := strings.Index(name, "."); i >= 0 {
		stem, f.Extension = name[:i], name[i+1:]
	}

	parts := strings.Split(stem, "_")
	if len(parts) < 2 {
		return f, false
	}
	f.Suffix = parts[len(parts)-1]
	if f.Suffix == "" || strings.Contains(f.Suffix, "-") {
		return f, false
	}

	for _, part := range parts[:len(parts)-1] {
		key, value, ok := strings.Cut(part, "-")
		if !ok {
			return f, false
		}
		switch key {
		case "sub":
			f.Subject = value
		case "ses":
			f.Session = value
		case "task":
			f.Task = value
		case "acq":
			f.Acquisition = value
		case "run":
			f.Run = value
		}
	}

	return f, f.Subject != ""
}

// Query selects files; empty fields match anything.
type Query struct {
	Subject     string
	Session     string
	Task        string
	Datatype    string
	Suffix      string
	Extension   string
	Acquisition string

	// IncludeRejected keeps files whose acquisition is "rejected".
	IncludeRejected bool
}

func (q Query) match(f File) bool {
	if !q.IncludeRejected && f.Acquisition == RejectedAcquisition && q.Acquisition != RejectedAcquisition {
		return false
	}

	return matchField(q.Subject, f.Subject) &&
		matchField(q.Session, f.Session) &&
		matchField(q.Task, f.Task) &&
		matchField(q.Datatype, f.Datatype) &&
		matchField(q.Suffix, f.Suffix) &&
		matchField(strings.TrimPrefix(q.Extension, "."), f.Extension) &&
		matchField(q.Acquisition, f.Acquisition)
}

func matchField(want, got string) bool {
	return want == "" || want == got
}

// Layout is an in-memory index of a BIDS tree.
type Layout struct {
	Root  string
	files []File
}

// Index walks root and records every file with a parseable BIDS name.
func Index(root string) (*Layout, error) {
	l := &Layout{Root: root}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		f, ok := ParseFilename(d.Name())
		if !ok {
			return nil
		}
		f.Path = path
		f.Datatype = filepath.Base(filepath.Dir(path))
		l.files = append(l.files, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", root, err)
	}

	sort.Slice(l.files, func(i, j int) bool { return l.files[i].Path < l.files[j].Path })

	return l, nil
}

// NewLayout builds a layout from already known files.
func NewLayout(root string, files []File) *Layout {
	return &Layout{Root: root, files: append([]File(nil), files...)}
}

// Files returns every indexed file.
func (l *Layout) Files() []File {
	return append([]File(nil), l.files...)
}

// Get returns the files matching q in path order.
func (l *Layout) Get(q Query) []File {
	var out []File
	for _, f := range l.files {
		if q.match(f) {
			out = append(out, f)
		}
	}
	return out
}

// Find returns the path of the single file for (subject, session, suffix,
// extension).
func (l *Layout) Find(subject, session, suffix, extension string) (string, error) {
	matches := l.Get(Query{Subject: subject, Session: session, Suffix: suffix, Extension: extension})

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: sub-%s ses-%s %s.%s", ErrNotFound, subject, session, suffix, extension)
	case 1:
		return matches[0].Path, nil
	default:
		return "", fmt.Errorf("%w: sub-%s ses-%s %s.%s matched %d files",
			ErrAmbiguous, subject, session, suffix, extension, len(matches))
	}
}

// SidecarPath returns the JSON sidecar path belonging to f.
func SidecarPath(f File) string {
	name := strings.TrimSuffix(f.Filename, "."+f.Extension) + ".json"
	return filepath.Join(filepath.Dir(f.Path), name)
}
