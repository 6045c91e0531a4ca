package bids

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	qcio "github.com/KyungWonPark/MementoQC/internal/io"
)

// Sidecar is a JSON metadata file living next to a scan. Unknown keys are
// kept as they were read.
type Sidecar struct {
	Path   string
	Fields map[string]any
}

// LoadSidecar reads the sidecar at path.
func LoadSidecar(path string) (*Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	s := &Sidecar{Path: path, Fields: make(map[string]any)}
	if err := json.Unmarshal(data, &s.Fields); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	return s, nil
}

// RepetitionTime returns the RepetitionTime field in seconds.
func (s *Sidecar) RepetitionTime() (float64, bool) {
	tr, ok := s.Fields["RepetitionTime"].(float64)
	return tr, ok
}

// Set stores value under key.
func (s *Sidecar) Set(key string, value any) {
	if s.Fields == nil {
		s.Fields = make(map[string]any)
	}
	s.Fields[key] = value
}

// Keys returns the field names in sorted order.
func (s *Sidecar) Keys() []string {
	keys := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BackupPath is where Save keeps the previous sidecar.
func (s *Sidecar) BackupPath() string {
	return s.Path + ".bak"
}

// Save writes the sidecar back to its path. With backup set, the current
// file is copied to BackupPath first; an existing backup is not replaced.
func (s *Sidecar) Save(backup bool) error {
	if backup {
		if err := s.backup(); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(s.Fields, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.Path, err)
	}

	return qcio.WriteFileAtomic(s.Path, append(data, '\n'), 0644)
}

func (s *Sidecar) backup() error {
	if _, err := os.Stat(s.BackupPath()); err == nil {
		return nil
	}

	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	return qcio.WriteFileAtomic(s.BackupPath(), data, 0644)
}
