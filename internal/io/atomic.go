package io

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// TempPath returns a hidden sibling of dst that keeps dst's file name as a
// suffix, so extension-sensitive writers (".nii.gz") behave the same.
func TempPath(dst string) string {
	dir, base := filepath.Split(dst)
	return filepath.Join(dir, fmt.Sprintf(".%s.%s", uuid.NewString(), base))
}

// WriteAtomic calls write with a temporary path next to dst and renames the
// result over dst. On any failure the temporary file is removed and dst is
// left as it was.
func WriteAtomic(dst string, write func(tmpPath string) error) (err error) {
	if dir := filepath.Dir(dst); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory for %s: %w", dst, err)
		}
	}

	tmp := TempPath(dst)
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if _, err = os.Stat(tmp); err != nil {
		return fmt.Errorf("writer produced no file for %s: %w", dst, err)
	}
	if err = os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("move %s into place: %w", dst, err)
	}

	return nil
}

// WriteFileAtomic writes data to path through WriteAtomic.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return WriteAtomic(path, func(tmp string) error {
		return os.WriteFile(tmp, data, perm)
	})
}
