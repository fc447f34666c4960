package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

func CopyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	return os.WriteFile(dst, data, 0644)
}

// MoveFile renames src into dir, creating dir when needed. It falls back to
// copy and remove when a rename across filesystems is rejected.
func MoveFile(src, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	dst := filepath.Join(dir, filepath.Base(src))
	if renameErr := os.Rename(src, dst); renameErr != nil {
		if copyErr := CopyFile(src, dst); copyErr != nil {
			return "", errors.Join(renameErr, copyErr)
		}
		if rmErr := os.Remove(src); rmErr != nil {
			return dst, rmErr
		}
	}
	return dst, nil
}

// WriteFileAtomic writes data to a temporary file next to path and renames it
// into place, so readers never observe a partially written file.
func WriteFileAtomic(path string, data []byte) (retErr error) {
	tmp, tmpErr := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if tmpErr != nil {
		return tmpErr
	}
	tmpName := tmp.Name()

	defer func() {
		if retErr != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, writeErr := tmp.Write(data); writeErr != nil {
		return errors.Join(writeErr, tmp.Close())
	}
	if closeErr := tmp.Close(); closeErr != nil {
		return closeErr
	}
	if chmodErr := os.Chmod(tmpName, 0644); chmodErr != nil {
		return chmodErr
	}
	return os.Rename(tmpName, path)
}
