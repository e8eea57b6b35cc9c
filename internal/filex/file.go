// Package filex holds helpers for the local upload staging area.
package filex

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrTooLarge is returned by Stage when the payload exceeds the limit.
var ErrTooLarge = errors.New("payload too large")

// EnsureSubdDir creates dirName under the working directory (or uses it as is
// when absolute) and returns its absolute path.
func EnsureSubdDir(dirName string) (string, error) {
	dir := dirName
	if !filepath.IsAbs(dir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getwd: %w", err)
		}
		dir = filepath.Join(cwd, dirName)
	}

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}

// StagedFile is a local copy of an upload. Close removes it from disk.
type StagedFile struct {
	*os.File
	Size int64
}

// Close closes and deletes the staged copy. It is safe to call twice.
func (f *StagedFile) Close() error {
	name := f.Name()
	closeErr := f.File.Close()
	if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove staged file: %w", err)
	}
	if closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		return closeErr
	}
	return nil
}

// Stage copies r into a new file under dir, rewinds it and returns it.
// Payloads larger than maxSize bytes (when maxSize > 0) fail with ErrTooLarge
// and leave nothing behind.
func Stage(dir string, r io.Reader, maxSize int64) (*StagedFile, error) {
	f, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("create staged file: %w", err)
	}
	staged := &StagedFile{File: f}

	src := r
	if maxSize > 0 {
		src = io.LimitReader(r, maxSize+1)
	}

	n, err := io.Copy(f, src)
	if err != nil {
		_ = staged.Close()
		return nil, fmt.Errorf("write staged file: %w", err)
	}
	if maxSize > 0 && n > maxSize {
		_ = staged.Close()
		return nil, ErrTooLarge
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = staged.Close()
		return nil, fmt.Errorf("rewind staged file: %w", err)
	}

	staged.Size = n
	return staged, nil
}
