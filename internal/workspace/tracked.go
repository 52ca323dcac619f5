package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	apperrors "sbvc/internal/errors"
)

// StoreExt is the extension of store files created next to a tracked file.
const StoreExt = ".sbvc"

// TrackedFile reads and overwrites the file under version control with
// whole-file I/O.
type TrackedFile struct {
	path string
}

func NewTrackedFile(path string) *TrackedFile {
	return &TrackedFile{path: path}
}

func (f *TrackedFile) Path() string {
	return f.path
}

func (f *TrackedFile) Read() ([]byte, error) {
	content, err := os.ReadFile(f.path)
	if err != nil {
		return nil, apperrors.IO(fmt.Sprintf("reading tracked file %s", f.path), err)
	}
	return content, nil
}

// Write replaces the file content, keeping its permission bits when the file
// already exists.
func (f *TrackedFile) Write(content []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(f.path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(f.path, content, mode); err != nil {
		return apperrors.IO(fmt.Sprintf("writing tracked file %s", f.path), err)
	}
	return nil
}

func (f *TrackedFile) Exists() bool {
	info, err := os.Stat(f.path)
	return err == nil && !info.IsDir()
}

// DefaultStorePath returns the store path used for a tracked file when none
// is given: the file path with its extension replaced by StoreExt.
func DefaultStorePath(trackedFile string) string {
	ext := filepath.Ext(trackedFile)
	return trackedFile[:len(trackedFile)-len(ext)] + StoreExt
}

// FindStore returns the single store file in dir.
func FindStore(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*"+StoreExt))
	if err != nil {
		return "", err
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return "", apperrors.NotFound(fmt.Sprintf("no %s store in %s", StoreExt, dir), nil)
	case 1:
		return matches[0], nil
	default:
		return "", apperrors.ValidationError(
			fmt.Sprintf("%d stores in %s, pick one with --store", len(matches), dir))
	}
}
