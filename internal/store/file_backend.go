package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	apperrors "sbvc/internal/errors"
)

const fileHeader = "sbvc-store 1\n"

// FileBackend keeps the whole state in one file, rewritten through a
// temporary file and a rename.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Load() (*State, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NotFound(fmt.Sprintf("store %s", b.path), err)
		}
		return nil, apperrors.IO("reading store", err)
	}

	if !bytes.HasPrefix(data, []byte(fileHeader)) {
		return nil, apperrors.MalformedStore("bad header in %s", b.path)
	}

	dec := json.NewDecoder(bytes.NewReader(data[len(fileHeader):]))
	dec.DisallowUnknownFields()

	var state State
	if err := dec.Decode(&state); err != nil {
		return nil, apperrors.MalformedStore("decoding %s: %v", b.path, err)
	}
	var trailing json.RawMessage
	if err := dec.Decode(&trailing); err != io.EOF {
		return nil, apperrors.MalformedStore("trailing data in %s", b.path)
	}

	return &state, nil
}

func (b *FileBackend) Save(state *State) error {
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(fileHeader) + len(body) + 1)
	buf.WriteString(fileHeader)
	buf.Write(body)
	buf.WriteByte('\n')

	dir := filepath.Dir(b.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return apperrors.IO("creating temporary store file", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		cleanup()
		return apperrors.IO("writing temporary store file", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return apperrors.IO("syncing temporary store file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return apperrors.IO("closing temporary store file", err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		os.Remove(tmpPath)
		return apperrors.IO("replacing store file", err)
	}

	// Make the rename itself durable. Not every platform can sync a directory.
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

// Exists reports whether something already occupies the store path.
func (b *FileBackend) Exists() (bool, error) {
	_, err := os.Lstat(b.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, apperrors.IO("checking store path", err)
}

func (b *FileBackend) Close() error {
	return nil
}
