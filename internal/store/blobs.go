// Package store persists GRIB files: raw bytes on disk, metadata in a SQLite
// catalog. The two are written together; a failed blob write leaves no
// catalog row.
package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Blobs stores raw GRIB file bytes on disk, one file per ID.
type Blobs struct {
	dir string
}

// NewBlobs creates the storage directory if needed.
func NewBlobs(dir string) (*Blobs, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Blobs{dir: dir}, nil
}

// Dir returns the storage directory.
func (b *Blobs) Dir() string {
	return b.dir
}

// Path returns the on-disk location for a file ID.
func (b *Blobs) Path(id string) string {
	return filepath.Join(b.dir, id+".grib2")
}

// Save streams r to disk under the given ID. The write goes through a temp
// file and a rename so a crashed upload never leaves a partial blob at the
// final path. Returns the number of bytes written.
func (b *Blobs) Save(id string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(b.dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.Path(id)); err != nil {
		return 0, fmt.Errorf("finalize blob: %w", err)
	}
	return n, nil
}

// Open opens the blob for reading.
func (b *Blobs) Open(id string) (*os.File, error) {
	f, err := os.Open(b.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

// Delete removes the blob. Missing blobs are not an error so delete stays
// idempotent when a previous attempt removed the file but not the catalog row.
func (b *Blobs) Delete(id string) error {
	if err := os.Remove(b.Path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
