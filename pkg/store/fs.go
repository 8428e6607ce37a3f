package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FS is the filesystem surface the file store needs.
type FS interface {
	Exists(path string) (bool, error)
	MkdirAll(path string) error
	ReadFile(path string) ([]byte, error)
	// WriteFile replaces path atomically: readers see the old content or
	// the new content, never a partial file.
	WriteFile(path string, data []byte) error
}

// OSFS is FS on the local disk.
type OSFS struct {
	DirPerm  fs.FileMode
	FilePerm fs.FileMode
}

// NewOSFS returns an OSFS with 0o755 directories and 0o644 files.
func NewOSFS() OSFS {
	return OSFS{DirPerm: 0o755, FilePerm: 0o644}
}

func (o OSFS) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (o OSFS) MkdirAll(path string) error {
	return os.MkdirAll(path, o.dirPerm())
}

func (o OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes into a sibling temp file and renames it over path.
func (o OSFS) WriteFile(path string, data []byte) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")

	if err := os.WriteFile(tmp, data, o.filePerm()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store: write tmp: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store: rename: %w", err)
	}
	return nil
}

func (o OSFS) dirPerm() fs.FileMode {
	if o.DirPerm == 0 {
		return 0o755
	}
	return o.DirPerm
}

func (o OSFS) filePerm() fs.FileMode {
	if o.FilePerm == 0 {
		return 0o644
	}
	return o.FilePerm
}
