package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"snapgate/pkg/snapshot"
)

// FileStore implements Store with one JSON file per snapshot under baseDir.
type FileStore struct {
	baseDir string
	fs      FS
}

// NewFileStore creates a file-backed store. A nil fsys means the local disk.
func NewFileStore(baseDir string, fsys FS) *FileStore {
	if fsys == nil {
		fsys = NewOSFS()
	}
	return &FileStore{baseDir: baseDir, fs: fsys}
}

// BaseDir returns the snapshot root directory.
func (s *FileStore) BaseDir() string {
	return s.baseDir
}

func (s *FileStore) Locate(host, path, fingerprint string) string {
	return Locate(s.baseDir, host, path, fingerprint)
}

// Read loads the snapshot at location.
// Missing file -> ErrNotFound; unparseable file -> *ParseError.
func (s *FileStore) Read(ctx context.Context, location string) (*snapshot.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	ok, err := s.fs.Exists(location)
	if err != nil {
		return nil, fmt.Errorf("store: stat %s: %w", location, err)
	}
	if !ok {
		return nil, ErrNotFound
	}

	data, err := s.fs.ReadFile(location)
	if err != nil {
		// Removed between the existence check and the read.
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: read %s: %w", location, err)
	}

	snap, err := snapshot.Unmarshal(data)
	if err != nil {
		return nil, &ParseError{Location: location, Err: err}
	}
	return snap, nil
}

// Write persists snap at location, creating parent directories as needed.
func (s *FileStore) Write(ctx context.Context, location string, snap *snapshot.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	data, err := snapshot.Marshal(snap)
	if err != nil {
		return err
	}

	if err := s.fs.MkdirAll(filepath.Dir(location)); err != nil {
		return fmt.Errorf("store: mkdir %s: %w", filepath.Dir(location), err)
	}
	if err := s.fs.WriteFile(location, data); err != nil {
		return err
	}
	return nil
}
