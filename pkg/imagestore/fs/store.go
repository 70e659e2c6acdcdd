// Package fs provides the filesystem-backed image store, the default
// backend.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/iop-labs/profiled/pkg/imagestore"
)

// Store is a filesystem-backed implementation of imagestore.Store.
// Objects live under the sharded layout; writes stage into a separate
// temp directory on the same filesystem and commit by atomic rename.
type Store struct {
	mu       sync.RWMutex
	basePath string
	tempPath string
	fileMode os.FileMode
	dirMode  os.FileMode
	closed   bool
}

// Config holds configuration for the filesystem image store.
type Config struct {
	// BasePath is the root directory of the image layout.
	BasePath string

	// TempPath is the staging directory for uploads. Must be on the same
	// filesystem as BasePath for rename to be atomic.
	// Default: <BasePath>/.staging
	TempPath string

	// DirMode is the permission mode for created directories.
	// Default: 0755
	DirMode os.FileMode

	// FileMode is the permission mode for created files.
	// Default: 0644
	FileMode os.FileMode
}

// New creates a filesystem image store, creating the base and staging
// directories if needed.
func New(cfg Config) (*Store, error) {
	if cfg.BasePath == "" {
		return nil, errors.New("base path is required")
	}
	if cfg.TempPath == "" {
		cfg.TempPath = filepath.Join(cfg.BasePath, ".staging")
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = 0755
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0644
	}

	for _, dir := range []string{cfg.BasePath, cfg.TempPath} {
		if err := os.MkdirAll(dir, cfg.DirMode); err != nil {
			return nil, fmt.Errorf("failed to create image directory %q: %w", dir, err)
		}
	}

	return &Store{
		basePath: cfg.BasePath,
		tempPath: cfg.TempPath,
		fileMode: cfg.FileMode,
		dirMode:  cfg.DirMode,
	}, nil
}

// objectPath returns the full filesystem path of a hash.
func (s *Store) objectPath(hash []byte) (string, error) {
	key, err := imagestore.ObjectKey(hash)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(key)), nil
}

// Put stores data under its SHA256 address.
func (s *Store) Put(ctx context.Context, data []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, imagestore.ErrStoreClosed
	}

	hash := imagestore.HashOf(data)
	path, err := s.objectPath(hash)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), s.dirMode); err != nil {
		return nil, err
	}

	// Stage under a unique name, then rename into place. Concurrent puts
	// of the same bytes race benignly: both renames install identical
	// content.
	staged := filepath.Join(s.tempPath, uuid.NewString())
	if err := os.WriteFile(staged, data, s.fileMode); err != nil {
		return nil, err
	}
	if err := os.Rename(staged, path); err != nil {
		_ = os.Remove(staged)
		return nil, err
	}
	return hash, nil
}

// Get returns the bytes stored under hash.
func (s *Store) Get(ctx context.Context, hash []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, imagestore.ErrStoreClosed
	}

	path, err := s.objectPath(hash)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, imagestore.ErrImageNotFound
		}
		return nil, err
	}
	return data, nil
}

// Exists reports whether an object is stored under hash.
func (s *Store) Exists(ctx context.Context, hash []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, imagestore.ErrStoreClosed
	}

	path, err := s.objectPath(hash)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes the object under hash; missing objects are ignored.
func (s *Store) Delete(ctx context.Context, hash []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return imagestore.ErrStoreClosed
	}

	path, err := s.objectPath(hash)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Close marks the store closed and clears leftover staging files.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	entries, err := os.ReadDir(s.tempPath)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		_ = os.Remove(filepath.Join(s.tempPath, e.Name()))
	}
	return nil
}
