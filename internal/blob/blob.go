// Package blob stores media binaries as content-addressed files.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Handle identifies a stored binary. Handles are opaque hex digests.
type Handle = string

// Store is a content-addressable file store rooted at a single directory.
type Store struct {
	root string
}

// NewStore opens (creating if needed) a blob store rooted at dir.
func NewStore(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("blob store: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob store: create root: %w", err)
	}
	return &Store{root: dir}, nil
}

// Put streams content into the store and returns its handle. Identical
// content yields the same handle; duplicates are not rewritten.
func (s *Store) Put(reader io.Reader) (Handle, int64, error) {
	temp, err := os.CreateTemp(s.root, "incoming-*")
	if err != nil {
		return "", 0, fmt.Errorf("blob store: create temp: %w", err)
	}
	tempPath := temp.Name()
	defer func() {
		_ = temp.Close()
		_ = os.Remove(tempPath)
	}()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(temp, hasher), reader)
	if err != nil {
		return "", 0, fmt.Errorf("blob store: write content: %w", err)
	}
	if err := temp.Close(); err != nil {
		return "", 0, fmt.Errorf("blob store: close temp: %w", err)
	}

	handle := hex.EncodeToString(hasher.Sum(nil))
	finalPath := s.pathFor(handle)
	if _, err := os.Stat(finalPath); err == nil {
		return handle, written, nil
	}
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return "", 0, fmt.Errorf("blob store: create shard dir: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return "", 0, fmt.Errorf("blob store: commit content: %w", err)
	}
	return handle, written, nil
}

// PutFile stores the file at path and returns its handle and size.
func (s *Store) PutFile(path string) (Handle, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("blob store: open source: %w", err)
	}
	defer file.Close()
	return s.Put(file)
}

// Open returns a reader over the stored content.
func (s *Store) Open(handle Handle) (io.ReadCloser, error) {
	file, err := os.Open(s.pathFor(handle))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("blob store: unknown handle %s", shortHandle(handle))
		}
		return nil, fmt.Errorf("blob store: open blob: %w", err)
	}
	return file, nil
}

// Path returns the on-disk location for a handle, verifying it exists.
// Transform tools (ffmpeg) need a real file path rather than a stream.
func (s *Store) Path(handle Handle) (string, error) {
	path := s.pathFor(handle)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("blob store: unknown handle %s", shortHandle(handle))
		}
		return "", fmt.Errorf("blob store: stat blob: %w", err)
	}
	return path, nil
}

// Size returns the stored content length in bytes.
func (s *Store) Size(handle Handle) (int64, error) {
	info, err := os.Stat(s.pathFor(handle))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("blob store: unknown handle %s", shortHandle(handle))
		}
		return 0, fmt.Errorf("blob store: stat blob: %w", err)
	}
	return info.Size(), nil
}

// Remove deletes stored content. Removing an unknown handle is not an error.
func (s *Store) Remove(handle Handle) error {
	err := os.Remove(s.pathFor(handle))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blob store: remove blob: %w", err)
	}
	return nil
}

// ScopedTemp creates a temporary file path with the given suffix and returns
// a cleanup function that must run on every exit path.
func (s *Store) ScopedTemp(suffix string) (string, func(), error) {
	temp, err := os.CreateTemp(s.root, "scoped-*"+suffix)
	if err != nil {
		return "", nil, fmt.Errorf("blob store: create scoped temp: %w", err)
	}
	path := temp.Name()
	if err := temp.Close(); err != nil {
		_ = os.Remove(path)
		return "", nil, fmt.Errorf("blob store: close scoped temp: %w", err)
	}
	cleanup := func() {
		_ = os.Remove(path)
	}
	return path, cleanup, nil
}

func (s *Store) pathFor(handle Handle) string {
	handle = strings.TrimSpace(handle)
	if len(handle) < 4 {
		return filepath.Join(s.root, "invalid", handle)
	}
	return filepath.Join(s.root, handle[:2], handle)
}

func shortHandle(handle Handle) string {
	if len(handle) > 12 {
		return handle[:12]
	}
	return handle
}
