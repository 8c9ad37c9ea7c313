package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned for names escaping the storage root.
var ErrInvalidPath = fmt.Errorf("invalid storage path")

// LocalStorage persists files on disk under a base directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("storage base directory required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Dir returns the root directory, used to mount static file servers.
func (s *LocalStorage) Dir() string {
	return s.baseDir
}

// Save writes the given bytes to the relative name, replacing any existing file atomically.
func (s *LocalStorage) Save(name string, data []byte) (string, error) {
	path, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare storage directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()           //nolint:errcheck
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", fmt.Errorf("replace file: %w", err)
	}
	return name, nil
}

// SaveStream copies from reader into the target file, failing when more than limit bytes arrive.
// A non-positive limit disables the check.
func (s *LocalStorage) SaveStream(name string, r io.Reader, limit int64) (int64, error) {
	path, err := s.resolve(name)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("prepare storage directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	written, err := io.Copy(file, src)
	if err != nil {
		os.Remove(path) //nolint:errcheck
		return 0, fmt.Errorf("write stream: %w", err)
	}
	if limit > 0 && written > limit {
		os.Remove(path) //nolint:errcheck
		return 0, ErrTooLarge
	}
	return written, nil
}

// ErrTooLarge signals that a stream exceeded the allowed size.
var ErrTooLarge = fmt.Errorf("file exceeds size limit")

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(name string) (*os.File, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return file, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (s *LocalStorage) resolve(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if name == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.baseDir, clean), nil
}
