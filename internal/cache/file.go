package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/i474232898/beach-weather-cache/internal/weather"
)

const staleLockAge = time.Minute

// FileStore keeps the cache in a single JSON file. Its version is a hash of
// the file contents. Saves are serialized across processes with a lock file
// and published with an atomic rename.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	data, version, err := s.read()
	if err != nil {
		return Snapshot{}, err
	}
	c, err := weather.DecodeCache(data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return Snapshot{Cache: c, Version: version}, nil
}

func (s *FileStore) Save(ctx context.Context, c weather.Cache, expectedVersion string) (string, error) {
	data, err := c.Encode()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return "", err
	}
	defer unlock()

	_, current, err := s.read()
	if err != nil {
		return "", err
	}
	if current != expectedVersion {
		return "", fmt.Errorf("%w: have %q, expected %q", ErrConflict, current, expectedVersion)
	}

	if err := writeAtomic(s.path, data); err != nil {
		return "", err
	}
	return contentVersion(data), nil
}

// read returns the file contents and version; a missing file is empty with
// version "".
func (s *FileStore) read() ([]byte, string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("read %s: %w", s.path, err)
	}
	return data, contentVersion(data), nil
}

// restore puts data back as the file contents; nil removes the file.
func (s *FileStore) restore(data []byte) error {
	if data == nil {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	return writeAtomic(s.path, data)
}

func (s *FileStore) lock(ctx context.Context) (func(), error) {
	lockPath := s.path + ".lock"
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("acquire %s: %w", lockPath, err)
		}
		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > staleLockAge {
			os.Remove(lockPath)
			continue
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire %s: %w", lockPath, ctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cache: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp cache: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("publish cache: %w", err)
	}
	return nil
}
