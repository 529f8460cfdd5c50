package partial

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/i474232898/beach-weather-cache/internal/logger"
)

// FileStore keeps artifacts under <dir>/<run id>/batch-NNNNN.json.
type FileStore struct {
	dir string
	now func() time.Time
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create partial dir: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

// Put writes the artifact to a temp file and hard-links it into place, so a
// reader never sees a half-written artifact and a second writer for the same
// batch gets ErrAlreadyWritten.
func (s *FileStore) Put(ctx context.Context, a Artifact) error {
	if err := checkRunID(a.RunID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := a.Encode()
	if err != nil {
		return err
	}

	runDir := filepath.Join(s.dir, a.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	tmp, err := os.CreateTemp(runDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp artifact: %w", err)
	}

	final := filepath.Join(runDir, artifactName(a.BatchIndex))
	if err := os.Link(tmpName, final); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrAlreadyWritten, final)
		}
		return fmt.Errorf("publish artifact: %w", err)
	}
	return nil
}

// List returns every artifact of a run ordered by name. A missing run
// directory yields no artifacts.
func (s *FileStore) List(ctx context.Context, runID string) ([]Raw, error) {
	if err := checkRunID(runID); err != nil {
		return nil, err
	}

	runDir := filepath.Join(s.dir, runID)
	entries, err := os.ReadDir(runDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list run %s: %w", runID, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]Raw, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(runDir, name))
		if err != nil {
			// Unreadable artifacts are reported with no data and treated as empty.
			logger.Warnf("read artifact %s/%s: %v", runID, name, err)
			data = nil
		}
		out = append(out, Raw{Name: name, BatchIndex: parseArtifactName(name), Data: data})
	}
	return out, nil
}

// Purge removes run directories last modified more than olderThan ago.
func (s *FileStore) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("list partial dir: %w", err)
	}

	cutoff := s.now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			logger.Warnf("purge run %s: %v", e.Name(), err)
			continue
		}
		removed++
	}
	return removed, nil
}
