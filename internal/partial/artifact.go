// Package partial holds the per-batch artifacts written by batch workers and
// read back by the aggregator. Artifacts are write-once per (run, batch).
package partial

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/i474232898/beach-weather-cache/internal/weather"
)

var (
	ErrAlreadyWritten = errors.New("partial artifact already written")
	ErrEmpty          = errors.New("partial artifact is empty")
	ErrInvalidRunID   = errors.New("invalid run id")
)

// Artifact is one batch worker's output.
type Artifact struct {
	RunID      string        `json:"run_id"`
	BatchIndex int           `json:"batch_index"`
	CreatedAt  time.Time     `json:"created_at"`
	Entries    weather.Cache `json:"entries"`
}

// Raw is an artifact as found in a store, before decoding. BatchIndex comes
// from the artifact's address and is -1 when the address could not be parsed.
type Raw struct {
	Name       string
	BatchIndex int
	Data       []byte
}

// Store persists artifacts. Put must not overwrite an existing artifact.
type Store interface {
	Put(ctx context.Context, a Artifact) error
	List(ctx context.Context, runID string) ([]Raw, error)
	Purge(ctx context.Context, olderThan time.Duration) (int, error)
}

// Encode serializes the artifact with the same stable layout as the combined cache.
func (a Artifact) Encode() ([]byte, error) {
	if a.Entries == nil {
		a.Entries = weather.Cache{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a); err != nil {
		return nil, fmt.Errorf("encode artifact %s/%d: %w", a.RunID, a.BatchIndex, err)
	}
	return buf.Bytes(), nil
}

// Decode parses an artifact. Zero-length input returns ErrEmpty.
func Decode(data []byte) (Artifact, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Artifact{}, ErrEmpty
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return Artifact{}, fmt.Errorf("decode artifact: %w", err)
	}
	if a.Entries == nil {
		a.Entries = weather.Cache{}
	}
	return a, nil
}

func checkRunID(runID string) error {
	if runID == "" {
		return ErrInvalidRunID
	}
	for _, r := range runID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
		}
	}
	if runID == "." || runID == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}
	return nil
}

func artifactName(batchIndex int) string {
	return fmt.Sprintf("batch-%05d.json", batchIndex)
}

func parseArtifactName(name string) int {
	var idx int
	if _, err := fmt.Sscanf(name, "batch-%d.json", &idx); err != nil || idx < 0 {
		return -1
	}
	return idx
}
