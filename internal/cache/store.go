// Package cache persists the combined beach weather cache and commits new
// runs on top of it with optimistic concurrency.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/i474232898/beach-weather-cache/internal/weather"
)

var (
	// ErrConflict is returned by Save when the stored version no longer
	// matches the expected one.
	ErrConflict = errors.New("cache store advanced since last read")
	// ErrUnwritable marks failures that retrying cannot fix.
	ErrUnwritable = errors.New("cache store unwritable")
)

// Snapshot is the cache as read from a store together with the version
// token that a later Save must present. An empty version means the store
// holds nothing yet.
type Snapshot struct {
	Cache   weather.Cache
	Version string
}

// Store is a durable home for the combined cache.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, c weather.Cache, expectedVersion string) (string, error)
}

func contentVersion(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:12])
}
