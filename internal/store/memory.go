package store

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when no entry matches a query.
	ErrNotFound = errors.New("no run history for query")
)

// Timestamped is anything that can be placed on a timeline.
type Timestamped interface {
	Timestamp() time.Time
}

// MemoryStore is a concurrency-safe in-memory history of entries ordered by
// insertion, bounded by count and by age.
type MemoryStore[T Timestamped] struct {
	mu      sync.RWMutex
	entries []T

	// retention configuration
	maxHistory int           // max number of entries kept
	maxAge     time.Duration // optional max age of entries

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore[T Timestamped](maxHistory int, maxAge time.Duration) *MemoryStore[T] {
	return &MemoryStore[T]{
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Save appends an entry and enforces retention.
func (s *MemoryStore[T]) Save(entry T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(s.entries) > s.maxHistory {
		over := len(s.entries) - s.maxHistory
		s.entries = append([]T(nil), s.entries[over:]...)
	}

	// Enforce retention by age. The newest entry is always kept.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		i := 0
		for ; i < len(s.entries)-1; i++ {
			if !s.entries[i].Timestamp().Before(cutoff) {
				break
			}
		}
		if i > 0 {
			s.entries = append([]T(nil), s.entries[i:]...)
		}
	}
}

// Latest returns the most recently saved entry.
func (s *MemoryStore[T]) Latest() (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var zero T
	if len(s.entries) == 0 {
		return zero, ErrNotFound
	}
	return s.entries[len(s.entries)-1], nil
}

// Range returns all entries with timestamps between from and to (inclusive).
func (s *MemoryStore[T]) Range(from, to time.Time) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []T
	for _, e := range s.entries {
		ts := e.Timestamp()
		if !ts.Before(from) && !ts.After(to) {
			result = append(result, e)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

// Len reports how many entries are retained.
func (s *MemoryStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
