package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	id string
	at time.Time
}

func (e entry) Timestamp() time.Time { return e.at }

func TestMemoryStoreRetentionByCount(t *testing.T) {
	s := NewMemoryStore[entry](2, 0)
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		s.Save(entry{id: id, at: base.Add(time.Duration(i) * time.Minute)})
	}

	assert.Equal(t, 2, s.Len())
	latest, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(t, "c", latest.id)

	got, err := s.Range(base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "b", got[0].id)
}

func TestMemoryStoreRetentionByAge(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore[entry](0, 24*time.Hour)
	s.now = func() time.Time { return now }

	s.Save(entry{id: "old", at: now.Add(-48 * time.Hour)})
	assert.Equal(t, 1, s.Len(), "newest entry is kept even when old")

	s.Save(entry{id: "new", at: now})
	assert.Equal(t, 1, s.Len())
	latest, _ := s.Latest()
	assert.Equal(t, "new", latest.id)
}

func TestMemoryStoreEmpty(t *testing.T) {
	s := NewMemoryStore[entry](10, time.Hour)
	_, err := s.Latest()
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Range(time.Time{}, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}
