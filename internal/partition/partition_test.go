package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRangeCoversWorkSetWithoutOverlap(t *testing.T) {
	for total := 0; total <= 120; total++ {
		for size := 1; size <= 17; size++ {
			count := Count(total, size)
			seen := make([]int, total)
			for i := 0; i < count; i++ {
				start, end := Range(total, size, i)
				require.LessOrEqual(t, start, end)
				for j := start; j < end; j++ {
					seen[j]++
				}
			}
			for j, n := range seen {
				require.Equalf(t, 1, n, "total=%d size=%d index %d covered %d times", total, size, j, n)
			}
		}
	}
}

func TestRangePastLastBatchIsEmpty(t *testing.T) {
	for _, tc := range []struct{ total, size int }{{311, 51}, {311, 45}, {10, 3}, {1, 1}, {0, 5}} {
		count := Count(tc.total, tc.size)
		for i := count; i < count+5; i++ {
			start, end := Range(tc.total, tc.size, i)
			assert.Equal(t, start, end, "total=%d size=%d index=%d", tc.total, tc.size, i)
			assert.True(t, Empty(tc.total, tc.size, i))
		}
	}
}

func TestBeachScenarios(t *testing.T) {
	assert.Equal(t, 7, Count(311, 51))
	start, end := Range(311, 51, 6)
	assert.Equal(t, 306, start)
	assert.Equal(t, 311, end)
	require.NoError(t, Check(311, 51, 7))

	assert.Equal(t, 7, Count(311, 45))
	start, end = Range(311, 45, 6)
	assert.Equal(t, 270, start)
	assert.Equal(t, 311, end)
	require.NoError(t, Check(311, 45, 7))

	start, end = Range(311, 51, 2)
	assert.Equal(t, 102, start)
	assert.Equal(t, 153, end)
}

func TestCheck(t *testing.T) {
	assert.ErrorIs(t, Check(311, 51, 6), ErrInconsistent)
	assert.ErrorIs(t, Check(311, 51, 8), ErrInconsistent)
	assert.ErrorIs(t, Check(311, 0, 7), ErrInvalidSize)
	assert.NoError(t, Check(0, 10, 0))
}

func TestRangeInvalidInput(t *testing.T) {
	start, end := Range(100, 0, 0)
	assert.Equal(t, 0, start)
	assert.Equal(t, 0, end)

	start, end = Range(100, 10, -1)
	assert.Equal(t, start, end)
}
