// Package partition splits an ordered work set into fixed-size, contiguous batches.
//
// All functions are pure: batch boundaries depend only on the total item count,
// the batch size and the batch index, so independent processes computing the
// same batch agree on its range without coordination.
package partition

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSize is returned when the batch size is not positive.
	ErrInvalidSize = errors.New("batch size must be positive")
	// ErrInconsistent is returned when a batch count does not match total and size.
	ErrInconsistent = errors.New("batch count inconsistent with batch size")
)

// Range returns the half-open index range [start, end) of batch index.
// Indexes past the last batch (and negative indexes) yield an empty range
// with start == end.
func Range(total, size, index int) (start, end int) {
	if size <= 0 || total <= 0 || index < 0 {
		return 0, 0
	}
	start = index * size
	if start >= total {
		return total, total
	}
	end = start + size
	if end > total {
		end = total
	}
	return start, end
}

// Count returns the number of batches needed to cover total items: ceil(total/size).
func Count(total, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// Check verifies that count batches of size items exactly cover total items,
// i.e. count*size >= total and (count-1)*size < total.
func Check(total, size, count int) error {
	if size <= 0 {
		return ErrInvalidSize
	}
	if want := Count(total, size); count != want {
		return fmt.Errorf("%w: %d items of size %d need %d batches, got %d", ErrInconsistent, total, size, want, count)
	}
	return nil
}

// Empty reports whether batch index holds no items.
func Empty(total, size, index int) bool {
	start, end := Range(total, size, index)
	return start == end
}
