// Package aggregate merges the partial caches of one run on top of the
// previous combined cache.
package aggregate

import (
	"bytes"
	"errors"
	"sort"

	"github.com/i474232898/beach-weather-cache/internal/logger"
	"github.com/i474232898/beach-weather-cache/internal/partial"
	"github.com/i474232898/beach-weather-cache/internal/weather"
)

// Report describes what a merge found and did.
type Report struct {
	Discovered int         `json:"discovered"`
	Entries    map[int]int `json:"entries_per_batch"`
	Empty      []int       `json:"empty_batches,omitempty"`
	Corrupt    []string    `json:"corrupt_artifacts,omitempty"`
	Duplicate  []int       `json:"duplicate_batches,omitempty"`
	Missing    []int       `json:"missing_batches,omitempty"`
	Merged     int         `json:"merged"`
	Total      int         `json:"total"`
	Unchanged  bool        `json:"unchanged"`
}

// Aggregate applies the decoded artifacts to a copy of previous in ascending
// batch-index order, so a key present in several batches ends up with the
// record from the highest batch index. Empty or undecodable artifacts are
// skipped and reported. Of several artifacts for one batch index, one with
// entries beats an empty one, then the smallest name wins, so discovery order
// never changes the result. When expected > 0, batch indexes in
// [0, expected) with no artifact are reported missing. previous is never
// modified.
func Aggregate(artifacts []partial.Raw, previous weather.Cache, expected int) (weather.Cache, Report) {
	report := Report{Discovered: len(artifacts), Entries: map[int]int{}}

	sorted := append([]partial.Raw(nil), artifacts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return bytes.Compare(sorted[i].Data, sorted[j].Data) < 0
	})

	byIndex := make(map[int]weather.Cache, len(sorted))
	for _, raw := range sorted {
		idx := raw.BatchIndex
		var entries weather.Cache

		a, err := partial.Decode(raw.Data)
		switch {
		case errors.Is(err, partial.ErrEmpty) && idx >= 0:
			entries = weather.Cache{}
		case err != nil:
			logger.Warnf("skipping corrupt artifact %s: %v", raw.Name, err)
			report.Corrupt = append(report.Corrupt, raw.Name)
			continue
		default:
			if idx < 0 {
				idx = a.BatchIndex
			}
			if idx < 0 {
				logger.Warnf("skipping artifact %s with no batch index", raw.Name)
				report.Corrupt = append(report.Corrupt, raw.Name)
				continue
			}
			entries = a.Entries
		}

		kept, seen := byIndex[idx]
		if !seen {
			byIndex[idx] = entries
			continue
		}
		report.Duplicate = append(report.Duplicate, idx)
		if len(kept) == 0 && len(entries) > 0 {
			byIndex[idx] = entries
		}
	}

	for idx, entries := range byIndex {
		if len(entries) == 0 {
			report.Empty = append(report.Empty, idx)
		}
	}

	for i := 0; i < expected; i++ {
		if _, ok := byIndex[i]; !ok {
			report.Missing = append(report.Missing, i)
		}
	}

	indexes := make([]int, 0, len(byIndex))
	for idx := range byIndex {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	sort.Ints(report.Empty)
	sort.Ints(report.Duplicate)

	if previous == nil {
		previous = weather.Cache{}
	}

	result := previous.Clone()
	for _, idx := range indexes {
		entries := byIndex[idx]
		report.Entries[idx] = len(entries)
		for key, rec := range entries {
			result[key] = rec
			report.Merged++
		}
	}

	report.Total = len(result)
	report.Unchanged = result.Equal(previous)
	if report.Unchanged {
		return previous, report
	}
	return result, report
}
