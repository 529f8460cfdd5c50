package pipeline

import (
	"strings"
	"time"

	"github.com/i474232898/beach-weather-cache/internal/cache"
	"github.com/i474232898/beach-weather-cache/internal/logger"
)

// BatchStatus is the terminal state of one batch in an in-process run.
type BatchStatus string

const (
	BatchSucceeded BatchStatus = "succeeded"
	BatchFailed    BatchStatus = "failed"
	BatchTimedOut  BatchStatus = "timed_out"
)

type BatchOutcome struct {
	Index   int         `json:"index"`
	Status  BatchStatus `json:"status"`
	Fetched int         `json:"fetched"`
	Skipped int         `json:"skipped"`
	Error   string      `json:"error,omitempty"`
}

// Summary describes one run. It is logged at the end of every run, including
// degraded ones, and kept in the run history.
type Summary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Items      int `json:"items"`
	BatchSize  int `json:"batch_size"`
	BatchCount int `json:"batch_count"`

	Batches  []BatchOutcome `json:"batches,omitempty"`
	TimedOut []int          `json:"timed_out,omitempty"`
	Failed   []int          `json:"failed,omitempty"`

	Found   int      `json:"artifacts_found"`
	Merged  int      `json:"entries_merged"`
	Total   int      `json:"entries_total"`
	Missing []int    `json:"missing,omitempty"`
	Corrupt []string `json:"corrupt,omitempty"`

	Commit cache.CommitResult `json:"commit"`
	Error  string             `json:"error,omitempty"`
}

func (s Summary) Timestamp() time.Time {
	return s.FinishedAt
}

// Degraded reports whether any batch contributed nothing it should have.
func (s Summary) Degraded() bool {
	return len(s.TimedOut) > 0 || len(s.Failed) > 0 || len(s.Missing) > 0 || len(s.Corrupt) > 0 || s.Error != ""
}

func (s Summary) Log() {
	logf := logger.Infof
	if s.Degraded() {
		logf = logger.Warnf
	}
	logf("run %s: %d/%d batches found, %d entries merged, %d total, missing=%v corrupt=%v timed_out=%v failed=%v, commit=%s (attempts %d) in %s",
		s.RunID, s.Found, s.BatchCount, s.Merged, s.Total,
		s.Missing, s.Corrupt, s.TimedOut, s.Failed,
		outcomeOr(s.Commit.Outcome), s.Commit.Attempts,
		s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	if s.Error != "" {
		logger.Errorf("run %s: %s", s.RunID, strings.TrimSpace(s.Error))
	}
}

func outcomeOr(o cache.Outcome) string {
	if o == "" {
		return "none"
	}
	return string(o)
}
