package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/i474232898/beach-weather-cache/internal/logger"
	"github.com/i474232898/beach-weather-cache/internal/weather"
)

// Outcome of a commit.
type Outcome string

const (
	OutcomeNoop    Outcome = "noop"
	OutcomeWritten Outcome = "written"
)

const DefaultMaxAttempts = 3

type CommitOptions struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

type CommitResult struct {
	Outcome  Outcome `json:"outcome"`
	Attempts int     `json:"attempts"`
	Version  string  `json:"version"`
	Changed  int     `json:"changed"`
	// Rebased is set when the store had advanced past base and this run's
	// changes were overlaid on the newer state.
	Rebased bool `json:"rebased"`
}

// Commit persists combined, which was built on top of base. It re-reads the
// store first: if the store still holds base, combined is written as is;
// otherwise the entries combined changed relative to base are overlaid on
// the store's current state. Nothing is written when the candidate encodes
// identically to what the store holds. Version conflicts are retried up to
// MaxAttempts times; any other failure is wrapped in ErrUnwritable.
func Commit(ctx context.Context, store Store, base Snapshot, combined weather.Cache, opts CommitOptions) (CommitResult, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	changes := combined.Diff(base.Cache)

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		remote, err := store.Load(ctx)
		if err != nil {
			return CommitResult{Attempts: attempt}, fmt.Errorf("%w: reload: %w", ErrUnwritable, err)
		}

		candidate := combined
		rebased := remote.Version != base.Version
		if rebased {
			candidate = remote.Cache.Clone()
			for k, v := range changes {
				candidate[k] = v
			}
			logger.Infof("cache advanced from %q to %q, overlaying %d changed entries", base.Version, remote.Version, len(changes))
		}

		same, err := encodesEqual(candidate, remote.Cache)
		if err != nil {
			return CommitResult{Attempts: attempt}, fmt.Errorf("%w: %w", ErrUnwritable, err)
		}
		if same {
			return CommitResult{Outcome: OutcomeNoop, Attempts: attempt, Version: remote.Version, Rebased: rebased}, nil
		}

		version, err := store.Save(ctx, candidate, remote.Version)
		if err == nil {
			return CommitResult{
				Outcome:  OutcomeWritten,
				Attempts: attempt,
				Version:  version,
				Changed:  len(candidate.Diff(remote.Cache)),
				Rebased:  rebased,
			}, nil
		}
		if !errors.Is(err, ErrConflict) {
			return CommitResult{Attempts: attempt}, fmt.Errorf("%w: %w", ErrUnwritable, err)
		}

		lastErr = err
		logger.Warnf("commit attempt %d/%d conflicted: %v", attempt, opts.MaxAttempts, err)
		if opts.RetryDelay > 0 && attempt < opts.MaxAttempts {
			select {
			case <-ctx.Done():
				return CommitResult{Attempts: attempt}, fmt.Errorf("%w: %w", ErrUnwritable, ctx.Err())
			case <-time.After(opts.RetryDelay):
			}
		}
	}

	return CommitResult{Attempts: opts.MaxAttempts}, fmt.Errorf("%w: gave up after %d attempts: %w", ErrUnwritable, opts.MaxAttempts, lastErr)
}

func encodesEqual(a, b weather.Cache) (bool, error) {
	ea, err := a.Encode()
	if err != nil {
		return false, err
	}
	eb, err := b.Encode()
	if err != nil {
		return false, err
	}
	return bytes.Equal(ea, eb), nil
}
