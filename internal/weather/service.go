package weather

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/i474232898/beach-weather-cache/internal/beach"
	"github.com/i474232898/beach-weather-cache/internal/logger"
)

// ErrNoSources is returned when a Service has nothing to fetch from.
var ErrNoSources = errors.New("no weather sources configured")

// Service fetches from all sources concurrently for a beach and combines the
// successful readings into a Record. It implements Fetcher.
type Service struct {
	sources []Source
	now     func() time.Time
}

// NewService creates a new Service. Source order decides which source wins
// when two of them report the same measurement.
func NewService(sources []Source) *Service {
	return &Service{
		sources: sources,
		now:     time.Now,
	}
}

// Fetch returns a Record as long as at least one source succeeded. When all
// fail, the error of the first source is returned so callers can classify it.
func (s *Service) Fetch(ctx context.Context, b beach.Beach) (Record, error) {
	if len(s.sources) == 0 {
		return Record{}, ErrNoSources
	}

	var (
		wg       sync.WaitGroup
		readings = make([]Reading, len(s.sources))
		errs     = make([]error, len(s.sources))
	)

	for i, src := range s.sources {
		wg.Add(1)
		go func() {
			defer wg.Done()

			r, err := src.Fetch(ctx, b)
			if err != nil {
				// Log and continue; we want partial success when possible.
				logger.Debugf("source %s fetch failed for %s: %v", src.Name(), b.Name, err)
				errs[i] = err
				return
			}
			readings[i] = r
		}()
	}

	wg.Wait()

	var ok []Reading
	for i, r := range readings {
		if errs[i] == nil {
			ok = append(ok, r)
		}
	}

	if len(ok) == 0 {
		if ctx.Err() != nil {
			return Record{}, fmt.Errorf("%w: %s: %v", ErrTimeout, b.Name, ctx.Err())
		}
		return Record{}, fmt.Errorf("all sources failed for %s: %w", b.Name, errs[0])
	}

	return CombineReadings(b, ok, s.now()), nil
}
