package weather

import (
	"context"
	"errors"
	"time"

	"github.com/i474232898/beach-weather-cache/internal/beach"
)

// Item-level failure classes. Source implementations wrap one of these so the
// batch worker can tell why an item was skipped.
var (
	ErrNotFound    = errors.New("no weather data for location")
	ErrRateLimited = errors.New("rate limited")
	ErrTimeout     = errors.New("timed out")
)

// Skip reasons reported for items that produced no record.
const (
	ReasonNotFound    = "not_found"
	ReasonRateLimited = "rate_limited"
	ReasonTimeout     = "timeout"
	ReasonError       = "error"
)

// Classify maps an item error to its skip reason.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrRateLimited):
		return ReasonRateLimited
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonError
	}
}

// Reading is one source's contribution for a beach. Sources fill only the
// fields they know about.
type Reading struct {
	Source    string
	Timestamp time.Time

	AirTemp       *float64
	WindSpeed     *float64
	WindDirection *float64
	WaveHeight    *float64
	WaveDirection *float64
	WavePeriod    *float64
	SeaTemp       *float64
	Condition     Condition
}

// Source abstracts one weather data source (forecast, marine, sea surface temperature).
type Source interface {
	Name() string
	Fetch(ctx context.Context, b beach.Beach) (Reading, error)
}

// Fetcher produces a full Record for a beach.
type Fetcher interface {
	Fetch(ctx context.Context, b beach.Beach) (Record, error)
}
