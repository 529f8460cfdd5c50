package beach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kelvins/geocoder"
)

// ErrNoMatch is returned when no geocoding query produced a point inside the bounds.
var ErrNoMatch = errors.New("no geocoding match within bounds")

// Geocoder resolves coordinates for beaches that have none.
type Geocoder interface {
	Geocode(ctx context.Context, b Beach) (lat, lon float64, err error)
}

// Bounds limits accepted geocoding results to a bounding box.
type Bounds struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// GreeceBounds covers mainland Greece and the islands.
var GreeceBounds = Bounds{MinLat: 34.5, MaxLat: 42.0, MinLon: 19.0, MaxLon: 29.0}

func (b Bounds) contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// GoogleGeocoder geocodes through the Google Geocoding API, trying several
// progressively looser address variants and pacing requests.
type GoogleGeocoder struct {
	country  string
	bounds   Bounds
	minDelay time.Duration

	mu   sync.Mutex
	last time.Time

	lookup func(geocoder.Address) (geocoder.Location, error)
}

var apiKeyOnce sync.Once

// NewGoogleGeocoder configures the geocoder package with apiKey.
func NewGoogleGeocoder(apiKey, country string, bounds Bounds) *GoogleGeocoder {
	apiKeyOnce.Do(func() { geocoder.ApiKey = apiKey })
	return &GoogleGeocoder{
		country:  country,
		bounds:   bounds,
		minDelay: 1500 * time.Millisecond,
		lookup:   geocoder.Geocoding,
	}
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, b Beach) (float64, float64, error) {
	for _, addr := range g.queries(b) {
		if err := g.wait(ctx); err != nil {
			return 0, 0, err
		}
		loc, err := g.lookup(addr)
		if err != nil {
			continue
		}
		if g.bounds.contains(loc.Latitude, loc.Longitude) {
			return loc.Latitude, loc.Longitude, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: %s", ErrNoMatch, b.Name)
}

func (g *GoogleGeocoder) queries(b Beach) []geocoder.Address {
	name := cleanName(b.Name)
	municipality := strings.TrimSpace(strings.ReplaceAll(b.Municipality, "Δήμος", ""))
	region := b.Region
	if i := strings.Index(region, "["); i >= 0 {
		region = region[:i]
	}
	region = strings.TrimSpace(strings.ReplaceAll(region, "Π.Ε.", ""))

	return []geocoder.Address{
		{Street: name + " beach", City: municipality, State: region, Country: g.country},
		{Street: name, City: municipality, Country: g.country},
		{Street: name + " beach", State: region, Country: g.country},
		{Street: name + " beach", Country: g.country},
	}
}

// wait enforces a minimum delay between provider calls.
func (g *GoogleGeocoder) wait(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if d := g.minDelay - time.Since(g.last); d > 0 && !g.last.IsZero() {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	g.last = time.Now()
	return nil
}

func cleanName(name string) string {
	if i := strings.Index(name, "/"); i >= 0 {
		name = name[:i]
	}
	if i := strings.Index(name, "("); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}
