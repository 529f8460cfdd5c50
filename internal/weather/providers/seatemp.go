package providers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/i474232898/beach-weather-cache/internal/beach"
	"github.com/i474232898/beach-weather-cache/internal/logger"
	"github.com/i474232898/beach-weather-cache/internal/weather"
)

// DefaultSeaTempURL is the NOAA ERDDAP MUR sea surface temperature grid over Greece.
const DefaultSeaTempURL = "https://coastwatch.pfeg.noaa.gov/erddap/griddap/jplMURSST41.json?analysed_sst[(last)][(34):1:(42)][(19):1:(29)]"

// gridRetryAfter spaces out download attempts while no grid has ever loaded.
const gridRetryAfter = time.Minute

// SeaTempConfig tunes the sea surface temperature source.
type SeaTempConfig struct {
	URL             string
	CacheTTL        time.Duration // how long a downloaded grid is reused
	MaxDistance     float64       // degrees; farther grid points are ignored
	DownloadTimeout time.Duration // bounds one grid download, independent of callers
}

type gridPoint struct {
	lat, lon, temp float64
}

// SeaTempProvider downloads one regional sea temperature grid and answers
// per-beach queries from it with a nearest-point lookup. The grid is shared by
// all beaches fetched through the same provider and refreshed after CacheTTL.
// Only one download runs at a time; it is not tied to any caller's context,
// and callers stop waiting for it when their own context ends.
type SeaTempProvider struct {
	name    string
	cfg     SeaTempConfig
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	flight  singleflight.Group

	mu        sync.Mutex
	grid      []gridPoint
	fetchedAt time.Time
	failedAt  time.Time
	lastErr   error
	now       func() time.Time
}

func NewSeaTempProvider(client *http.Client, cfg SeaTempConfig) *SeaTempProvider {
	if cfg.URL == "" {
		cfg.URL = DefaultSeaTempURL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = 2.0
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 30 * time.Second
	}
	return &SeaTempProvider{
		name:    "noaa-sst",
		cfg:     cfg,
		httpCfg: HTTPClientConfig{Client: client, Backoff: DefaultBackoff},
		circuit: newCircuitBreaker("noaa-sst"),
		now:     time.Now,
	}
}

func (p *SeaTempProvider) Name() string {
	return p.name
}

func (p *SeaTempProvider) Fetch(ctx context.Context, b beach.Beach) (weather.Reading, error) {
	grid, err := p.loadGrid(ctx)
	if err != nil {
		return weather.Reading{}, err
	}

	temp, ok := nearest(grid, b.Latitude, b.Longitude, p.cfg.MaxDistance)
	if !ok {
		return weather.Reading{}, fmt.Errorf("%w: no sea temperature within %.1f degrees", weather.ErrNotFound, p.cfg.MaxDistance)
	}

	return weather.Reading{
		Source:    p.name,
		Timestamp: p.now().UTC(),
		SeaTemp:   weather.Float(temp),
	}, nil
}

// loadGrid returns the cached grid, downloading it when stale. A failed
// refresh falls back to the previous grid if there is one. While the grid is
// downloading, a stale grid is served to callers whose context ends first.
func (p *SeaTempProvider) loadGrid(ctx context.Context) ([]gridPoint, error) {
	p.mu.Lock()
	stale := p.grid
	if stale != nil && p.now().Sub(p.fetchedAt) < p.cfg.CacheTTL {
		p.mu.Unlock()
		return stale, nil
	}
	if stale == nil && p.lastErr != nil && p.now().Sub(p.failedAt) < gridRetryAfter {
		err := p.lastErr
		p.mu.Unlock()
		return nil, err
	}
	p.mu.Unlock()

	ch := p.flight.DoChan("grid", func() (any, error) {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.DownloadTimeout)
		defer cancel()
		return p.refresh(dctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			if stale != nil {
				logger.Warnf("sea temperature refresh failed, using older grid: %v", res.Err)
				return stale, nil
			}
			return nil, res.Err
		}
		return res.Val.([]gridPoint), nil
	case <-ctx.Done():
		if stale != nil {
			return stale, nil
		}
		return nil, fmt.Errorf("%w: waiting for sea temperature grid: %v", weather.ErrTimeout, ctx.Err())
	}
}

func (p *SeaTempProvider) refresh(ctx context.Context) ([]gridPoint, error) {
	grid, err := p.download(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.failedAt, p.lastErr = p.now(), err
		return nil, err
	}
	p.grid, p.fetchedAt, p.lastErr = grid, p.now(), nil
	return grid, nil
}

func (p *SeaTempProvider) download(ctx context.Context) ([]gridPoint, error) {
	var payload struct {
		Table struct {
			Rows [][]any `json:"rows"`
		} `json:"table"`
	}

	if err := getJSON(ctx, p.httpCfg, p.circuit, p.cfg.URL, &payload); err != nil {
		return nil, err
	}

	grid := make([]gridPoint, 0, len(payload.Table.Rows))
	for _, row := range payload.Table.Rows {
		if len(row) < 4 {
			continue
		}
		lat, ok1 := row[1].(float64)
		lon, ok2 := row[2].(float64)
		sst, ok3 := row[3].(float64)
		if !ok1 || !ok2 || !ok3 {
			continue
		}
		// Values are already Celsius; drop fill values and land.
		if sst <= -10 || sst >= 50 {
			continue
		}
		grid = append(grid, gridPoint{lat: lat, lon: lon, temp: math.Round(sst*10) / 10})
	}

	logger.Infof("downloaded sea temperature for %d valid points out of %d", len(grid), len(payload.Table.Rows))
	return grid, nil
}

func nearest(grid []gridPoint, lat, lon, maxDistance float64) (float64, bool) {
	best := math.Inf(1)
	var temp float64
	for _, g := range grid {
		d := math.Hypot(g.lat-lat, g.lon-lon)
		if d < best {
			best = d
			temp = g.temp
		}
	}
	return temp, best < maxDistance
}
