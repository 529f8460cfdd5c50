package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"

	httpapi "github.com/i474232898/beach-weather-cache/internal/api/http"
	"github.com/i474232898/beach-weather-cache/internal/beach"
	"github.com/i474232898/beach-weather-cache/internal/cache"
	"github.com/i474232898/beach-weather-cache/internal/config"
	"github.com/i474232898/beach-weather-cache/internal/logger"
	"github.com/i474232898/beach-weather-cache/internal/partial"
	"github.com/i474232898/beach-weather-cache/internal/pipeline"
	"github.com/i474232898/beach-weather-cache/internal/weather"
	"github.com/i474232898/beach-weather-cache/internal/weather/providers"
)

// closers collects cleanup functions run in reverse order.
type closers []func()

func (c closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// openCacheStore returns the durable store and a reader for serving lookups.
// The git backend is read through its local checkout so requests never pull.
func openCacheStore(ctx context.Context, cfg *config.AppConfig, cl *closers) (cache.Store, httpapi.CacheReader, error) {
	switch cfg.CacheBackend {
	case "file":
		s := cache.NewFileStore(cfg.CachePath)
		return s, s, nil
	case "git":
		return cache.NewGitStore(cfg.CachePath, cfg.GitRemote, cfg.GitBranch), cache.NewFileStore(cfg.CachePath), nil
	case "sqlite":
		s, err := cache.OpenSQLStore(ctx, cfg.CacheSQLiteDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		*cl = append(*cl, func() { s.Close() })
		return s, s, nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create storage client: %w", err)
		}
		*cl = append(*cl, func() { client.Close() })
		s := cache.NewGCSStore(client, cfg.CacheGCSBucket, cfg.CacheGCSObject)
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

func openPartialStore(ctx context.Context, cfg *config.AppConfig, cl *closers) (partial.Store, error) {
	switch cfg.PartialBackend {
	case "file":
		return partial.NewFileStore(cfg.PartialDir)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		*cl = append(*cl, func() { client.Close() })
		return partial.NewRedisStore(client, cfg.PartialRetention), nil
	default:
		return nil, fmt.Errorf("unknown partial backend %q", cfg.PartialBackend)
	}
}

// newFetcherFactory gives every batch worker its own HTTP client and
// forecast/marine sources. The sea temperature grid is one regional download
// per refresh, so its source is shared.
func newFetcherFactory(cfg *config.AppConfig) pipeline.FetcherFactory {
	sst := providers.NewSeaTempProvider(&http.Client{Timeout: cfg.HTTPTimeout * 3}, providers.SeaTempConfig{
		URL:             cfg.SSTURL,
		CacheTTL:        cfg.SSTCacheTTL,
		MaxDistance:     cfg.SSTMaxDistance,
		DownloadTimeout: cfg.HTTPTimeout * 3,
	})

	return func() weather.Fetcher {
		client := &http.Client{Timeout: cfg.HTTPTimeout}
		return weather.NewService([]weather.Source{
			providers.NewForecastProvider(client, cfg.ForecastURL),
			providers.NewMarineProvider(client, cfg.MarineURL),
			sst,
		})
	}
}

func newGeocoder(cfg *config.AppConfig) beach.Geocoder {
	if cfg.GeocoderAPIKey == "" {
		return nil
	}
	return beach.NewGoogleGeocoder(cfg.GeocoderAPIKey, "Greece", beach.GreeceBounds)
}

// loadBeaches loads the work set. Workers and the aggregator of one run live
// in different processes, so they load strictly: a beach that fails to
// geocode fails the load instead of shifting every later batch. A single
// process partitions its own list and can drop such beaches.
func loadBeaches(ctx context.Context, cfg *config.AppConfig, strict bool) ([]beach.Beach, error) {
	geo := newGeocoder(cfg)
	if strict {
		items, err := beach.Load(ctx, cfg.BeachesPath, geo)
		if err != nil {
			if errors.Is(err, beach.ErrUnresolved) {
				return nil, fmt.Errorf("%w (run \"prepare\" once and point BEACHES_PATH at its output)", err)
			}
			return nil, err
		}
		logger.Infof("loaded %d beaches", len(items))
		return items, nil
	}

	items, unresolved, err := beach.Resolve(ctx, cfg.BeachesPath, geo)
	if err != nil {
		return nil, err
	}
	if len(unresolved) > 0 {
		logger.Warnf("%d beaches without coordinates left out of this process's work set", len(unresolved))
	}
	logger.Infof("loaded %d beaches", len(items))
	return items, nil
}

// writeWorkSet stores a resolved work set as YAML at path.
func writeWorkSet(path string, items []beach.Beach) error {
	var buf bytes.Buffer
	if err := beach.WriteYAML(&buf, items); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write work set: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish work set: %w", err)
	}
	return nil
}
