package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/beach-weather-cache/internal/beach"
	"github.com/i474232898/beach-weather-cache/internal/cache"
	"github.com/i474232898/beach-weather-cache/internal/logger"
	"github.com/i474232898/beach-weather-cache/internal/pipeline"
	"github.com/i474232898/beach-weather-cache/internal/store"
	"github.com/i474232898/beach-weather-cache/internal/weather"
)

// LookupTolerance is how far (degrees, per axis) a query may be from a cached
// beach and still match it.
const LookupTolerance = 0.001

var validate = validator.New()

// CacheReader loads the current combined cache.
type CacheReader interface {
	Load(ctx context.Context) (cache.Snapshot, error)
}

type Deps struct {
	Cache    CacheReader
	History  *store.MemoryStore[pipeline.Summary]
	Registry *prometheus.Registry
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/api/v1")

	v1.Get("/weather", func(c *fiber.Ctx) error {
		var q coordinateQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		snap, err := deps.Cache.Load(c.UserContext())
		if err != nil {
			logger.Errorf("load cache: %v", err)
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load weather cache")
		}

		rec, ok := snap.Cache.Lookup(beach.KeyFor(q.Lat, q.Lon), q.Lat, q.Lon, LookupTolerance)
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no weather data for requested location")
		}

		return c.JSON(weatherResponse{
			Record:         rec,
			WindArrow:      weather.WindArrow(rec.WindDirection),
			WaveConditions: weather.WaveConditions(rec.WaveHeight, rec.WavePeriod),
		})
	})

	v1.Get("/cache", func(c *fiber.Ctx) error {
		snap, err := deps.Cache.Load(c.UserContext())
		if err != nil {
			logger.Errorf("load cache: %v", err)
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load weather cache")
		}
		return c.JSON(fiber.Map{
			"version": snap.Version,
			"count":   len(snap.Cache),
			"entries": snap.Cache,
		})
	})

	v1.Get("/runs/latest", func(c *fiber.Ctx) error {
		if deps.History == nil {
			return fiber.NewError(fiber.StatusNotFound, "no runs recorded")
		}
		sum, err := deps.History.Latest()
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no runs recorded")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch run history")
		}
		return c.JSON(sum)
	})

	v1.Get("/runs", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if deps.History == nil {
			return fiber.NewError(fiber.StatusNotFound, "no runs in requested range")
		}
		runs, err := deps.History.Range(req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no runs in requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch run history")
		}

		return c.JSON(fiber.Map{
			"from": req.From,
			"to":   req.To,
			"runs": runs,
		})
	})
}

type weatherResponse struct {
	weather.Record
	WindArrow      string `json:"wind_arrow"`
	WaveConditions string `json:"wave_conditions"`
}

// coordinateQuery holds query parameters for identifying a beach.
type coordinateQuery struct {
	Lat float64 `validate:"gte=-90,lte=90"`
	Lon float64 `validate:"gte=-180,lte=180"`
}

func (q *coordinateQuery) bind(c *fiber.Ctx) error {
	latStr, lonStr := c.Query("lat"), c.Query("lon")
	if latStr == "" || lonStr == "" {
		return errors.New("lat and lon query parameters are required")
	}

	var err error
	if q.Lat, err = strconv.ParseFloat(latStr, 64); err != nil {
		return errors.New("lat must be a number")
	}
	if q.Lon, err = strconv.ParseFloat(lonStr, 64); err != nil {
		return errors.New("lon must be a number")
	}

	return validate.Struct(q)
}

// historyQuery holds query parameters for the run history endpoint.
type historyQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
