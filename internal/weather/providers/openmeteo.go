package providers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/beach-weather-cache/internal/beach"
	"github.com/i474232898/beach-weather-cache/internal/weather"
)

const (
	DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	DefaultMarineURL   = "https://marine-api.open-meteo.com/v1/marine"
)

// ForecastProvider reads current air temperature, wind and conditions from Open-Meteo.
type ForecastProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewForecastProvider(client *http.Client, baseURL string) *ForecastProvider {
	if baseURL == "" {
		baseURL = DefaultForecastURL
	}
	return &ForecastProvider{
		name:    "openmeteo-forecast",
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{Client: client, Backoff: DefaultBackoff},
		circuit: newCircuitBreaker("openmeteo-forecast"),
	}
}

func (p *ForecastProvider) Name() string {
	return p.name
}

func (p *ForecastProvider) Fetch(ctx context.Context, b beach.Beach) (weather.Reading, error) {
	values := coordinateQuery(b)
	values.Set("current", "temperature_2m,wind_speed_10m,wind_direction_10m,weather_code")
	values.Set("timezone", "auto")
	values.Set("forecast_days", "1")

	var payload struct {
		Current struct {
			Time          string   `json:"time"`
			Temperature2m *float64 `json:"temperature_2m"`
			WindSpeed10m  *float64 `json:"wind_speed_10m"`
			WindDir10m    *float64 `json:"wind_direction_10m"`
			WeatherCode   *int     `json:"weather_code"`
		} `json:"current"`
	}

	if err := getJSON(ctx, p.httpCfg, p.circuit, joinURL(p.baseURL, values.Encode()), &payload); err != nil {
		return weather.Reading{}, err
	}

	cond := weather.ConditionUnknown
	if payload.Current.WeatherCode != nil {
		cond = weather.ConditionFromWMO(*payload.Current.WeatherCode)
	}

	return weather.Reading{
		Source:        p.name,
		Timestamp:     parseLocalTime(payload.Current.Time),
		AirTemp:       round1(payload.Current.Temperature2m),
		WindSpeed:     round1(payload.Current.WindSpeed10m),
		WindDirection: payload.Current.WindDir10m,
		Condition:     cond,
	}, nil
}

// MarineProvider reads current wave height, direction and period from the
// Open-Meteo marine API. Inland points come back with null values.
type MarineProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewMarineProvider(client *http.Client, baseURL string) *MarineProvider {
	if baseURL == "" {
		baseURL = DefaultMarineURL
	}
	return &MarineProvider{
		name:    "openmeteo-marine",
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{Client: client, Backoff: DefaultBackoff},
		circuit: newCircuitBreaker("openmeteo-marine"),
	}
}

func (p *MarineProvider) Name() string {
	return p.name
}

func (p *MarineProvider) Fetch(ctx context.Context, b beach.Beach) (weather.Reading, error) {
	values := coordinateQuery(b)
	values.Set("current", "wave_height,wave_direction,wave_period")
	values.Set("timezone", "auto")

	var payload struct {
		Current struct {
			Time          string   `json:"time"`
			WaveHeight    *float64 `json:"wave_height"`
			WaveDirection *float64 `json:"wave_direction"`
			WavePeriod    *float64 `json:"wave_period"`
		} `json:"current"`
	}

	if err := getJSON(ctx, p.httpCfg, p.circuit, joinURL(p.baseURL, values.Encode()), &payload); err != nil {
		return weather.Reading{}, err
	}

	return weather.Reading{
		Source:        p.name,
		Timestamp:     parseLocalTime(payload.Current.Time),
		WaveHeight:    round1(payload.Current.WaveHeight),
		WaveDirection: payload.Current.WaveDirection,
		WavePeriod:    round1(payload.Current.WavePeriod),
	}, nil
}

func coordinateQuery(b beach.Beach) url.Values {
	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(b.Latitude, 'f', 6, 64))
	values.Set("longitude", strconv.FormatFloat(b.Longitude, 'f', 6, 64))
	return values
}

// parseLocalTime parses Open-Meteo's "2006-01-02T15:04" timestamps, falling back to now.
func parseLocalTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return time.Now().UTC()
}
