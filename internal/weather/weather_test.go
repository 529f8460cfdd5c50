package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/beach-weather-cache/internal/beach"
)

type stubSource struct {
	name    string
	reading Reading
	err     error
	delay   time.Duration
}

func (s stubSource) Name() string { return s.name }

func (s stubSource) Fetch(ctx context.Context, _ beach.Beach) (Reading, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return Reading{}, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.reading, s.err
}

var testBeach = beach.Beach{Name: "Balos", Latitude: 35.5814, Longitude: 23.5889}

func TestCacheEncodeIsStable(t *testing.T) {
	ts := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	c := Cache{
		"38.1_20.5": {BeachName: "Μύρτος", Latitude: 38.1, Longitude: 20.5, AirTemp: Float(27.4), Condition: ConditionClear, LastUpdated: ts},
		"35.2_24.9": {BeachName: "<Amm>", Latitude: 35.2, Longitude: 24.9, Condition: ConditionUnknown, LastUpdated: ts},
	}

	a, err := c.Encode()
	require.NoError(t, err)
	b, err := c.Clone().Encode()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	text := string(a)
	assert.Less(t, strings.Index(text, "35.2_24.9"), strings.Index(text, "38.1_20.5"))
	assert.Contains(t, text, "Μύρτος")
	assert.Contains(t, text, "<Amm>")
	assert.Contains(t, text, `"sea_temp": null`)
	assert.True(t, strings.HasSuffix(text, "}\n"))

	back, err := DecodeCache(a)
	require.NoError(t, err)
	assert.True(t, back.Equal(c))
}

func TestDecodeCacheEmpty(t *testing.T) {
	c, err := DecodeCache([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, c)

	_, err = DecodeCache([]byte("{not json"))
	assert.Error(t, err)
}

func TestCacheDiff(t *testing.T) {
	base := Cache{
		"a": {BeachName: "a", AirTemp: Float(20)},
		"b": {BeachName: "b", AirTemp: Float(21)},
	}
	next := Cache{
		"a": {BeachName: "a", AirTemp: Float(20)},
		"b": {BeachName: "b", AirTemp: Float(22)},
		"c": {BeachName: "c"},
	}
	d := next.Diff(base)
	assert.Len(t, d, 2)
	assert.Contains(t, d, "b")
	assert.Contains(t, d, "c")
}

func TestCacheLookup(t *testing.T) {
	c := Cache{
		"35.3387_24.9727": {BeachName: "Αμμουδάρα"},
		"36.3403_28.2039": {BeachName: "Φαληράκι"},
	}

	r, ok := c.Lookup("35.3387_24.9727", 35.3387, 24.9727, 0.001)
	require.True(t, ok)
	assert.Equal(t, "Αμμουδάρα", r.BeachName)

	r, ok = c.Lookup(beach.KeyFor(36.3405, 28.2041), 36.3405, 28.2041, 0.001)
	require.True(t, ok)
	assert.Equal(t, "Φαληράκι", r.BeachName)

	_, ok = c.Lookup(beach.KeyFor(36.35, 28.2039), 36.35, 28.2039, 0.001)
	assert.False(t, ok)
}

func TestRecordEqual(t *testing.T) {
	a := Record{BeachName: "x", AirTemp: Float(1)}
	b := Record{BeachName: "x", AirTemp: Float(1)}
	assert.True(t, a.Equal(b))

	b.AirTemp = nil
	assert.False(t, a.Equal(b))
}

func TestCombineReadings(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 30, 0, 0, time.FixedZone("EEST", 3*3600))
	rec := CombineReadings(testBeach, []Reading{
		{Source: "forecast", AirTemp: Float(28.1), WindSpeed: Float(12.3), WindDirection: Float(315), Condition: ConditionClear},
		{Source: "marine", WaveHeight: Float(0.4), WaveDirection: Float(290), WavePeriod: Float(3.2)},
		{Source: "sst", SeaTemp: Float(24.6), AirTemp: Float(99)},
	}, now)

	assert.Equal(t, "Balos", rec.BeachName)
	assert.Equal(t, 28.1, *rec.AirTemp)
	assert.Equal(t, 0.4, *rec.WaveHeight)
	assert.Equal(t, 24.6, *rec.SeaTemp)
	assert.Equal(t, ConditionClear, rec.Condition)
	assert.Equal(t, time.UTC, rec.LastUpdated.Location())
	assert.True(t, rec.LastUpdated.Equal(now))
}

func TestServiceFetchPartialSuccess(t *testing.T) {
	svc := NewService([]Source{
		stubSource{name: "forecast", reading: Reading{AirTemp: Float(25)}},
		stubSource{name: "marine", err: fmt.Errorf("marine: %w", ErrRateLimited)},
		stubSource{name: "sst", reading: Reading{SeaTemp: Float(22.5)}},
	})

	rec, err := svc.Fetch(context.Background(), testBeach)
	require.NoError(t, err)
	assert.Equal(t, 25.0, *rec.AirTemp)
	assert.Equal(t, 22.5, *rec.SeaTemp)
	assert.Nil(t, rec.WaveHeight)
}

func TestServiceFetchAllFail(t *testing.T) {
	svc := NewService([]Source{
		stubSource{name: "forecast", err: fmt.Errorf("forecast: %w", ErrNotFound)},
		stubSource{name: "marine", err: errors.New("boom")},
	})

	_, err := svc.Fetch(context.Background(), testBeach)
	require.Error(t, err)
	assert.Equal(t, ReasonNotFound, Classify(err))
}

func TestServiceFetchTimeout(t *testing.T) {
	svc := NewService([]Source{stubSource{name: "slow", delay: time.Second}})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := svc.Fetch(ctx, testBeach)
	require.Error(t, err)
	assert.Equal(t, ReasonTimeout, Classify(err))
}

func TestServiceNoSources(t *testing.T) {
	_, err := NewService(nil).Fetch(context.Background(), testBeach)
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "", Classify(nil))
	assert.Equal(t, ReasonRateLimited, Classify(fmt.Errorf("x: %w", ErrRateLimited)))
	assert.Equal(t, ReasonTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, ReasonError, Classify(errors.New("other")))
}

func TestWindArrow(t *testing.T) {
	assert.Equal(t, "", WindArrow(nil))
	assert.Equal(t, "↓", WindArrow(Float(0)))
	assert.Equal(t, "←", WindArrow(Float(90)))
	assert.Equal(t, "↑", WindArrow(Float(180)))
	assert.Equal(t, "↓", WindArrow(Float(350)))
}

func TestWaveConditions(t *testing.T) {
	assert.Equal(t, "N/A", WaveConditions(nil, Float(5)))
	assert.Equal(t, "Calm", WaveConditions(Float(0.3), Float(4)))
	assert.Equal(t, "Very Calm", WaveConditions(Float(0.3), Float(7)))
	assert.Equal(t, "Moderate", WaveConditions(Float(0.7), Float(8)))
	assert.Equal(t, "Rolling Swells", WaveConditions(Float(1.2), Float(11)))
	assert.Equal(t, "Large Swells", WaveConditions(Float(2.0), Float(9)))
	assert.Equal(t, "Very Rough", WaveConditions(Float(3.0), Float(9)))
}

func TestConditionFromWMO(t *testing.T) {
	assert.Equal(t, ConditionClear, ConditionFromWMO(0))
	assert.Equal(t, ConditionMist, ConditionFromWMO(45))
	assert.Equal(t, ConditionRain, ConditionFromWMO(61))
	assert.Equal(t, ConditionStorm, ConditionFromWMO(95))
	assert.Equal(t, ConditionUnknown, ConditionFromWMO(42))
}
