package weather

import (
	"time"

	"github.com/i474232898/beach-weather-cache/internal/beach"
)

// CombineReadings merges source readings into a single Record for b.
// For every measurement the first reading (in source order) that carries a
// value wins; the condition is the first known one. updated is stamped as
// the record's LastUpdated.
func CombineReadings(b beach.Beach, readings []Reading, updated time.Time) Record {
	rec := Record{
		BeachName:   b.Name,
		Latitude:    b.Latitude,
		Longitude:   b.Longitude,
		Condition:   ConditionUnknown,
		LastUpdated: updated.UTC(),
	}

	for _, r := range readings {
		rec.AirTemp = first(rec.AirTemp, r.AirTemp)
		rec.WindSpeed = first(rec.WindSpeed, r.WindSpeed)
		rec.WindDirection = first(rec.WindDirection, r.WindDirection)
		rec.WaveHeight = first(rec.WaveHeight, r.WaveHeight)
		rec.WaveDirection = first(rec.WaveDirection, r.WaveDirection)
		rec.WavePeriod = first(rec.WavePeriod, r.WavePeriod)
		rec.SeaTemp = first(rec.SeaTemp, r.SeaTemp)

		if rec.Condition == ConditionUnknown && r.Condition != "" {
			rec.Condition = r.Condition
		}
	}

	return rec
}

func first(have, candidate *float64) *float64 {
	if have != nil || candidate == nil {
		return have
	}
	v := *candidate
	return &v
}
