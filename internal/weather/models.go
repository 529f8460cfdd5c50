package weather

import (
	"time"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// Record is the cached weather for one beach. It is stored and merged as a
// unit; optional measurements are nil when no source provided them.
type Record struct {
	BeachName     string    `json:"beach_name"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	AirTemp       *float64  `json:"air_temp"`
	WindSpeed     *float64  `json:"wind_speed"`
	WindDirection *float64  `json:"wind_direction"`
	WaveHeight    *float64  `json:"wave_height"`
	WaveDirection *float64  `json:"wave_direction"`
	WavePeriod    *float64  `json:"wave_period"`
	SeaTemp       *float64  `json:"sea_temp"`
	Condition     Condition `json:"condition"`
	LastUpdated   time.Time `json:"last_updated"` // always UTC
}

// Equal reports whether r and o hold the same values.
func (r Record) Equal(o Record) bool {
	return r.BeachName == o.BeachName &&
		r.Latitude == o.Latitude &&
		r.Longitude == o.Longitude &&
		eqValue(r.AirTemp, o.AirTemp) &&
		eqValue(r.WindSpeed, o.WindSpeed) &&
		eqValue(r.WindDirection, o.WindDirection) &&
		eqValue(r.WaveHeight, o.WaveHeight) &&
		eqValue(r.WaveDirection, o.WaveDirection) &&
		eqValue(r.WavePeriod, o.WavePeriod) &&
		eqValue(r.SeaTemp, o.SeaTemp) &&
		r.Condition == o.Condition &&
		r.LastUpdated.Equal(o.LastUpdated)
}

func eqValue(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Float returns a pointer to v, for optional measurements.
func Float(v float64) *float64 {
	return &v
}
