package aggregate

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/beach-weather-cache/internal/partial"
	"github.com/i474232898/beach-weather-cache/internal/weather"
)

var stamp = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func rec(name string, temp float64) weather.Record {
	return weather.Record{BeachName: name, AirTemp: weather.Float(temp), LastUpdated: stamp}
}

func raw(t *testing.T, idx int, entries weather.Cache) partial.Raw {
	t.Helper()
	data, err := partial.Artifact{RunID: "r", BatchIndex: idx, CreatedAt: stamp, Entries: entries}.Encode()
	require.NoError(t, err)
	return partial.Raw{Name: fmt.Sprintf("batch-%05d.json", idx), BatchIndex: idx, Data: data}
}

func encode(t *testing.T, c weather.Cache) string {
	t.Helper()
	b, err := c.Encode()
	require.NoError(t, err)
	return string(b)
}

func TestAggregateMergesOverPrevious(t *testing.T) {
	previous := weather.Cache{"a": rec("a", 10), "z": rec("z", 5)}
	artifacts := []partial.Raw{
		raw(t, 0, weather.Cache{"a": rec("a", 20), "b": rec("b", 21)}),
		raw(t, 1, weather.Cache{"c": rec("c", 22)}),
	}

	got, report := Aggregate(artifacts, previous, 2)

	assert.Len(t, got, 4)
	assert.Equal(t, 20.0, *got["a"].AirTemp)
	assert.Equal(t, 5.0, *got["z"].AirTemp)
	assert.Equal(t, 10.0, *previous["a"].AirTemp, "previous must not be modified")
	assert.Equal(t, 3, report.Merged)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, map[int]int{0: 2, 1: 1}, report.Entries)
	assert.Empty(t, report.Missing)
	assert.False(t, report.Unchanged)
}

func TestAggregateOrderIndependent(t *testing.T) {
	a := raw(t, 0, weather.Cache{"k": rec("from-0", 1), "x": rec("x", 1)})
	b := raw(t, 1, weather.Cache{"k": rec("from-1", 2)})
	c := raw(t, 2, weather.Cache{"y": rec("y", 3)})

	first, _ := Aggregate([]partial.Raw{a, b, c}, nil, 3)
	second, _ := Aggregate([]partial.Raw{c, b, a}, nil, 3)

	assert.Equal(t, encode(t, first), encode(t, second))
	assert.Equal(t, "from-1", first["k"].BeachName, "highest batch index wins")
}

func TestAggregateIdempotent(t *testing.T) {
	previous := weather.Cache{"p": rec("p", 1)}
	artifacts := []partial.Raw{raw(t, 0, weather.Cache{"q": rec("q", 2)})}

	first, _ := Aggregate(artifacts, previous, 1)
	second, _ := Aggregate(artifacts, previous, 1)
	assert.Equal(t, encode(t, first), encode(t, second))

	again, report := Aggregate(artifacts, first, 1)
	assert.Equal(t, encode(t, first), encode(t, again))
	assert.True(t, report.Unchanged)
}

func TestAggregateMissingBatchKeepsPrevious(t *testing.T) {
	previous := weather.Cache{"b1": rec("b1", 10), "b2": rec("b2", 11)}
	artifacts := []partial.Raw{raw(t, 0, weather.Cache{"b0": rec("b0", 9)})}

	got, report := Aggregate(artifacts, previous, 3)

	assert.Equal(t, []int{1, 2}, report.Missing)
	assert.Equal(t, 10.0, *got["b1"].AirTemp)
	assert.Equal(t, 11.0, *got["b2"].AirTemp)
	assert.Len(t, got, 3)
}

func TestAggregateAllMissingOrCorrupt(t *testing.T) {
	previous := weather.Cache{"a": rec("a", 1)}
	artifacts := []partial.Raw{
		{Name: "batch-00000.json", BatchIndex: 0, Data: nil},
		{Name: "batch-00001.json", BatchIndex: 1, Data: []byte("{broken")},
	}

	got, report := Aggregate(artifacts, previous, 2)

	assert.Equal(t, encode(t, previous), encode(t, got))
	assert.True(t, report.Unchanged)
	assert.Equal(t, []int{0}, report.Empty)
	assert.Equal(t, []string{"batch-00001.json"}, report.Corrupt)
	assert.Equal(t, []int{1}, report.Missing)

	got, report = Aggregate(nil, nil, 0)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.True(t, report.Unchanged)
}

func TestAggregateDuplicateBatchIsOrderIndependent(t *testing.T) {
	a := raw(t, 0, weather.Cache{"k": rec("a", 1)})
	b := raw(t, 0, weather.Cache{"k": rec("b", 2)})
	b.Name = "batch-0.json"

	got1, report1 := Aggregate([]partial.Raw{a, b}, nil, 1)
	got2, report2 := Aggregate([]partial.Raw{b, a}, nil, 1)

	assert.Equal(t, "b", got1["k"].BeachName)
	assert.Equal(t, got1, got2)
	assert.Equal(t, report1, report2)
	assert.Equal(t, []int{0}, report1.Duplicate)
}

func TestAggregateDuplicatePrefersNonEmpty(t *testing.T) {
	zero := partial.Raw{Name: "batch-0.json", BatchIndex: 0}
	full := raw(t, 0, weather.Cache{"k": rec("k", 1)})

	for _, order := range [][]partial.Raw{{zero, full}, {full, zero}} {
		got, report := Aggregate(order, nil, 1)
		assert.Len(t, got, 1)
		assert.Equal(t, map[int]int{0: 1}, report.Entries)
		assert.Empty(t, report.Empty)
		assert.Equal(t, []int{0}, report.Duplicate)
	}
}

// A batch of 51 where one item timed out yields 50 entries; the timed-out
// beach keeps the value it had before the run.
func TestAggregatePartialBatchRetainsTimedOutKey(t *testing.T) {
	previous := weather.Cache{}
	fresh := weather.Cache{}
	for i := 0; i < 51; i++ {
		key := fmt.Sprintf("k%02d", i)
		previous[key] = rec(key, 1)
		if i != 17 {
			fresh[key] = rec(key, 2)
		}
	}
	require.Len(t, fresh, 50)

	got, report := Aggregate([]partial.Raw{raw(t, 0, fresh)}, previous, 1)

	assert.Equal(t, 50, report.Merged)
	assert.Len(t, got, 51)
	assert.Equal(t, 1.0, *got["k17"].AirTemp)
	assert.Equal(t, 2.0, *got["k18"].AirTemp)
}

func TestAggregateUsesDecodedIndexWhenNameUnknown(t *testing.T) {
	r := raw(t, 4, weather.Cache{"k": rec("k", 1)})
	r.BatchIndex = -1

	_, report := Aggregate([]partial.Raw{r}, nil, 0)
	assert.Equal(t, map[int]int{4: 1}, report.Entries)
}
