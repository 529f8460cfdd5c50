package weather

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Cache maps a beach key to its Record. It is the shape of both a single
// batch's partial cache and the combined cache.
type Cache map[string]Record

// Clone returns a shallow copy. Records are values, so the copy can be
// modified without affecting c.
func (c Cache) Clone() Cache {
	out := make(Cache, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Encode serializes the cache with keys in lexicographic order, two-space
// indentation and unescaped non-ASCII text, so equal caches always encode to
// identical bytes.
func (c Cache) Encode() ([]byte, error) {
	if c == nil {
		c = Cache{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	// encoding/json writes map keys in sorted order.
	if err := enc.Encode(map[string]Record(c)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeCache parses an encoded cache. Empty input decodes to an empty cache.
func DecodeCache(data []byte) (Cache, error) {
	c := Cache{}
	if len(bytes.TrimSpace(data)) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return c, nil
}

// Equal reports whether both caches hold the same keys and records.
func (c Cache) Equal(o Cache) bool {
	if len(c) != len(o) {
		return false
	}
	for k, v := range c {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Diff returns the entries of c that are absent from base or differ from it.
func (c Cache) Diff(base Cache) Cache {
	out := Cache{}
	for k, v := range c {
		if bv, ok := base[k]; !ok || !bv.Equal(v) {
			out[k] = v
		}
	}
	return out
}

// Lookup finds the record for a coordinate: exact key match first, then any
// entry whose key lies within tolerance degrees on both axes (the nearest one
// if several do).
func (c Cache) Lookup(key string, lat, lon, tolerance float64) (Record, bool) {
	if r, ok := c[key]; ok {
		return r, true
	}
	var (
		best  Record
		found bool
		bestD = math.Inf(1)
	)
	for k, r := range c {
		klat, klon, ok := splitKey(k)
		if !ok {
			continue
		}
		dlat, dlon := math.Abs(klat-lat), math.Abs(klon-lon)
		if dlat >= tolerance || dlon >= tolerance {
			continue
		}
		if d := dlat*dlat + dlon*dlon; d < bestD {
			best, bestD, found = r, d, true
		}
	}
	return best, found
}

func splitKey(k string) (float64, float64, bool) {
	latStr, lonStr, ok := strings.Cut(k, "_")
	if !ok {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}
