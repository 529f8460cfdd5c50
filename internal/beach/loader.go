package beach

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/i474232898/beach-weather-cache/internal/common"
	"github.com/i474232898/beach-weather-cache/internal/logger"
)

var (
	// ErrUnsupportedFormat is returned for work-set files that are neither CSV nor YAML.
	ErrUnsupportedFormat = errors.New("unsupported beaches file format")
	// ErrUnresolved is returned by Load when a beach without coordinates could
	// not be geocoded.
	ErrUnresolved = errors.New("beaches could not be geocoded")
)

var numberPattern = regexp.MustCompile(`\d{1,2}\.\d{1,8}`)

// Load reads the work set from path. A missing file yields the built-in sample set.
// Beaches without usable coordinates are dropped when geo is nil. Otherwise
// each of them must geocode, or Load fails with ErrUnresolved, so separate
// processes never partition different lists. The result is deduplicated by
// coordinates and keeps file order.
func Load(ctx context.Context, path string, geo Geocoder) ([]Beach, error) {
	beaches, unresolved, err := Resolve(ctx, path, geo)
	if err != nil {
		return nil, err
	}
	if geo != nil && len(unresolved) > 0 {
		names := make([]string, len(unresolved))
		for i, b := range unresolved {
			names[i] = b.Name
		}
		return nil, fmt.Errorf("%w: %s", ErrUnresolved, strings.Join(names, ", "))
	}
	return beaches, nil
}

// Resolve reads the work set like Load but drops beaches that could not be
// geocoded and returns them separately.
func Resolve(ctx context.Context, path string, geo Geocoder) (beaches, unresolved []Beach, err error) {
	if path == "" {
		logger.Warnf("beach: no beaches file configured; using sample data")
		return Sample(), nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warnf("beach: %s not found; using sample data", path)
			return Sample(), nil, nil
		}
		return nil, nil, fmt.Errorf("open beaches file: %w", err)
	}
	defer f.Close()

	var rows []Beach
	var missing []Beach
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, missing, err = ParseCSV(f)
	case ".yaml", ".yml":
		rows, missing, err = ParseYAML(f)
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, nil, err
	}

	if len(missing) > 0 {
		logger.Warnf("beach: %d beaches with missing/invalid coordinates", len(missing))
		resolved, failed, err := resolveMissing(ctx, geo, missing)
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, resolved...)
		unresolved = failed
	}

	out := Dedupe(rows)
	logger.Infof("beach: loaded %d unique beach locations from %s", len(out), path)
	return out, unresolved, nil
}

// WriteYAML writes beaches in the format ParseYAML reads.
func WriteYAML(w io.Writer, beaches []Beach) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	doc := struct {
		Beaches []Beach `yaml:"beaches"`
	}{Beaches: beaches}
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode beaches yaml: %w", err)
	}
	return enc.Close()
}

// ParseCSV reads beaches from a CSV export with a header row. The name is taken
// from a "Name" column (or the first column). Coordinates come from latitude and
// longitude columns when present, otherwise they are extracted from any
// decimal numbers in the row. Rows without coordinates are returned separately.
func ParseCSV(r io.Reader) (found, missing []Beach, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := mapColumns(header)

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		b := Beach{
			Name:         field(rec, cols.name),
			Region:       field(rec, cols.region),
			Municipality: field(rec, cols.municipality),
		}
		if b.Name == "" {
			continue
		}

		lat, lon, ok := explicitCoordinates(rec, cols)
		if !ok {
			lat, lon, ok = ExtractCoordinates(strings.Join(rec, ","))
		}
		if !ok {
			missing = append(missing, b)
			continue
		}
		b.Latitude, b.Longitude = lat, lon
		found = append(found, b)
	}
	return found, missing, nil
}

// ParseYAML reads a YAML list of beaches. Entries with zero coordinates are
// returned as missing.
func ParseYAML(r io.Reader) (found, missing []Beach, err error) {
	var doc struct {
		Beaches []Beach `yaml:"beaches"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("decode beaches yaml: %w", err)
	}
	for _, b := range doc.Beaches {
		if b.Name == "" {
			continue
		}
		if b.Latitude == 0 && b.Longitude == 0 {
			missing = append(missing, b)
			continue
		}
		found = append(found, b)
	}
	return found, missing, nil
}

// ExtractCoordinates finds a latitude/longitude pair among the decimal numbers
// in text. The first number in 33–43 is taken as latitude and the first in 18–30
// as longitude; broader ranges are tried when either is still missing.
func ExtractCoordinates(text string) (lat, lon float64, ok bool) {
	var nums []float64
	for _, m := range numberPattern.FindAllString(text, -1) {
		v, err := strconv.ParseFloat(m, 64)
		if err == nil {
			nums = append(nums, v)
		}
	}

	var haveLat, haveLon bool
	pick := func(latLo, latHi, lonLo, lonHi float64) {
		for _, n := range nums {
			if !haveLat && n >= latLo && n <= latHi {
				lat, haveLat = n, true
			} else if !haveLon && n >= lonLo && n <= lonHi {
				lon, haveLon = n, true
			}
		}
	}
	pick(33, 43, 18, 30)
	if !haveLat || !haveLon {
		pick(30, 45, 15, 35)
	}
	return lat, lon, haveLat && haveLon
}

type columns struct {
	name, region, municipality, lat, lon int
}

func mapColumns(header []string) columns {
	c := columns{name: -1, region: -1, municipality: -1, lat: -1, lon: -1}
	for i, h := range header {
		h = strings.TrimSpace(h)
		switch {
		case strings.EqualFold(h, "name"):
			c.name = i
		case common.HasAny(h, "region"):
			c.region = i
		case common.HasAny(h, "municipal"):
			c.municipality = i
		case common.HasAny(h, "latitude") || strings.EqualFold(h, "lat"):
			c.lat = i
		case common.HasAny(h, "longitude") || strings.EqualFold(h, "lon") || strings.EqualFold(h, "lng"):
			c.lon = i
		}
	}
	if c.name < 0 && len(header) > 0 {
		c.name = 0
	}
	return c
}

func explicitCoordinates(rec []string, c columns) (float64, float64, bool) {
	if c.lat < 0 || c.lon < 0 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(field(rec, c.lat), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(field(rec, c.lon), 64)
	if err != nil {
		return 0, 0, false
	}
	if lat == 0 && lon == 0 {
		return 0, 0, false
	}
	return lat, lon, true
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func resolveMissing(ctx context.Context, geo Geocoder, missing []Beach) (resolved, failed []Beach, err error) {
	if geo == nil {
		for _, b := range missing {
			logger.Warnf("beach: skipping %q (no coordinates, geocoding disabled)", b.Name)
		}
		return nil, missing, nil
	}

	for _, b := range missing {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("geocode beaches: %w", err)
		}
		lat, lon, err := geo.Geocode(ctx, b)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, fmt.Errorf("geocode beaches: %w", ctx.Err())
			}
			logger.Warnf("beach: geocoding failed for %q: %v", b.Name, err)
			failed = append(failed, b)
			continue
		}
		b.Latitude, b.Longitude = lat, lon
		resolved = append(resolved, b)
	}
	logger.Infof("beach: geocoded %d/%d beaches", len(resolved), len(missing))
	return resolved, failed, nil
}
