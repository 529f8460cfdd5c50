// Package beach loads the ordered work set of beaches whose weather is cached.
package beach

import (
	"strconv"
	"strings"

	"github.com/i474232898/beach-weather-cache/internal/common"
)

// Beach is one geographic point to refresh.
type Beach struct {
	Name         string  `json:"name" yaml:"name"`
	Region       string  `json:"region,omitempty" yaml:"region,omitempty"`
	Municipality string  `json:"municipality,omitempty" yaml:"municipality,omitempty"`
	Latitude     float64 `json:"latitude" yaml:"latitude"`
	Longitude    float64 `json:"longitude" yaml:"longitude"`
}

// Key returns the cache key for this beach: "<lat>_<lon>" rounded to six
// decimals. Whole numbers keep one decimal, so 37 is written "37.0".
func (b Beach) Key() string {
	return KeyFor(b.Latitude, b.Longitude)
}

// KeyFor builds the cache key for a coordinate pair.
func KeyFor(lat, lon float64) string {
	return formatCoord(lat) + "_" + formatCoord(lon)
}

func formatCoord(v float64) string {
	s := strconv.FormatFloat(common.Round(v, 6), 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Dedupe removes beaches whose key was already seen, keeping the first one.
// Order is preserved.
func Dedupe(beaches []Beach) []Beach {
	seen := make(map[string]struct{}, len(beaches))
	out := make([]Beach, 0, len(beaches))
	for _, b := range beaches {
		k := b.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, b)
	}
	return out
}

// Sample is used when no beaches file is available.
func Sample() []Beach {
	return []Beach{
		{Name: "Αμμουδάρα", Region: "Π.Ε. ΗΡΑΚΛΕΙΟΥ", Municipality: "Δήμος Μαλεβιζίου", Latitude: 35.3387, Longitude: 24.9727},
		{Name: "Φαληράκι", Region: "Π.Ε. ΡΟΔΟΥ", Municipality: "Δήμος Ρόδου", Latitude: 36.3403, Longitude: 28.2039},
		{Name: "Κουκουναριές", Region: "Π.Ε. ΣΠΟΡΑΔΩΝ", Municipality: "Δήμος Σκιάθου", Latitude: 39.1286, Longitude: 23.4192},
		{Name: "Μύρτος", Region: "Π.Ε. ΚΕΦΑΛΟΝΙΑΣ", Municipality: "Δήμος Σάμης", Latitude: 38.3434, Longitude: 20.5575},
		{Name: "Ελούντα", Region: "Π.Ε. ΛΑΣΙΘΙΟΥ", Municipality: "Δήμος Αγίου Νικολάου", Latitude: 35.2631, Longitude: 25.7253},
	}
}
