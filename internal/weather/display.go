package weather

// WindArrow returns the arrow showing where wind with the given meteorological
// direction (degrees it blows from) is heading. Empty when direction is unknown.
func WindArrow(direction *float64) string {
	if direction == nil {
		return ""
	}
	arrows := []string{"↓", "↙", "←", "↖", "↑", "↗", "→", "↘"}
	idx := int((*direction+22.5)/45) % 8
	if idx < 0 {
		idx += 8
	}
	return arrows[idx]
}

// WaveConditions describes sea state from wave height (m) and period (s).
func WaveConditions(height, period *float64) string {
	if height == nil || period == nil {
		return "N/A"
	}
	h, p := *height, *period
	switch {
	case h < 0.5:
		if p < 6 {
			return "Calm"
		}
		return "Very Calm"
	case h < 1.0:
		switch {
		case p < 6:
			return "Choppy"
		case p < 10:
			return "Moderate"
		default:
			return "Gentle Swells"
		}
	case h < 1.5:
		switch {
		case p < 6:
			return "Rough & Choppy"
		case p < 10:
			return "Moderate Waves"
		default:
			return "Rolling Swells"
		}
	case h < 2.5:
		if p < 8 {
			return "Rough"
		}
		return "Large Swells"
	default:
		return "Very Rough"
	}
}

// ConditionFromWMO maps a WMO weather interpretation code (as used by Open-Meteo).
func ConditionFromWMO(code int) Condition {
	switch {
	case code == 0:
		return ConditionClear
	case code >= 1 && code <= 3:
		return ConditionCloudy
	case code == 45 || code == 48:
		return ConditionMist
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return ConditionRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return ConditionSnow
	case code >= 95:
		return ConditionStorm
	default:
		return ConditionUnknown
	}
}
