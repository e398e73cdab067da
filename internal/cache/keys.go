package cache

import (
	"fmt"
	"strings"
)

// Key prefixes.
const (
	PlacePrefix = "p:"
	RoutePrefix = "r:"
)

const maxPlaceKeyLen = 80

// PlaceKey returns the cache key for a place search term.
// The term is lowercased, spaces become underscores and anything outside [a-z0-9_] is dropped.
func PlaceKey(term string) string {
	key := PlacePrefix + normalizeTerm(term)
	if len(key) > maxPlaceKeyLen {
		key = key[:maxPlaceKeyLen]
	}
	return key
}

func normalizeTerm(term string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(term) {
		switch {
		case r == ' ':
			b.WriteByte('_')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// RouteKey returns the cache key for a direct route. Coordinates are rounded to
// four decimals so near-identical queries share an entry.
func RouteKey(startLat, startLng, endLat, endLng float64, mode string) string {
	return fmt.Sprintf("%s%.4f:%.4f:%.4f:%.4f:%s", RoutePrefix, startLat, startLng, endLat, endLng, ModeCode(mode))
}

// ModeCode returns the single-character mode tag used in route keys.
func ModeCode(mode string) string {
	switch mode {
	case "walking":
		return "w"
	case "cycling":
		return "c"
	default:
		return "d"
	}
}
