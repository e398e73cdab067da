package routing

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Bounds is the rectangular lat/lng box of the serviced region.
type Bounds struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// DefaultBounds covers Cameroon.
var DefaultBounds = Bounds{
	MinLat: 1.65,
	MaxLat: 13.08,
	MinLng: 8.4,
	MaxLng: 16.2,
}

// Bound returns the region as an orb.Bound.
func (b Bounds) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLng, b.MinLat},
		Max: orb.Point{b.MaxLng, b.MaxLat},
	}
}

// Contains reports whether p lies inside the region, edges included.
func (b Bounds) Contains(p Point) bool {
	return b.Bound().Contains(p.Orb())
}

// ContainsOrb is Contains for an orb point in (lng, lat) order.
func (b Bounds) ContainsOrb(p orb.Point) bool {
	return b.Bound().Contains(p)
}

// Validate checks that the box is well formed.
func (b Bounds) Validate() error {
	if b.MinLat >= b.MaxLat || b.MinLng >= b.MaxLng {
		return fmt.Errorf("invalid region bounds: lat %.4f..%.4f lng %.4f..%.4f", b.MinLat, b.MaxLat, b.MinLng, b.MaxLng)
	}
	if !(Point{Lat: b.MinLat, Lng: b.MinLng}).Valid() || !(Point{Lat: b.MaxLat, Lng: b.MaxLng}).Valid() {
		return fmt.Errorf("region bounds outside WGS84 range")
	}
	return nil
}

// Filter returns the points of line that fall inside the region.
// Returns nil when none remain.
func (b Bounds) Filter(line orb.LineString) orb.LineString {
	bound := b.Bound()
	var out orb.LineString
	for _, p := range line {
		if bound.Contains(p) {
			out = append(out, p)
		}
	}
	return out
}
