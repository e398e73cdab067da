// Package polyline converts route geometry to and from Google's encoded
// polyline format at five decimal places.
//
// See https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"math"
	"strings"

	"github.com/paulmach/orb"
)

const factor = 1e5

// ErrTruncated reports input that ends in the middle of a value or pair.
var ErrTruncated = errors.New("polyline: truncated input")

// Encode writes line as a polyline, latitude first in each pair.
func Encode(line orb.LineString) string {
	var sb strings.Builder
	sb.Grow(len(line) * 8)

	var lastLat, lastLng int64
	for _, p := range line {
		lat := int64(math.Round(p.Lat() * factor))
		lng := int64(math.Round(p.Lon() * factor))
		writeVarint(&sb, lat-lastLat)
		writeVarint(&sb, lng-lastLng)
		lastLat, lastLng = lat, lng
	}
	return sb.String()
}

// Decode parses a polyline into (lng, lat) points.
func Decode(s string) (orb.LineString, error) {
	var (
		line     orb.LineString
		lat, lng int64
		pos      int
	)
	for pos < len(s) {
		dLat, next, err := readVarint(s, pos)
		if err != nil {
			return nil, err
		}
		dLng, next, err := readVarint(s, next)
		if err != nil {
			return nil, err
		}
		pos = next
		lat += dLat
		lng += dLng
		line = append(line, orb.Point{float64(lng) / factor, float64(lat) / factor})
	}
	return line, nil
}

// writeVarint zigzag-encodes v into 5-bit groups offset by 63.
func writeVarint(sb *strings.Builder, v int64) {
	u := uint64(v) << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		sb.WriteByte(byte(0x20|u&0x1f) + 63)
		u >>= 5
	}
	sb.WriteByte(byte(u) + 63)
}

func readVarint(s string, pos int) (int64, int, error) {
	var u uint64
	for shift := uint(0); ; shift += 5 {
		if pos >= len(s) || shift > 60 {
			return 0, pos, ErrTruncated
		}
		b := uint64(s[pos]) - 63
		pos++
		u |= (b & 0x1f) << shift
		if b < 0x20 {
			break
		}
	}
	v := int64(u >> 1)
	if u&1 != 0 {
		v = ^v
	}
	return v, pos, nil
}
