package pgrouting

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"

	"github.com/kmerroute/kmerroute/internal/routing"
)

// buildRoutes groups ordered edges by path id into routes.
// Alternatives keep path id order; an id with no edges is simply absent.
func (p *Provider) buildRoutes(edges []edgeRow, req routing.GraphRequest) ([]routing.Route, error) {
	speed := routing.SpeedForMode(req.Mode)

	var (
		routes []routing.Route
		ids    []int64
		byID   = make(map[int64]int)
	)

	for _, e := range edges {
		idx, ok := byID[e.pathID]
		if !ok {
			if len(routes) == p.alternatives {
				continue
			}
			idx = len(routes)
			byID[e.pathID] = idx
			ids = append(ids, e.pathID)
			routes = append(routes, routing.Route{
				StartLabel: req.StartLabel,
				EndLabel:   req.EndLabel,
			})
		}

		line, err := parseLine(e.geometry)
		if err != nil {
			return nil, fmt.Errorf("path %d seq %d: %w", e.pathID, e.pathSeq, err)
		}

		r := &routes[idx]
		anchor := req.Start.Orb()
		if len(r.Geometry) > 0 {
			anchor = r.Geometry[len(r.Geometry)-1]
		}
		source, target := e.source, e.target
		if reversed(line, anchor) {
			line = line.Clone()
			line.Reverse()
			source, target = target, source
		}

		r.Steps = append(r.Steps, routing.RouteStep{
			Geometry: line,
			Source:   source,
			Target:   target,
			Distance: e.cost,
			Duration: e.cost / speed,
		})
		r.Distance += e.cost
		r.Duration += e.cost / speed
		r.Geometry = join(r.Geometry, line)
	}

	p.logger.Debug().
		Interface("path_ids", ids).
		Int("edge_count", len(edges)).
		Msg("aggregated k shortest paths")

	return routes, nil
}

// parseLine decodes an ST_AsText edge geometry.
func parseLine(text string) (orb.LineString, error) {
	geom, err := wkt.Unmarshal(text)
	if err != nil {
		return nil, fmt.Errorf("parse edge geometry: %w", err)
	}

	switch g := geom.(type) {
	case orb.LineString:
		return g, nil
	case orb.MultiLineString:
		var out orb.LineString
		for _, ls := range g {
			out = join(out, ls)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected edge geometry %s", geom.GeoJSONType())
	}
}

// reversed reports whether an edge is stored against the direction of travel,
// i.e. its far end lies closer to anchor than its first vertex. The anchor is
// the route's last point, or the requested start for the first edge.
func reversed(line orb.LineString, anchor orb.Point) bool {
	if len(line) < 2 {
		return false
	}
	return planar.Distance(anchor, line[len(line)-1]) < planar.Distance(anchor, line[0])
}

// join appends next to line, dropping a repeated joint vertex.
func join(line, next orb.LineString) orb.LineString {
	if len(line) > 0 && len(next) > 0 && line[len(line)-1].Equal(next[0]) {
		next = next[1:]
	}
	return append(line, next...)
}
