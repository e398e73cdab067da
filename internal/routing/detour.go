package routing

import "github.com/paulmach/orb"

// ComposeDetour joins the primary routes of two legs into one route through the detour point.
// first holds the start-to-detour alternatives and second the detour-to-end alternatives.
func ComposeDetour(first, second []Route, startLabel, endLabel string) (Route, error) {
	if len(first) == 0 {
		return Route{}, &IncompleteLegError{Leg: LegStartToDetour}
	}
	if len(second) == 0 {
		return Route{}, &IncompleteLegError{Leg: LegDetourToEnd}
	}

	a, b := first[0], second[0]

	steps := make([]RouteStep, 0, len(a.Steps)+len(b.Steps))
	steps = append(steps, a.Steps...)
	steps = append(steps, b.Steps...)

	geometry := make(orb.LineString, 0, len(a.Geometry)+len(b.Geometry))
	geometry = append(geometry, a.Geometry...)
	geometry = append(geometry, b.Geometry...)

	return Route{
		Steps:      steps,
		Distance:   a.Distance + b.Distance,
		Duration:   a.Duration + b.Duration,
		StartLabel: startLabel,
		EndLabel:   endLabel,
		Geometry:   geometry,
	}, nil
}
