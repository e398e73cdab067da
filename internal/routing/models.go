// Package routing computes direct and detour routes over the serviced road network.
package routing

import (
	"context"
	"errors"

	"github.com/paulmach/orb"
)

// Sentinel errors for routing operations.
var (
	// ErrInvalidRequest indicates the request failed validation; no computation was attempted.
	ErrInvalidRequest = errors.New("invalid routing request")
	// ErrOutOfRegion indicates a point lies outside the serviced region.
	ErrOutOfRegion = errors.New("point outside the serviced region")
	// ErrNoNodeFound indicates no graph node could be resolved for a point.
	ErrNoNodeFound = errors.New("no graph node found")
	// ErrDegenerateRoute indicates start and end resolve to the same graph node.
	ErrDegenerateRoute = errors.New("start and end resolve to the same graph node")
	// ErrNoRouteFound indicates no valid route exists between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrIncompleteLeg indicates one leg of a detour could not be routed.
	ErrIncompleteLeg = errors.New("detour leg has no route")
)

// GraphProvider resolves routes over the local road graph.
type GraphProvider interface {
	// FindRoute returns up to three alternatives between two points.
	// Fails with ErrOutOfRegion, ErrNoNodeFound, ErrDegenerateRoute or ErrNoRouteFound.
	FindRoute(ctx context.Context, req GraphRequest) (*Result, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// ExternalProvider resolves routes through a third-party routing service.
// Implementations never return an error: any failure yields an empty slice.
type ExternalProvider interface {
	FindRoutes(ctx context.Context, req ExternalRequest) []Route
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Orb returns the point in orb's (lng, lat) order.
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// Valid reports whether the point is a well-formed WGS84 coordinate.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// RouteStep is one segment of a route.
//
// Distance and Duration are in the producing provider's units: the graph provider reports
// edge cost units and hours, the external provider reports meters and seconds.
type RouteStep struct {
	Geometry orb.LineString `json:"geometry"`
	Source   string         `json:"source"`
	Target   string         `json:"target"`
	Distance float64        `json:"distance"`
	Duration float64        `json:"duration"`
}

// Route is a single route alternative.
type Route struct {
	Steps      []RouteStep    `json:"steps"`
	Distance   float64        `json:"distance"`
	Duration   float64        `json:"duration"`
	StartLabel string         `json:"startLabel"`
	EndLabel   string         `json:"endLabel"`
	Geometry   orb.LineString `json:"geometry"`
}

// Result holds up to three route alternatives. The first one is the primary route.
type Result struct {
	Routes []Route `json:"routes"`
}

// CacheDistance returns the primary route distance. Used by the cache TTL policy.
func (r *Result) CacheDistance() float64 {
	if r == nil || len(r.Routes) == 0 {
		return 0
	}
	return r.Routes[0].Distance
}

// Empty reports whether the result carries no alternatives.
func (r *Result) Empty() bool {
	return r == nil || len(r.Routes) == 0
}

// GraphRequest is a point-to-point query against the road graph.
type GraphRequest struct {
	Start      Point
	End        Point
	Mode       Mode
	StartLabel string
	EndLabel   string
}

// ExternalRequest is a waypoint query against the external routing service.
type ExternalRequest struct {
	Points     []Point
	Profile    Profile
	StartLabel string
	EndLabel   string
}

// DirectRequest asks for a route between exactly two points.
type DirectRequest struct {
	Points     []Point
	Mode       Mode
	StartLabel string
	EndLabel   string
}

// DetourRequest asks for a route from Start to End passing through Detour.
type DetourRequest struct {
	Start       *Point
	Detour      *Point
	End         *Point
	Mode        DetourMode
	StartLabel  string
	DetourLabel string
	EndLabel    string
}

// ValidationError describes a rejected request.
type ValidationError struct {
	Field   string
	Message string
	// Err is the more specific cause, such as ErrOutOfRegion.
	Err error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidRequest}
	}
	return []error{ErrInvalidRequest, e.Err}
}

// Leg identifies one half of a detour route.
type Leg string

const (
	LegStartToDetour Leg = "start to detour"
	LegDetourToEnd   Leg = "detour to end"
)

// IncompleteLegError reports which detour leg produced no route.
type IncompleteLegError struct {
	Leg Leg
}

func (e *IncompleteLegError) Error() string {
	return "no route found from " + string(e.Leg)
}

func (e *IncompleteLegError) Unwrap() error {
	return ErrIncompleteLeg
}
