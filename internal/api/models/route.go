package models

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RouteRequest is the request body for a direct route.
type RouteRequest struct {
	Points         []Point `json:"points"`
	Mode           string  `json:"mode,omitempty"`
	StartPlaceName string  `json:"startPlaceName,omitempty"`
	EndPlaceName   string  `json:"endPlaceName,omitempty"`
}

// DetourRequest is the request body for a route through an intermediate point.
type DetourRequest struct {
	Start           *Point `json:"start"`
	Detour          *Point `json:"detour"`
	End             *Point `json:"end"`
	TransportMode   string `json:"transportMode,omitempty"`
	StartPlaceName  string `json:"startPlaceName,omitempty"`
	DetourPlaceName string `json:"detourPlaceName,omitempty"`
	EndPlaceName    string `json:"endPlaceName,omitempty"`
}

// RouteResponse carries either route alternatives or an error message.
type RouteResponse struct {
	Routes []Route `json:"routes,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Route is one route alternative.
type Route struct {
	StartPlaceName string  `json:"startPlaceName"`
	EndPlaceName   string  `json:"endPlaceName"`
	Distance       float64 `json:"distance"`
	Duration       float64 `json:"duration"`

	// Geometry is a WKT LINESTRING in (lng lat) order.
	Geometry string `json:"geometry"`

	// Polyline is the same geometry in Google's encoded polyline format.
	Polyline string `json:"polyline,omitempty"`

	Steps []RouteStep `json:"steps"`
}

// RouteStep is one segment of a route.
type RouteStep struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Geometry string  `json:"geometry"`
}
