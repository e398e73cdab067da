package osrm

// OSRM route service response types.
// See http://project-osrm.org/docs/v5.24.0/api/#route-service

const codeOK = "Ok"

type routeResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message,omitempty"`
	Routes  []route `json:"routes"`
}

type route struct {
	Distance *float64 `json:"distance"`
	Duration *float64 `json:"duration"`
	Geometry geometry `json:"geometry"`
	Legs     []leg    `json:"legs"`
}

type geometry struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"`
}

type leg struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Steps    []step  `json:"steps"`
}

type step struct {
	Distance float64  `json:"distance"`
	Duration float64  `json:"duration"`
	Name     string   `json:"name"`
	Geometry geometry `json:"geometry"`
	Maneuver maneuver `json:"maneuver"`
}

type maneuver struct {
	Type        string `json:"type"`
	Modifier    string `json:"modifier,omitempty"`
	Instruction string `json:"instruction,omitempty"`
}
