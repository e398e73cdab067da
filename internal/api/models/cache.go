package models

// Cache health values.
const (
	CacheStatusUp   = "UP"
	CacheStatusDown = "DOWN"
)

// CacheHealth reports cache store availability.
type CacheHealth struct {
	Status  string `json:"status"`
	Service string `json:"service"`

	// Timestamp is in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// CacheProbe is the result of a cache self-test round trip.
type CacheProbe struct {
	Success   bool   `json:"success"`
	Original  Point  `json:"original"`
	Retrieved *Point `json:"retrieved,omitempty"`
	Equals    bool   `json:"equals"`
	Error     string `json:"error,omitempty"`
}
