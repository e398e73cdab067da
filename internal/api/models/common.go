// Package models defines the JSON bodies of the routing API.
package models

// HealthStatus is the state of the service, a subsystem or a provider.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "OK"
	HealthStatusDegraded HealthStatus = "DEGRADED"
	HealthStatusFail     HealthStatus = "FAIL"
)

func (s HealthStatus) severity() int {
	switch s {
	case HealthStatusOK:
		return 0
	case HealthStatusDegraded:
		return 1
	default:
		return 2
	}
}

// Worst returns the more severe of s and other. Unknown values count as FAIL.
func (s HealthStatus) Worst(other HealthStatus) HealthStatus {
	if other.severity() > s.severity() {
		return other
	}
	return s
}
