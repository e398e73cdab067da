package resilience

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker is the read side of a circuit breaker. Satisfied by *Transport
// and *gobreaker.CircuitBreaker.
type Breaker interface {
	State() gobreaker.State
	Counts() gobreaker.Counts
}

// Condition summarises a breaker state for health reporting.
type Condition int

const (
	Healthy Condition = iota
	Degraded
	Unhealthy
)

func (c Condition) String() string {
	switch c {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	default:
		return "unhealthy"
	}
}

// ProviderHealth is a point-in-time view of one provider.
type ProviderHealth struct {
	Name          string
	State         gobreaker.State
	Counts        gobreaker.Counts
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

// Condition maps the breaker state: closed is healthy, half-open degraded
// and open unhealthy.
func (h ProviderHealth) Condition() Condition {
	switch h.State {
	case gobreaker.StateClosed:
		return Healthy
	case gobreaker.StateHalfOpen:
		return Degraded
	default:
		return Unhealthy
	}
}

// Registry collects provider breakers and their latest outcomes.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

type entry struct {
	breaker     Breaker
	lastSuccess time.Time
	lastFailure time.Time
	lastError   string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry), now: time.Now}
}

// Track registers a breaker under name, resetting any earlier outcomes.
func (r *Registry) Track(name string, b Breaker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &entry{breaker: b}
}

// Observe records the outcome of a call. A nil err is a success. Untracked
// names are ignored.
func (r *Registry) Observe(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return
	}
	if err == nil {
		e.lastSuccess = r.now()
		return
	}
	e.lastFailure = r.now()
	e.lastError = err.Error()
}

// Health returns the view of one provider.
func (r *Registry) Health(name string) (ProviderHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return ProviderHealth{}, false
	}
	return e.snapshot(name), true
}

// Snapshot returns every tracked provider ordered by name.
func (r *Registry) Snapshot() []ProviderHealth {
	r.mu.RLock()
	out := make([]ProviderHealth, 0, len(r.entries))
	for name, e := range r.entries {
		out = append(out, e.snapshot(name))
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b ProviderHealth) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

func (e *entry) snapshot(name string) ProviderHealth {
	h := ProviderHealth{
		Name:      name,
		State:     e.breaker.State(),
		Counts:    e.breaker.Counts(),
		LastError: e.lastError,
	}
	if !e.lastSuccess.IsZero() {
		t := e.lastSuccess
		h.LastSuccessAt = &t
	}
	if !e.lastFailure.IsZero() {
		t := e.lastFailure
		h.LastFailureAt = &t
	}
	return h
}
