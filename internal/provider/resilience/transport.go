package resilience

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned while a provider's breaker rejects requests.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// StatusError marks a 5xx answer. The breaker counts it as a failure even
// though the response itself reaches the caller.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.StatusCode)
}

// Option configures a Transport.
type Option func(*Transport)

// WithBase sets the round tripper requests are sent through.
func WithBase(rt http.RoundTripper) Option {
	return func(t *Transport) { t.base = rt }
}

// WithBreaker replaces DefaultBreakerSettings.
func WithBreaker(s BreakerSettings) Option {
	return func(t *Transport) { t.settings = s }
}

// WithRetries retries transport errors and 5xx answers with exponential
// backoff starting at initial. Requests with a body need GetBody set.
func WithRetries(n uint64, initial time.Duration) Option {
	return func(t *Transport) {
		t.retries = n
		t.initialBackoff = initial
	}
}

// WithRegistry reports outcomes to r under the transport's name.
func WithRegistry(r *Registry) Option {
	return func(t *Transport) { t.registry = r }
}

// Transport is an http.RoundTripper that sends one provider's requests
// through a circuit breaker.
type Transport struct {
	name           string
	base           http.RoundTripper
	settings       BreakerSettings
	retries        uint64
	initialBackoff time.Duration
	registry       *Registry
	breaker        *gobreaker.CircuitBreaker[*http.Response]
}

// NewTransport builds a guarded transport for the named provider.
func NewTransport(name string, opts ...Option) *Transport {
	t := &Transport{
		name:           name,
		base:           http.DefaultTransport,
		settings:       DefaultBreakerSettings(),
		initialBackoff: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.breaker = newBreaker[*http.Response](name, t.settings) //nolint:bodyclose // type param
	if t.registry != nil {
		t.registry.Track(name, t)
	}
	return t
}

// NewHTTPClient returns a client whose requests go through NewTransport.
func NewHTTPClient(name string, timeout time.Duration, opts ...Option) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(name, opts...),
	}
}

// Name returns the provider name.
func (t *Transport) Name() string { return t.name }

// State returns the breaker state.
func (t *Transport) State() gobreaker.State { return t.breaker.State() }

// Counts returns the breaker counters.
func (t *Transport) Counts() gobreaker.Counts { return t.breaker.Counts() }

// RoundTrip implements http.RoundTripper. A 5xx that survives every retry is
// returned as a response, not an error.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.roundTrip(req)
	if t.registry != nil {
		switch {
		case err != nil:
			t.registry.Observe(t.name, err)
		case resp.StatusCode >= http.StatusInternalServerError:
			t.registry.Observe(t.name, &StatusError{StatusCode: resp.StatusCode})
		default:
			t.registry.Observe(t.name, nil)
		}
	}
	return resp, err
}

func (t *Transport) roundTrip(req *http.Request) (*http.Response, error) {
	var last *http.Response
	tries := 0
	attempt := func() error {
		if last != nil {
			last.Body.Close()
			last = nil
		}
		out, err := t.rewind(req, tries)
		if err != nil {
			return backoff.Permanent(err)
		}
		tries++
		resp, err := t.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // closed by caller
			resp, err := t.base.RoundTrip(out)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode >= http.StatusInternalServerError {
				return resp, &StatusError{StatusCode: resp.StatusCode}
			}
			return resp, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(fmt.Errorf("%s: %w", t.name, ErrCircuitOpen))
		}
		last = resp
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = t.initialBackoff
	policy.MaxElapsedTime = 0

	err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(policy, t.retries), req.Context()))
	var status *StatusError
	if last != nil && (err == nil || errors.As(err, &status)) {
		return last, nil
	}
	if last != nil {
		last.Body.Close()
	}
	return nil, err
}

// rewind returns the request for a retry, reloading its body.
func (t *Transport) rewind(req *http.Request, tries int) (*http.Request, error) {
	if tries == 0 || req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewinding request body: %w", err)
	}
	out := req.Clone(req.Context())
	out.Body = body
	return out, nil
}
