package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/kmerroute/kmerroute/internal/api/middleware"

// unmatchedRoute labels requests no route matched, keeping label cardinality bounded.
const unmatchedRoute = "unmatched"

// Metrics holds the HTTP server instruments.
type Metrics struct {
	requestDuration  metric.Float64Histogram
	requestTotal     metric.Int64Counter
	requestsInFlight metric.Int64UpDownCounter
	responseSize     metric.Int64Histogram
}

// NewMetrics creates the HTTP server instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	var m Metrics
	var errs []error

	var err error
	m.requestDuration, err = meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Duration of HTTP server requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	errs = append(errs, err)

	m.requestTotal, err = meter.Int64Counter("http.server.request.total",
		metric.WithDescription("HTTP server requests by route and status"),
		metric.WithUnit("{request}"),
	)
	errs = append(errs, err)

	m.requestsInFlight, err = meter.Int64UpDownCounter("http.server.active_requests",
		metric.WithDescription("HTTP requests currently being served"),
		metric.WithUnit("{request}"),
	)
	errs = append(errs, err)

	m.responseSize, err = meter.Int64Histogram("http.server.response.body.size",
		metric.WithDescription("Size of HTTP response bodies"),
		metric.WithUnit("By"),
	)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("create http instruments: %w", err)
	}
	return &m, nil
}

// Middleware records duration, count and size per request, labelled with the
// matched route pattern rather than the raw path.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			method := metric.WithAttributes(attribute.String("http.request.method", r.Method))
			m.requestsInFlight.Add(ctx, 1, method)
			defer m.requestsInFlight.Add(ctx, -1, method)

			ww := wrapWriter(w, r)
			next.ServeHTTP(ww, r)

			route := routePattern(r)
			if route == "" {
				route = unmatchedRoute
			}
			code := statusOf(ww)
			attrs := []attribute.KeyValue{
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", code),
			}
			if code >= http.StatusInternalServerError {
				attrs = append(attrs, attribute.String("error.type", strconv.Itoa(code)))
			}
			set := metric.WithAttributes(attrs...)

			m.requestDuration.Record(ctx, time.Since(start).Seconds(), set)
			m.requestTotal.Add(ctx, 1, set)
			m.responseSize.Record(ctx, int64(ww.BytesWritten()), set)
		})
	}
}

// RoutingMetrics records routing provider calls and result cache lookups.
// It satisfies routing.Recorder and cache.Recorder.
type RoutingMetrics struct {
	providerDuration metric.Float64Histogram
	providerCalls    metric.Int64Counter
	cacheHits        metric.Int64Counter
	cacheMisses      metric.Int64Counter
}

// NewRoutingMetrics creates the routing instruments on the global meter provider.
func NewRoutingMetrics() (*RoutingMetrics, error) {
	meter := otel.Meter(meterName)
	var m RoutingMetrics
	var errs []error

	var err error
	m.providerDuration, err = meter.Float64Histogram("routing.provider.duration",
		metric.WithDescription("Duration of graph and external routing calls"),
		metric.WithUnit("s"),
	)
	errs = append(errs, err)

	m.providerCalls, err = meter.Int64Counter("routing.provider.calls",
		metric.WithDescription("Routing provider calls by outcome"),
		metric.WithUnit("{call}"),
	)
	errs = append(errs, err)

	m.cacheHits, err = meter.Int64Counter("routing.cache.hits",
		metric.WithDescription("Result cache hits"),
		metric.WithUnit("{hit}"),
	)
	errs = append(errs, err)

	m.cacheMisses, err = meter.Int64Counter("routing.cache.misses",
		metric.WithDescription("Result cache misses"),
		metric.WithUnit("{miss}"),
	)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("create routing instruments: %w", err)
	}
	return &m, nil
}

// RecordRequest records one provider call.
func (m *RoutingMetrics) RecordRequest(provider, operation string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	set := metric.WithAttributes(
		attribute.String("routing.provider", provider),
		attribute.String("routing.operation", operation),
		attribute.String("routing.outcome", outcome),
	)

	// Recorded after the request context may be gone.
	ctx := context.Background()
	m.providerDuration.Record(ctx, duration.Seconds(), set)
	m.providerCalls.Add(ctx, 1, set)
}

// RecordCacheHit counts a hit on a store for a key kind (route, place).
func (m *RoutingMetrics) RecordCacheHit(store, kind string) {
	m.cacheHits.Add(context.Background(), 1, cacheAttrs(store, kind))
}

// RecordCacheMiss counts a miss on a store for a key kind.
func (m *RoutingMetrics) RecordCacheMiss(store, kind string) {
	m.cacheMisses.Add(context.Background(), 1, cacheAttrs(store, kind))
}

func cacheAttrs(store, kind string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("cache.store", store),
		attribute.String("cache.key_kind", kind),
	)
}
