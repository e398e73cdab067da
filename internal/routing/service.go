package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kmerroute/kmerroute/internal/cache"
)

const tracerName = "github.com/kmerroute/kmerroute/internal/routing"

// Recorder receives provider call timings. Satisfied by middleware.RoutingMetrics.
type Recorder interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
}

// ServiceConfig holds configuration for the routing service.
type ServiceConfig struct {
	// Graph is the local road-graph provider.
	Graph GraphProvider

	// External is the fallback routing service, also used for detours.
	External ExternalProvider

	// Cache memoizes direct routes (optional).
	Cache *cache.Cache

	// Bounds is the serviced region (default: DefaultBounds).
	Bounds Bounds

	// Logger for service operations.
	Logger zerolog.Logger

	// Metrics records provider timings (optional).
	Metrics Recorder

	// CoalesceMisses shares one computation between concurrent misses on the same key.
	CoalesceMisses bool
}

// Service orchestrates cache lookup, graph routing and the external fallback.
type Service struct {
	graph    GraphProvider
	external ExternalProvider
	cache    *cache.Cache
	bounds   Bounds
	logger   zerolog.Logger
	metrics  Recorder
	tracer   trace.Tracer
	coalesce bool
	group    singleflight.Group
}

// NewService creates a new routing service.
func NewService(cfg ServiceConfig) *Service {
	bounds := cfg.Bounds
	if bounds == (Bounds{}) {
		bounds = DefaultBounds
	}

	return &Service{
		graph:    cfg.Graph,
		external: cfg.External,
		cache:    cfg.Cache,
		bounds:   bounds,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		tracer:   otel.Tracer(tracerName),
		coalesce: cfg.CoalesceMisses,
	}
}

// Bounds returns the serviced region.
func (s *Service) Bounds() Bounds {
	return s.bounds
}

// Route computes up to three alternatives between two points.
// Cached results are returned as is; otherwise the graph provider is tried first
// and the external provider is used whenever it fails or finds nothing.
func (s *Service) Route(ctx context.Context, req DirectRequest) (*Result, error) {
	if err := s.validateDirect(req); err != nil {
		return nil, err
	}

	start, end := req.Points[0], req.Points[1]
	key := cache.RouteKey(start.Lat, start.Lng, end.Lat, end.Lng, string(req.Mode))

	ctx, span := s.tracer.Start(ctx, "routing.Route", trace.WithAttributes(
		attribute.String("route.mode", string(req.Mode)),
		attribute.String("cache.key", key),
	))
	defer span.End()

	if res, ok := s.lookup(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return withLabels(res, req.StartLabel, req.EndLabel), nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	var (
		res *Result
		err error
	)
	if s.coalesce {
		res, err = s.computeShared(ctx, key, req)
	} else {
		res, err = s.compute(ctx, key, req)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("route.alternatives", len(res.Routes)))
	return res, nil
}

func (s *Service) computeShared(ctx context.Context, key string, req DirectRequest) (*Result, error) {
	v, err, shared := s.group.Do(key, func() (any, error) {
		return s.compute(context.WithoutCancel(ctx), key, req)
	})
	if err != nil {
		return nil, err
	}

	res := v.(*Result)
	if shared {
		s.logger.Debug().Str("cache_key", key).Msg("shared in-flight route computation")
		res = withLabels(res, req.StartLabel, req.EndLabel)
	}
	return res, nil
}

func (s *Service) lookup(ctx context.Context, key string) (*Result, bool) {
	if s.cache == nil {
		return nil, false
	}

	ctx, span := s.tracer.Start(ctx, "routing.CacheLookup")
	defer span.End()

	res, ok := cache.Get[*Result](ctx, s.cache, key)
	if !ok {
		return nil, false
	}

	s.logger.Debug().
		Str("cache_key", key).
		Int("route_count", len(res.Routes)).
		Msg("route served from cache")
	return res, true
}

func (s *Service) compute(ctx context.Context, key string, req DirectRequest) (*Result, error) {
	res, err := s.local(ctx, req)
	if err == nil && !res.Empty() {
		s.store(ctx, key, res)
		return res, nil
	}

	s.logger.Warn().Err(err).
		Str("cache_key", key).
		Str("mode", string(req.Mode)).
		Msg("graph routing failed, falling back to external provider")

	routes := s.externalRoutes(ctx, "route", ExternalRequest{
		Points:     req.Points,
		Profile:    ProfileForMode(req.Mode),
		StartLabel: req.StartLabel,
		EndLabel:   req.EndLabel,
	})
	if len(routes) == 0 {
		return nil, ErrNoRouteFound
	}

	res = &Result{Routes: routes}
	s.store(ctx, key, res)
	return res, nil
}

func (s *Service) local(ctx context.Context, req DirectRequest) (*Result, error) {
	if s.graph == nil {
		return nil, errors.New("no graph provider configured")
	}

	ctx, span := s.tracer.Start(ctx, "routing.LocalCompute", trace.WithAttributes(
		attribute.String("provider", s.graph.Name()),
	))
	defer span.End()

	started := time.Now()
	res, err := s.graph.FindRoute(ctx, GraphRequest{
		Start:      req.Points[0],
		End:        req.Points[1],
		Mode:       req.Mode,
		StartLabel: req.StartLabel,
		EndLabel:   req.EndLabel,
	})
	if s.metrics != nil {
		s.metrics.RecordRequest(s.graph.Name(), "find_route", time.Since(started), err)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return res, nil
}

func (s *Service) externalRoutes(ctx context.Context, operation string, req ExternalRequest) []Route {
	if s.external == nil {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "routing.ExternalCompute", trace.WithAttributes(
		attribute.String("provider", s.external.Name()),
		attribute.String("profile", string(req.Profile)),
	))
	defer span.End()

	started := time.Now()
	routes := s.external.FindRoutes(ctx, req)

	var err error
	if len(routes) == 0 {
		err = ErrNoRouteFound
	}
	if s.metrics != nil {
		s.metrics.RecordRequest(s.external.Name(), operation, time.Since(started), err)
	}
	span.SetAttributes(attribute.Int("route.alternatives", len(routes)))
	return routes
}

func (s *Service) store(ctx context.Context, key string, res *Result) {
	if s.cache == nil {
		return
	}

	ctx, span := s.tracer.Start(ctx, "routing.Store")
	defer span.End()

	if !s.cache.Set(ctx, key, res) {
		s.logger.Debug().Str("cache_key", key).Msg("route not cached")
	}
}

// RouteWithDetour computes a route from start to end through the detour point.
// Both legs go to the external provider concurrently and the results are not cached.
func (s *Service) RouteWithDetour(ctx context.Context, req DetourRequest) (*Result, error) {
	if err := s.validateDetour(req); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "routing.RouteWithDetour", trace.WithAttributes(
		attribute.String("route.mode", string(req.Mode)),
	))
	defer span.End()

	profile := ProfileForDetourMode(req.Mode)
	var first, second []Route

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		first = s.externalRoutes(gctx, "detour_leg", ExternalRequest{
			Points:     []Point{*req.Start, *req.Detour},
			Profile:    profile,
			StartLabel: req.StartLabel,
			EndLabel:   req.DetourLabel,
		})
		return nil
	})
	g.Go(func() error {
		second = s.externalRoutes(gctx, "detour_leg", ExternalRequest{
			Points:     []Point{*req.Detour, *req.End},
			Profile:    profile,
			StartLabel: req.DetourLabel,
			EndLabel:   req.EndLabel,
		})
		return nil
	})
	_ = g.Wait()

	route, err := ComposeDetour(first, second, req.StartLabel, req.EndLabel)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("mode", string(req.Mode)).
			Msg("detour route incomplete")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &Result{Routes: []Route{route}}, nil
}

func (s *Service) validateDirect(req DirectRequest) error {
	if len(req.Points) != 2 {
		return &ValidationError{Field: "points", Message: "exactly two points are required"}
	}
	if !req.Mode.Valid() {
		return &ValidationError{Field: "mode", Message: fmt.Sprintf("unrecognised mode %q", req.Mode)}
	}
	for i, p := range req.Points {
		if err := s.checkPoint(fmt.Sprintf("points[%d]", i), p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) validateDetour(req DetourRequest) error {
	if req.Start == nil || req.Detour == nil || req.End == nil {
		return &ValidationError{Field: "points", Message: "start, detour and end points are required"}
	}
	if !req.Mode.Valid() {
		return &ValidationError{Field: "transportMode", Message: fmt.Sprintf("unrecognised transport mode %q", req.Mode)}
	}
	for _, named := range []struct {
		field string
		point Point
	}{
		{"start", *req.Start},
		{"detour", *req.Detour},
		{"end", *req.End},
	} {
		if err := s.checkPoint(named.field, named.point); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) checkPoint(field string, p Point) error {
	if !p.Valid() {
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s is not a valid coordinate", field)}
	}
	if !s.bounds.Contains(p) {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s is outside the serviced region", field),
			Err:     ErrOutOfRegion,
		}
	}
	return nil
}

// withLabels returns a copy of res whose routes carry the given endpoint labels.
// Empty labels keep the stored ones.
func withLabels(res *Result, startLabel, endLabel string) *Result {
	routes := make([]Route, len(res.Routes))
	copy(routes, res.Routes)
	for i := range routes {
		if startLabel != "" {
			routes[i].StartLabel = startLabel
		}
		if endLabel != "" {
			routes[i].EndLabel = endLabel
		}
	}
	return &Result{Routes: routes}
}
