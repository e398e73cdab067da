package routing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmerroute/kmerroute/internal/cache"
)

// mockGraph is a mock graph provider for testing.
type mockGraph struct {
	result    *Result
	err       error
	callCount atomic.Int32
	delay     time.Duration
	lastReq   GraphRequest
	mu        sync.Mutex
}

func (m *mockGraph) FindRoute(_ context.Context, req GraphRequest) (*Result, error) {
	m.callCount.Add(1)
	m.mu.Lock()
	m.lastReq = req
	m.mu.Unlock()
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockGraph) Name() string { return "graph" }

// mockExternal is a mock external provider keyed by the first waypoint.
type mockExternal struct {
	routes    []Route
	byStart   map[Point][]Route
	callCount atomic.Int32
	mu        sync.Mutex
	requests  []ExternalRequest
}

func (m *mockExternal) FindRoutes(_ context.Context, req ExternalRequest) []Route {
	m.callCount.Add(1)
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.byStart != nil {
		return m.byStart[req.Points[0]]
	}
	return m.routes
}

func (m *mockExternal) Name() string { return "external" }

// countingStore counts writes per key.
type countingStore struct {
	*cache.MemoryStore
	mu     sync.Mutex
	writes map[string]int
}

func (s *countingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	s.writes[key]++
	s.mu.Unlock()
	return s.MemoryStore.Set(ctx, key, value, ttl)
}

func (s *countingStore) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[key]
}

func newTestCache(t *testing.T) (*cache.Cache, *countingStore) {
	t.Helper()
	mem, err := cache.NewMemoryStore(cache.MemoryStoreConfig{})
	require.NoError(t, err)
	store := &countingStore{MemoryStore: mem, writes: make(map[string]int)}
	return cache.New(context.Background(), cache.Config{Store: store}), store
}

var (
	douala  = Point{Lat: 4.0511, Lng: 9.7679}
	yaounde = Point{Lat: 3.8480, Lng: 11.5021}
	kribi   = Point{Lat: 2.9400, Lng: 9.9100}
	paris   = Point{Lat: 48.8566, Lng: 2.3522}
)

func graphRoute(distance float64, mode Mode) Route {
	return Route{
		Steps: []RouteStep{{
			Geometry: orb.LineString{douala.Orb(), yaounde.Orb()},
			Source:   "Douala",
			Target:   "Yaounde",
			Distance: distance,
			Duration: distance / SpeedForMode(mode),
		}},
		Distance:   distance,
		Duration:   distance / SpeedForMode(mode),
		StartLabel: "Douala",
		EndLabel:   "Yaounde",
		Geometry:   orb.LineString{douala.Orb(), yaounde.Orb()},
	}
}

func externalRoute(distance, duration float64) Route {
	return Route{
		Steps: []RouteStep{{
			Geometry: orb.LineString{douala.Orb(), yaounde.Orb()},
			Source:   "Head east",
			Target:   "Head east",
			Distance: distance,
			Duration: duration,
		}},
		Distance: distance,
		Duration: duration,
		Geometry: orb.LineString{douala.Orb(), yaounde.Orb()},
	}
}

func TestService_Route_GraphSuccessIsCached(t *testing.T) {
	graph := &mockGraph{result: &Result{Routes: []Route{graphRoute(10, ModeDriving)}}}
	external := &mockExternal{}
	c, store := newTestCache(t)

	service := NewService(ServiceConfig{Graph: graph, External: external, Cache: c})

	req := DirectRequest{Points: []Point{douala, yaounde}, Mode: ModeDriving, StartLabel: "Douala", EndLabel: "Yaounde"}
	res, err := service.Route(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Routes, 1)

	assert.Equal(t, 10.0, res.Routes[0].Distance)
	assert.InDelta(t, 10.0/25.0, res.Routes[0].Duration, 1e-9)
	assert.Equal(t, int32(0), external.callCount.Load())

	key := "r:4.0511:9.7679:3.8480:11.5021:d"
	assert.Equal(t, 1, store.count(key))

	cached, ok := cache.Get[*Result](context.Background(), c, key)
	require.True(t, ok)
	assert.Equal(t, 10.0, cached.Routes[0].Distance)
}

func TestService_Route_CacheHitBypassesProviders(t *testing.T) {
	graph := &mockGraph{result: &Result{Routes: []Route{graphRoute(10, ModeWalking)}}}
	c, _ := newTestCache(t)

	service := NewService(ServiceConfig{Graph: graph, External: &mockExternal{}, Cache: c})
	ctx := context.Background()

	_, err := service.Route(ctx, DirectRequest{Points: []Point{douala, yaounde}, Mode: ModeWalking, StartLabel: "A", EndLabel: "B"})
	require.NoError(t, err)

	res, err := service.Route(ctx, DirectRequest{Points: []Point{douala, yaounde}, Mode: ModeWalking, StartLabel: "Akwa", EndLabel: "Mvan"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), graph.callCount.Load())
	assert.Equal(t, "Akwa", res.Routes[0].StartLabel)
	assert.Equal(t, "Mvan", res.Routes[0].EndLabel)
	assert.Equal(t, int64(1), c.Usage("r:4.0511:9.7679:3.8480:11.5021:w"))
}

func TestService_Route_EmptyResultNeverCached(t *testing.T) {
	graph := &mockGraph{result: &Result{Routes: []Route{graphRoute(10, ModeDriving)}}}
	c, store := newTestCache(t)
	key := "r:4.0511:9.7679:3.8480:11.5021:d"

	assert.False(t, c.Set(context.Background(), key, &Result{}))
	assert.Equal(t, 0, store.count(key))

	service := NewService(ServiceConfig{Graph: graph, External: &mockExternal{}, Cache: c})
	res, err := service.Route(context.Background(), DirectRequest{Points: []Point{douala, yaounde}, Mode: ModeDriving})
	require.NoError(t, err)
	assert.Len(t, res.Routes, 1)
	assert.Equal(t, int32(1), graph.callCount.Load())
	assert.Equal(t, int64(0), c.Usage(key))
}

func TestService_Route_FallsBackOnGraphError(t *testing.T) {
	graph := &mockGraph{err: ErrNoRouteFound}
	external := &mockExternal{routes: []Route{externalRoute(12000, 900), externalRoute(13000, 960)}}
	c, store := newTestCache(t)

	service := NewService(ServiceConfig{Graph: graph, External: external, Cache: c})

	res, err := service.Route(context.Background(), DirectRequest{
		Points:     []Point{douala, yaounde},
		Mode:       ModeCycling,
		StartLabel: "Douala",
		EndLabel:   "Yaounde",
	})
	require.NoError(t, err)
	assert.Len(t, res.Routes, 2)
	assert.Equal(t, int32(1), external.callCount.Load())
	assert.Equal(t, 1, store.count("r:4.0511:9.7679:3.8480:11.5021:c"))

	require.Len(t, external.requests, 1)
	assert.Equal(t, ProfileBike, external.requests[0].Profile)
	assert.Equal(t, []Point{douala, yaounde}, external.requests[0].Points)
	assert.Equal(t, "Douala", external.requests[0].StartLabel)
}

func TestService_Route_FallsBackOnEmptyGraphResult(t *testing.T) {
	graph := &mockGraph{result: &Result{}}
	external := &mockExternal{routes: []Route{externalRoute(1, 1)}}

	service := NewService(ServiceConfig{Graph: graph, External: external})

	res, err := service.Route(context.Background(), DirectRequest{Points: []Point{douala, yaounde}, Mode: ModeDriving})
	require.NoError(t, err)
	assert.Len(t, res.Routes, 1)
	assert.Equal(t, int32(1), external.callCount.Load())
}

func TestService_Route_ExternalEmptyIsNoRoute(t *testing.T) {
	graph := &mockGraph{err: ErrDegenerateRoute}
	external := &mockExternal{}
	c, store := newTestCache(t)

	service := NewService(ServiceConfig{Graph: graph, External: external, Cache: c})

	_, err := service.Route(context.Background(), DirectRequest{Points: []Point{douala, yaounde}, Mode: ModeDriving})
	require.ErrorIs(t, err, ErrNoRouteFound)
	assert.Equal(t, 0, store.count("r:4.0511:9.7679:3.8480:11.5021:d"))
}

func TestService_Route_Validation(t *testing.T) {
	tests := []struct {
		name   string
		req    DirectRequest
		field  string
		region bool
	}{
		{"one point", DirectRequest{Points: []Point{douala}, Mode: ModeDriving}, "points", false},
		{"three points", DirectRequest{Points: []Point{douala, yaounde, kribi}, Mode: ModeDriving}, "points", false},
		{"unknown mode", DirectRequest{Points: []Point{douala, yaounde}, Mode: "flying"}, "mode", false},
		{"detour mode", DirectRequest{Points: []Point{douala, yaounde}, Mode: "taxi"}, "mode", false},
		{"outside region", DirectRequest{Points: []Point{douala, paris}, Mode: ModeDriving}, "points[1]", true},
		{"invalid coordinate", DirectRequest{Points: []Point{{Lat: 91, Lng: 0}, yaounde}, Mode: ModeDriving}, "points[0]", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graph := &mockGraph{}
			external := &mockExternal{}
			service := NewService(ServiceConfig{Graph: graph, External: external})

			_, err := service.Route(context.Background(), tt.req)
			require.ErrorIs(t, err, ErrInvalidRequest)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.region, errors.Is(err, ErrOutOfRegion))

			assert.Equal(t, int32(0), graph.callCount.Load())
			assert.Equal(t, int32(0), external.callCount.Load())
		})
	}
}

func TestService_Route_CustomBounds(t *testing.T) {
	graph := &mockGraph{result: &Result{Routes: []Route{graphRoute(1, ModeDriving)}}}
	service := NewService(ServiceConfig{
		Graph:    graph,
		External: &mockExternal{},
		Bounds:   Bounds{MinLat: 48, MaxLat: 49, MinLng: 2, MaxLng: 3},
	})

	_, err := service.Route(context.Background(), DirectRequest{Points: []Point{paris, {Lat: 48.9, Lng: 2.4}}, Mode: ModeDriving})
	require.NoError(t, err)

	_, err = service.Route(context.Background(), DirectRequest{Points: []Point{douala, yaounde}, Mode: ModeDriving})
	assert.ErrorIs(t, err, ErrOutOfRegion)
}

func TestService_Route_PassesRequestToGraph(t *testing.T) {
	graph := &mockGraph{result: &Result{Routes: []Route{graphRoute(1, ModeWalking)}}}
	service := NewService(ServiceConfig{Graph: graph, External: &mockExternal{}})

	_, err := service.Route(context.Background(), DirectRequest{
		Points:     []Point{douala, yaounde},
		Mode:       ModeWalking,
		StartLabel: "Akwa",
		EndLabel:   "Mvan",
	})
	require.NoError(t, err)

	assert.Equal(t, GraphRequest{Start: douala, End: yaounde, Mode: ModeWalking, StartLabel: "Akwa", EndLabel: "Mvan"}, graph.lastReq)
}

func TestService_Route_UnavailableCacheStillRoutes(t *testing.T) {
	graph := &mockGraph{result: &Result{Routes: []Route{graphRoute(3, ModeDriving)}}}
	c := cache.New(context.Background(), cache.Config{})
	require.False(t, c.Available())

	service := NewService(ServiceConfig{Graph: graph, External: &mockExternal{}, Cache: c})

	for i := 0; i < 2; i++ {
		res, err := service.Route(context.Background(), DirectRequest{Points: []Point{douala, yaounde}, Mode: ModeDriving})
		require.NoError(t, err)
		assert.Len(t, res.Routes, 1)
	}
	assert.Equal(t, int32(2), graph.callCount.Load())
}

func TestService_Route_CoalescesConcurrentMisses(t *testing.T) {
	graph := &mockGraph{
		result: &Result{Routes: []Route{graphRoute(5, ModeDriving)}},
		delay:  50 * time.Millisecond,
	}
	service := NewService(ServiceConfig{Graph: graph, External: &mockExternal{}, CoalesceMisses: true})

	var wg sync.WaitGroup
	labels := []string{"A", "B", "C", "D", "E"}
	results := make([]*Result, len(labels))
	for i, label := range labels {
		wg.Add(1)
		go func(i int, label string) {
			defer wg.Done()
			res, err := service.Route(context.Background(), DirectRequest{
				Points:     []Point{douala, yaounde},
				Mode:       ModeDriving,
				StartLabel: label,
			})
			assert.NoError(t, err)
			results[i] = res
		}(i, label)
	}
	wg.Wait()

	assert.Less(t, graph.callCount.Load(), int32(len(labels)))
	for i, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, labels[i], res.Routes[0].StartLabel)
	}
}

func TestService_RouteWithDetour(t *testing.T) {
	leg1 := Route{
		Steps:    []RouteStep{{Source: "a"}, {Source: "b"}},
		Distance: 5, Duration: 10,
		Geometry: orb.LineString{douala.Orb(), kribi.Orb()},
	}
	leg2 := Route{
		Steps:    []RouteStep{{Source: "c"}},
		Distance: 7, Duration: 20,
		Geometry: orb.LineString{kribi.Orb(), yaounde.Orb()},
	}
	external := &mockExternal{byStart: map[Point][]Route{douala: {leg1}, kribi: {leg2}}}
	graph := &mockGraph{}
	c, store := newTestCache(t)

	service := NewService(ServiceConfig{Graph: graph, External: external, Cache: c})

	res, err := service.RouteWithDetour(context.Background(), DetourRequest{
		Start: &douala, Detour: &kribi, End: &yaounde,
		Mode:       DetourMoto,
		StartLabel: "Douala", DetourLabel: "Kribi", EndLabel: "Yaounde",
	})
	require.NoError(t, err)
	require.Len(t, res.Routes, 1)

	route := res.Routes[0]
	assert.Equal(t, 12.0, route.Distance)
	assert.Equal(t, 30.0, route.Duration)
	assert.Len(t, route.Steps, 3)
	assert.Equal(t, "Douala", route.StartLabel)
	assert.Equal(t, "Yaounde", route.EndLabel)
	assert.Len(t, route.Geometry, 4)

	assert.Equal(t, int32(0), graph.callCount.Load())
	assert.Equal(t, int32(2), external.callCount.Load())
	for _, req := range external.requests {
		assert.Equal(t, ProfileBike, req.Profile)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	for key := range store.writes {
		assert.NotContains(t, key, "r:", "detours are not cached")
	}
}

func TestService_RouteWithDetour_IncompleteLegs(t *testing.T) {
	leg := []Route{{Distance: 1}}

	tests := []struct {
		name    string
		byStart map[Point][]Route
		want    Leg
	}{
		{"first leg missing", map[Point][]Route{kribi: leg}, LegStartToDetour},
		{"second leg missing", map[Point][]Route{douala: leg}, LegDetourToEnd},
		{"both missing", map[Point][]Route{}, LegStartToDetour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewService(ServiceConfig{External: &mockExternal{byStart: tt.byStart}})

			_, err := service.RouteWithDetour(context.Background(), DetourRequest{
				Start: &douala, Detour: &kribi, End: &yaounde, Mode: DetourTaxi,
			})
			require.ErrorIs(t, err, ErrIncompleteLeg)

			var legErr *IncompleteLegError
			require.True(t, errors.As(err, &legErr))
			assert.Equal(t, tt.want, legErr.Leg)
		})
	}
}

func TestService_RouteWithDetour_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  DetourRequest
	}{
		{"missing detour", DetourRequest{Start: &douala, End: &yaounde, Mode: DetourBus}},
		{"direct mode", DetourRequest{Start: &douala, Detour: &kribi, End: &yaounde, Mode: "driving"}},
		{"detour outside region", DetourRequest{Start: &douala, Detour: &paris, End: &yaounde, Mode: DetourTaxi}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			external := &mockExternal{}
			service := NewService(ServiceConfig{External: external})

			_, err := service.RouteWithDetour(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Equal(t, int32(0), external.callCount.Load())
		})
	}
}

type recordedCall struct {
	provider  string
	operation string
	failed    bool
}

type recordingMetrics struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (m *recordingMetrics) RecordRequest(provider, operation string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, recordedCall{provider, operation, err != nil})
}

func TestService_Route_RecordsMetrics(t *testing.T) {
	metrics := &recordingMetrics{}
	service := NewService(ServiceConfig{
		Graph:    &mockGraph{err: ErrNoNodeFound},
		External: &mockExternal{routes: []Route{externalRoute(1, 1)}},
		Metrics:  metrics,
	})

	_, err := service.Route(context.Background(), DirectRequest{Points: []Point{douala, yaounde}, Mode: ModeDriving})
	require.NoError(t, err)

	assert.Equal(t, []recordedCall{
		{"graph", "find_route", true},
		{"external", "route", false},
	}, metrics.calls)
}
