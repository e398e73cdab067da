package osrm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kmerroute/kmerroute/internal/provider/resilience"
	"github.com/kmerroute/kmerroute/internal/routing"
)

var (
	douala  = routing.Point{Lat: 4.0511, Lng: 9.7679}
	akwa    = routing.Point{Lat: 4.0423, Lng: 9.7811}
	yaounde = routing.Point{Lat: 3.8480, Lng: 11.5021}
	paris   = routing.Point{Lat: 48.8566, Lng: 2.3522}
)

func newTestClient(serverURL string) *Client {
	return NewClient(ClientConfig{
		BaseURL: serverURL,
		Timeout: 2 * time.Second,
		Logger:  zerolog.Nop(),
	})
}

func TestClient_FindRoutes_Success(t *testing.T) {
	respBody, err := os.ReadFile("testdata/route_response.json")
	if err != nil {
		t.Fatalf("failed to load test fixture: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		expectedPath := "/route/v1/car/9.767900,4.051100;9.781100,4.042300"
		if r.URL.Path != expectedPath {
			t.Errorf("expected path %s, got %s", expectedPath, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("steps") != "true" || q.Get("geometries") != "geojson" || q.Get("alternatives") != "3" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(respBody)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	routes := client.FindRoutes(context.Background(), routing.ExternalRequest{
		Points:     []routing.Point{douala, akwa},
		Profile:    routing.ProfileCar,
		StartLabel: "Akwa",
		EndLabel:   "Bonanjo",
	})

	if len(routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(routes))
	}

	route := routes[0]
	if route.Distance != 5200.5 || route.Duration != 610.2 {
		t.Errorf("unexpected totals: %v / %v", route.Distance, route.Duration)
	}
	if route.StartLabel != "Akwa" || route.EndLabel != "Bonanjo" {
		t.Errorf("unexpected labels: %q -> %q", route.StartLabel, route.EndLabel)
	}
	// The Paris coordinate is outside the region and must be dropped.
	if len(route.Geometry) != 3 {
		t.Errorf("expected 3 geometry points, got %d", len(route.Geometry))
	}
	for _, p := range route.Geometry {
		if !routing.DefaultBounds.ContainsOrb(p) {
			t.Errorf("geometry point %v outside region", p)
		}
	}

	if len(route.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(route.Steps))
	}
	if route.Steps[0].Source != "Head east on Boulevard de la Liberté" {
		t.Errorf("expected instruction label, got %q", route.Steps[0].Source)
	}
	if route.Steps[1].Source != "turn left onto Rue Joss" {
		t.Errorf("expected synthesized label, got %q", route.Steps[1].Source)
	}
	if route.Steps[1].Distance != 4000.5 || route.Steps[1].Duration != 460.2 {
		t.Errorf("unexpected step totals: %v / %v", route.Steps[1].Distance, route.Steps[1].Duration)
	}

	// A route without steps gets a single synthetic start-to-end step.
	alt := routes[1]
	if len(alt.Steps) != 1 {
		t.Fatalf("expected 1 fallback step, got %d", len(alt.Steps))
	}
	if alt.Steps[0].Source != "start" || alt.Steps[0].Target != "end" {
		t.Errorf("unexpected fallback labels: %q -> %q", alt.Steps[0].Source, alt.Steps[0].Target)
	}
	if alt.Steps[0].Distance != 6100 || alt.Steps[0].Duration != 700 {
		t.Errorf("unexpected fallback totals: %v / %v", alt.Steps[0].Distance, alt.Steps[0].Duration)
	}
}

func TestClient_FindRoutes_NoFallbackStepWithoutTotals(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"code":"Ok","routes":[{"geometry":{"coordinates":[[9.7679,4.0511],[9.7811,4.0423]]},"legs":[]}]}`))
	}))
	defer server.Close()

	routes := newTestClient(server.URL).FindRoutes(context.Background(), routing.ExternalRequest{
		Points:  []routing.Point{douala, akwa},
		Profile: routing.ProfileFoot,
	})

	if len(routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(routes))
	}
	if len(routes[0].Steps) != 0 {
		t.Errorf("expected no steps, got %d", len(routes[0].Steps))
	}
}

func TestClient_FindRoutes_ProfileInPath(t *testing.T) {
	var path atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		w.Write([]byte(`{"code":"Ok","routes":[]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	for _, profile := range []routing.Profile{routing.ProfileFoot, routing.ProfileBike, routing.ProfileCar} {
		routes := client.FindRoutes(context.Background(), routing.ExternalRequest{
			Points:  []routing.Point{douala, yaounde},
			Profile: profile,
		})
		if len(routes) != 0 {
			t.Errorf("expected no routes, got %d", len(routes))
		}
		got, _ := path.Load().(string)
		if !strings.HasPrefix(got, "/route/v1/"+string(profile)+"/") {
			t.Errorf("expected %s profile in path, got %s", profile, got)
		}
	}
}

func TestClient_FindRoutes_MultipleWaypoints(t *testing.T) {
	var path atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		w.Write([]byte(`{"code":"Ok","routes":[]}`))
	}))
	defer server.Close()

	newTestClient(server.URL).FindRoutes(context.Background(), routing.ExternalRequest{
		Points:  []routing.Point{douala, akwa, yaounde},
		Profile: routing.ProfileCar,
	})

	got, _ := path.Load().(string)
	if strings.Count(got, ";") != 2 {
		t.Errorf("expected three waypoints in %s", got)
	}
}

func TestClient_FindRoutes_FailuresYieldEmpty(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		timeout bool
	}{
		{name: "non-ok code", status: http.StatusOK, body: `{"code":"NoRoute","message":"Impossible route between points"}`},
		{name: "bad request", status: http.StatusBadRequest, body: `{"code":"InvalidQuery"}`},
		{name: "server error", status: http.StatusServiceUnavailable, body: `upstream down`},
		{name: "malformed body", status: http.StatusOK, body: `{"code":`},
		{name: "timeout", status: http.StatusOK, body: `{"code":"Ok","routes":[]}`, timeout: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.timeout {
					select {
					case <-r.Context().Done():
					case <-time.After(2 * time.Second):
					}
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(ClientConfig{
				BaseURL: server.URL,
				Timeout: 100 * time.Millisecond,
				Logger:  zerolog.Nop(),
			})

			routes := client.FindRoutes(context.Background(), routing.ExternalRequest{
				Points:  []routing.Point{douala, akwa},
				Profile: routing.ProfileCar,
			})
			if len(routes) != 0 {
				t.Errorf("expected empty result, got %d routes", len(routes))
			}
		})
	}
}

func TestClient_FindRoutes_OutOfRegionSkipsCall(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"code":"Ok","routes":[]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	if routes := client.FindRoutes(context.Background(), routing.ExternalRequest{
		Points:  []routing.Point{douala, paris},
		Profile: routing.ProfileCar,
	}); len(routes) != 0 {
		t.Errorf("expected empty result, got %d routes", len(routes))
	}
	if routes := client.FindRoutes(context.Background(), routing.ExternalRequest{
		Points:  []routing.Point{douala},
		Profile: routing.ProfileCar,
	}); len(routes) != 0 {
		t.Errorf("expected empty result, got %d routes", len(routes))
	}
	if calls.Load() != 0 {
		t.Errorf("expected no upstream calls, got %d", calls.Load())
	}
}

func TestClient_FindRoutes_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"code":"Ok","routes":[]}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	routes := newTestClient(server.URL).FindRoutes(ctx, routing.ExternalRequest{
		Points:  []routing.Point{douala, akwa},
		Profile: routing.ProfileCar,
	})
	if len(routes) != 0 {
		t.Errorf("expected empty result, got %d routes", len(routes))
	}
}

func TestClient_RegistersWithRegistry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"code":"Ok","routes":[]}`))
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	client := NewClient(ClientConfig{
		BaseURL:  server.URL,
		Registry: registry,
		Logger:   zerolog.Nop(),
	})

	client.FindRoutes(context.Background(), routing.ExternalRequest{
		Points:  []routing.Point{douala, akwa},
		Profile: routing.ProfileCar,
	})

	health, ok := registry.Health(ProviderName)
	if !ok {
		t.Fatal("expected osrm to be registered")
	}
	if health.LastSuccessAt == nil {
		t.Error("expected a recorded success")
	}
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(ClientConfig{})

	if client.baseURL != DefaultBaseURL {
		t.Errorf("expected base URL %s, got %s", DefaultBaseURL, client.baseURL)
	}
	if client.bounds != routing.DefaultBounds {
		t.Errorf("expected default bounds, got %+v", client.bounds)
	}
	if client.alternatives != 3 {
		t.Errorf("expected 3 alternatives, got %d", client.alternatives)
	}
	if client.Name() != "osrm" {
		t.Errorf("expected name osrm, got %s", client.Name())
	}

	trimmed := NewClient(ClientConfig{BaseURL: "http://osrm.local/"})
	if trimmed.baseURL != "http://osrm.local" {
		t.Errorf("expected trailing slash trimmed, got %s", trimmed.baseURL)
	}
}

func TestStepLabel(t *testing.T) {
	tests := []struct {
		step step
		want string
	}{
		{step{Maneuver: maneuver{Instruction: "Turn right"}}, "Turn right"},
		{step{Name: "Rue Joss", Maneuver: maneuver{Type: "turn", Modifier: "right"}}, "turn right onto Rue Joss"},
		{step{Maneuver: maneuver{Type: "arrive"}}, "arrive"},
		{step{Name: "Avenue Kennedy"}, "continue onto Avenue Kennedy"},
		{step{}, "step"},
	}

	for _, tt := range tests {
		if got := stepLabel(&tt.step); got != tt.want {
			t.Errorf("stepLabel() = %q, want %q", got, tt.want)
		}
	}
}
