// Package osrm provides a client for the OSRM route service.
package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/kmerroute/kmerroute/internal/provider/resilience"
	"github.com/kmerroute/kmerroute/internal/routing"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "osrm"

	// DefaultBaseURL is the public OSRM demo server.
	DefaultBaseURL = "https://router.project-osrm.org"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 16 << 20
)

var errOutOfRegion = errors.New("waypoint outside the serviced region")

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OSRM client.
type ClientConfig struct {
	// BaseURL is the OSRM server base URL (optional, defaults to the public server).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with a circuit breaker and no retries.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Bounds filters waypoints and returned geometry (default: routing.DefaultBounds).
	Bounds routing.Bounds

	// Alternatives is the number of alternatives requested (default: 3).
	Alternatives int

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OSRM route service client implementing routing.ExternalProvider.
type Client struct {
	baseURL      string
	httpClient   HTTPDoer
	bounds       routing.Bounds
	alternatives int
	logger       zerolog.Logger
}

// NewClient creates a new OSRM client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		settings := resilience.DefaultBreakerSettings()
		settings.OnStateChange = resilience.LogStateChanges(cfg.Logger)
		// No retries: the graph result is always there to fall back on.
		httpClient = resilience.NewHTTPClient(ProviderName, timeout,
			resilience.WithBreaker(settings),
			resilience.WithRegistry(cfg.Registry),
		)
	}

	bounds := cfg.Bounds
	if bounds == (routing.Bounds{}) {
		bounds = routing.DefaultBounds
	}

	alternatives := cfg.Alternatives
	if alternatives <= 0 {
		alternatives = 3
	}

	return &Client{
		baseURL:      baseURL,
		httpClient:   httpClient,
		bounds:       bounds,
		alternatives: alternatives,
		logger:       cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// FindRoutes implements routing.ExternalProvider. Every failure yields an empty result.
func (c *Client) FindRoutes(ctx context.Context, req routing.ExternalRequest) []routing.Route {
	routes, err := c.fetch(ctx, req)
	if err != nil {
		c.logger.Warn().Err(err).
			Str("provider", ProviderName).
			Str("profile", string(req.Profile)).
			Int("waypoints", len(req.Points)).
			Msg("external routing failed")
		return nil
	}
	return routes
}

func (c *Client) fetch(ctx context.Context, req routing.ExternalRequest) ([]routing.Route, error) {
	if len(req.Points) < 2 {
		return nil, fmt.Errorf("need at least two waypoints, got %d", len(req.Points))
	}
	for _, p := range req.Points {
		if !c.bounds.Contains(p) {
			return nil, errOutOfRegion
		}
	}

	reqURL := c.routeURL(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("profile", string(req.Profile)).
		Int("waypoints", len(req.Points)).
		Msg("requesting routes from OSRM")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var osrmResp routeResponse
	if err := json.Unmarshal(body, &osrmResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || osrmResp.Code != codeOK {
		return nil, fmt.Errorf("status %d code %q: %s", resp.StatusCode, osrmResp.Code, osrmResp.Message)
	}

	routes := c.toRoutes(&osrmResp, req)

	c.logger.Debug().
		Int("route_count", len(routes)).
		Msg("received routes from OSRM")

	return routes, nil
}

// routeURL builds {base}/route/v1/{profile}/{lng,lat;lng,lat}?...
func (c *Client) routeURL(req routing.ExternalRequest) string {
	coords := make([]string, len(req.Points))
	for i, p := range req.Points {
		coords[i] = formatCoord(p.Lng) + "," + formatCoord(p.Lat)
	}

	query := url.Values{}
	query.Set("steps", "true")
	query.Set("geometries", "geojson")
	query.Set("overview", "full")
	query.Set("alternatives", strconv.Itoa(c.alternatives))

	return fmt.Sprintf("%s/route/v1/%s/%s?%s", c.baseURL, req.Profile, strings.Join(coords, ";"), query.Encode())
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// toRoutes converts the response to domain routes, dropping coordinates outside the region.
func (c *Client) toRoutes(resp *routeResponse, req routing.ExternalRequest) []routing.Route {
	routes := make([]routing.Route, 0, len(resp.Routes))

	for i := range resp.Routes {
		r := &resp.Routes[i]
		out := routing.Route{
			StartLabel: req.StartLabel,
			EndLabel:   req.EndLabel,
			Geometry:   c.line(r.Geometry),
		}
		if r.Distance != nil {
			out.Distance = *r.Distance
		}
		if r.Duration != nil {
			out.Duration = *r.Duration
		}

		for j := range r.Legs {
			for k := range r.Legs[j].Steps {
				s := &r.Legs[j].Steps[k]
				label := stepLabel(s)
				out.Steps = append(out.Steps, routing.RouteStep{
					Geometry: c.line(s.Geometry),
					Source:   label,
					Target:   label,
					Distance: s.Distance,
					Duration: s.Duration,
				})
			}
		}

		if len(out.Steps) == 0 && (r.Distance != nil || r.Duration != nil) {
			out.Steps = []routing.RouteStep{{
				Geometry: out.Geometry,
				Source:   "start",
				Target:   "end",
				Distance: out.Distance,
				Duration: out.Duration,
			}}
		}

		routes = append(routes, out)
	}

	return routes
}

// line converts GeoJSON coordinates to a line inside the region.
func (c *Client) line(g geometry) orb.LineString {
	line := make(orb.LineString, 0, len(g.Coordinates))
	for _, coord := range g.Coordinates {
		if len(coord) < 2 {
			continue
		}
		line = append(line, orb.Point{coord[0], coord[1]})
	}
	return c.bounds.Filter(line)
}

// stepLabel returns the maneuver instruction, or one built from the maneuver and road name.
func stepLabel(s *step) string {
	if s.Maneuver.Instruction != "" {
		return s.Maneuver.Instruction
	}

	var parts []string
	if s.Maneuver.Type != "" {
		parts = append(parts, s.Maneuver.Type)
	}
	if s.Maneuver.Modifier != "" {
		parts = append(parts, s.Maneuver.Modifier)
	}
	if s.Name != "" {
		if len(parts) == 0 {
			parts = append(parts, "continue")
		}
		parts = append(parts, "onto", s.Name)
	}
	if len(parts) == 0 {
		return "step"
	}
	return strings.Join(parts, " ")
}
