package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/rs/zerolog"

	"github.com/kmerroute/kmerroute/internal/api/middleware"
	"github.com/kmerroute/kmerroute/internal/api/models"
	"github.com/kmerroute/kmerroute/internal/api/response"
	"github.com/kmerroute/kmerroute/internal/routing"
	"github.com/kmerroute/kmerroute/pkg/polyline"
)

// Default place labels for requests that omit them.
const (
	DefaultStartName  = "Unknown Start"
	DefaultDetourName = "Unknown Detour"
	DefaultEndName    = "Unknown Destination"
)

// maxBodyBytes caps route request bodies.
const maxBodyBytes = 64 << 10

// RouteService computes direct and detour routes. Satisfied by *routing.Service.
type RouteService interface {
	Route(ctx context.Context, req routing.DirectRequest) (*routing.Result, error)
	RouteWithDetour(ctx context.Context, req routing.DetourRequest) (*routing.Result, error)
}

// EventPublisher announces computed routes. Satisfied by *events.Publisher.
type EventPublisher interface {
	RouteCalculated(ctx context.Context, startPlace, endPlace string, distance, duration float64, mode string)
}

// RouteHandler handles routing endpoints.
type RouteHandler struct {
	service   RouteService
	publisher EventPublisher
	logger    zerolog.Logger
}

// NewRouteHandler creates a new RouteHandler. publisher may be nil.
func NewRouteHandler(service RouteService, publisher EventPublisher, logger zerolog.Logger) *RouteHandler {
	return &RouteHandler{
		service:   service,
		publisher: publisher,
		logger:    logger,
	}
}

// ComputeRoute handles POST /v1/routes - route between two points.
func (h *RouteHandler) ComputeRoute(w http.ResponseWriter, r *http.Request) {
	var input models.RouteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	req := routing.DirectRequest{
		Points:     make([]routing.Point, len(input.Points)),
		Mode:       routing.Mode(orDefault(input.Mode, string(routing.ModeDriving))),
		StartLabel: orDefault(input.StartPlaceName, DefaultStartName),
		EndLabel:   orDefault(input.EndPlaceName, DefaultEndName),
	}
	for i, p := range input.Points {
		req.Points[i] = routing.Point{Lat: p.Lat, Lng: p.Lng}
	}

	res, err := h.service.Route(r.Context(), req)
	if err != nil {
		h.writeRouteError(w, r, err)
		return
	}

	h.publish(r.Context(), req.StartLabel, req.EndLabel, string(req.Mode), res)
	response.JSON(w, r, http.StatusOK, toRouteResponse(res))
}

// ComputeRouteWithDetour handles POST /v1/routes/with-detour - route through an intermediate point.
func (h *RouteHandler) ComputeRouteWithDetour(w http.ResponseWriter, r *http.Request) {
	var input models.DetourRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	req := routing.DetourRequest{
		Start:       toPoint(input.Start),
		Detour:      toPoint(input.Detour),
		End:         toPoint(input.End),
		Mode:        routing.DetourMode(orDefault(input.TransportMode, string(routing.DetourTaxi))),
		StartLabel:  orDefault(input.StartPlaceName, DefaultStartName),
		DetourLabel: orDefault(input.DetourPlaceName, DefaultDetourName),
		EndLabel:    orDefault(input.EndPlaceName, DefaultEndName),
	}

	res, err := h.service.RouteWithDetour(r.Context(), req)
	if err != nil {
		h.writeRouteError(w, r, err)
		return
	}

	h.publish(r.Context(), req.StartLabel, req.EndLabel, string(req.Mode), res)
	response.JSON(w, r, http.StatusOK, toRouteResponse(res))
}

func (h *RouteHandler) writeRouteError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *routing.ValidationError
	switch {
	case errors.As(err, &validation):
		response.JSON(w, r, http.StatusBadRequest, models.RouteResponse{Error: validation.Message})
	case errors.Is(err, routing.ErrNoRouteFound), errors.Is(err, routing.ErrIncompleteLeg):
		response.JSON(w, r, http.StatusUnprocessableEntity, models.RouteResponse{Error: err.Error()})
	default:
		h.logger.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("route computation failed")
		response.JSON(w, r, http.StatusInternalServerError, models.RouteResponse{Error: "route computation failed"})
	}
}

func (h *RouteHandler) publish(ctx context.Context, startLabel, endLabel, mode string, res *routing.Result) {
	if h.publisher == nil || res.Empty() {
		return
	}
	primary := res.Routes[0]
	h.publisher.RouteCalculated(ctx, startLabel, endLabel, primary.Distance, primary.Duration, mode)
}

func toPoint(p *models.Point) *routing.Point {
	if p == nil {
		return nil
	}
	return &routing.Point{Lat: p.Lat, Lng: p.Lng}
}

func toRouteResponse(res *routing.Result) models.RouteResponse {
	routes := make([]models.Route, len(res.Routes))
	for i, route := range res.Routes {
		steps := make([]models.RouteStep, len(route.Steps))
		for j, step := range route.Steps {
			steps[j] = models.RouteStep{
				Source:   step.Source,
				Target:   step.Target,
				Distance: step.Distance,
				Duration: step.Duration,
				Geometry: toWKT(step.Geometry),
			}
		}
		routes[i] = models.Route{
			StartPlaceName: route.StartLabel,
			EndPlaceName:   route.EndLabel,
			Distance:       route.Distance,
			Duration:       route.Duration,
			Geometry:       toWKT(route.Geometry),
			Polyline:       polyline.Encode(route.Geometry),
			Steps:          steps,
		}
	}
	return models.RouteResponse{Routes: routes}
}

func toWKT(line orb.LineString) string {
	if len(line) == 0 {
		return ""
	}
	return wkt.MarshalString(line)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
