// Package pgrouting resolves routes over a PostGIS road graph with pgRouting's k-shortest-paths.
package pgrouting

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kmerroute/kmerroute/internal/routing"
)

// ProviderName identifies this routing provider.
const ProviderName = "pgrouting"

// Querier runs read-only queries. Satisfied by *pgxpool.Pool.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Config holds configuration for the graph provider.
type Config struct {
	// DB runs the graph queries (required).
	DB Querier

	// Bounds restricts node lookup and edges to the serviced region (default: routing.DefaultBounds).
	Bounds routing.Bounds

	// NodeTable holds the named graph vertices with a point geom column (default: "lieux").
	NodeTable string

	// NodeNameColumn is the vertex label column (default: "nom").
	NodeNameColumn string

	// EdgeTable holds the edges with source, target, cost, reverse_cost and geom (default: "routes").
	EdgeTable string

	// Alternatives is the number of shortest paths requested (default: 3).
	Alternatives int

	// Logger for provider operations.
	Logger zerolog.Logger
}

// Provider is a routing.GraphProvider backed by pgRouting.
type Provider struct {
	db           Querier
	bounds       routing.Bounds
	alternatives int
	logger       zerolog.Logger

	nearestSQL string
	pathsSQL   string
	edgesSQL   string
}

// New creates a new graph provider.
func New(cfg Config) (*Provider, error) {
	if cfg.DB == nil {
		return nil, errors.New("pgrouting: database is required")
	}

	bounds := cfg.Bounds
	if bounds == (routing.Bounds{}) {
		bounds = routing.DefaultBounds
	}
	if err := bounds.Validate(); err != nil {
		return nil, fmt.Errorf("pgrouting: %w", err)
	}

	nodeTable := orDefault(cfg.NodeTable, "lieux")
	nameColumn := orDefault(cfg.NodeNameColumn, "nom")
	edgeTable := orDefault(cfg.EdgeTable, "routes")

	alternatives := cfg.Alternatives
	if alternatives <= 0 {
		alternatives = 3
	}

	nodes := pgx.Identifier{nodeTable}.Sanitize()
	name := pgx.Identifier{nameColumn}.Sanitize()
	edges := pgx.Identifier{edgeTable}.Sanitize()

	return &Provider{
		db:           cfg.DB,
		bounds:       bounds,
		alternatives: alternatives,
		logger:       cfg.Logger,
		nearestSQL:   fmt.Sprintf(nearestNodeSQL, nodes),
		pathsSQL:     fmt.Sprintf(kspSQL, edges, nodes, name, nodes, name),
		edgesSQL:     fmt.Sprintf(edgeSubquerySQL, edges, envelopeLiteral(bounds)),
	}, nil
}

// Name implements routing.GraphProvider.
func (p *Provider) Name() string {
	return ProviderName
}

// FindRoute implements routing.GraphProvider.
func (p *Provider) FindRoute(ctx context.Context, req routing.GraphRequest) (*routing.Result, error) {
	if !p.bounds.Contains(req.Start) || !p.bounds.Contains(req.End) {
		return nil, routing.ErrOutOfRegion
	}

	source, target, err := p.resolveNodes(ctx, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	if source == target {
		return nil, routing.ErrDegenerateRoute
	}

	edges, err := p.shortestPaths(ctx, source, target)
	if err != nil {
		return nil, err
	}

	routes, err := p.buildRoutes(edges, req)
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return nil, routing.ErrNoRouteFound
	}

	if len(routes) < p.alternatives {
		p.logger.Debug().
			Int64("source_node", source).
			Int64("target_node", target).
			Int("route_count", len(routes)).
			Int("requested", p.alternatives).
			Msg("fewer alternatives than requested")
	}

	return &routing.Result{Routes: routes}, nil
}

// resolveNodes looks up the nearest vertex for both points concurrently.
func (p *Provider) resolveNodes(ctx context.Context, start, end routing.Point) (int64, int64, error) {
	var source, target int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		id, err := p.nearestNode(gctx, start)
		source = id
		return err
	})
	g.Go(func() error {
		id, err := p.nearestNode(gctx, end)
		target = id
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}
	return source, target, nil
}

func (p *Provider) nearestNode(ctx context.Context, pt routing.Point) (int64, error) {
	var id int64
	err := p.db.QueryRow(ctx, p.nearestSQL,
		p.bounds.MinLng, p.bounds.MinLat, p.bounds.MaxLng, p.bounds.MaxLat,
		pt.Lng, pt.Lat,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w near %.5f,%.5f", routing.ErrNoNodeFound, pt.Lat, pt.Lng)
	}
	if err != nil {
		return 0, fmt.Errorf("nearest node query: %w", err)
	}
	return id, nil
}

// edgeRow is one traversed edge of one k-shortest-paths alternative.
type edgeRow struct {
	pathID   int64
	pathSeq  int64
	geometry string
	source   string
	target   string
	cost     float64
}

func (p *Provider) shortestPaths(ctx context.Context, source, target int64) ([]edgeRow, error) {
	rows, err := p.db.Query(ctx, p.pathsSQL,
		p.edgesSQL, source, target, p.alternatives,
		p.bounds.MinLng, p.bounds.MinLat, p.bounds.MaxLng, p.bounds.MaxLat,
	)
	if err != nil {
		return nil, fmt.Errorf("k shortest paths query: %w", err)
	}
	defer rows.Close()

	var edges []edgeRow
	for rows.Next() {
		var e edgeRow
		if err := rows.Scan(&e.pathID, &e.pathSeq, &e.geometry, &e.source, &e.target, &e.cost); err != nil {
			return nil, fmt.Errorf("scan path edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate path edges: %w", err)
	}
	return edges, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// envelopeLiteral renders the region as an SQL envelope for the edge subquery,
// which pgr_ksp receives as text and cannot take bind parameters.
func envelopeLiteral(b routing.Bounds) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return fmt.Sprintf("ST_MakeEnvelope(%s, %s, %s, %s, 4326)", f(b.MinLng), f(b.MinLat), f(b.MaxLng), f(b.MaxLat))
}
