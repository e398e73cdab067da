package pgrouting

// nearestNodeSQL finds the closest vertex inside the region.
// Args: $1..$4 envelope (min lng, min lat, max lng, max lat), $5 lng, $6 lat.
const nearestNodeSQL = `
SELECT id
FROM %s
WHERE ST_Contains(ST_MakeEnvelope($1, $2, $3, $4, 4326), geom)
ORDER BY geom <-> ST_SetSRID(ST_MakePoint($5, $6), 4326)
LIMIT 1`

// edgeSubquerySQL is the edge set handed to pgr_ksp: positive-cost edges inside the region.
const edgeSubquerySQL = `SELECT id, source, target, cost, reverse_cost FROM %s WHERE cost IS NOT NULL AND cost > 0 AND ST_Contains(%s, geom)`

// kspSQL runs k-shortest-paths and joins each traversed edge to its geometry and vertex names.
// Args: $1 edge subquery, $2 source, $3 target, $4 k, $5..$8 envelope.
const kspSQL = `
WITH paths AS (
	SELECT path_id, path_seq, edge, cost
	FROM pgr_ksp($1, $2::bigint, $3::bigint, $4, directed => false)
)
SELECT
	p.path_id::bigint,
	p.path_seq::bigint,
	ST_AsText(e.geom),
	COALESCE(s.%[3]s, 'Node ' || e.source),
	COALESCE(t.%[5]s, 'Node ' || e.target),
	p.cost::float8
FROM paths p
JOIN %[1]s e ON p.edge = e.id
LEFT JOIN %[2]s s ON e.source = s.id
LEFT JOIN %[4]s t ON e.target = t.id
WHERE p.edge > 0
	AND ST_Contains(ST_MakeEnvelope($5, $6, $7, $8, 4326), e.geom)
ORDER BY p.path_id, p.path_seq`
