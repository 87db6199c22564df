package catalog

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/ndvi-cli/internal/raster"
)

// Pool is the subset of pgxpool.Pool used by the Postgres catalog source.
// pgxmock satisfies it in tests.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSource serves scenes from a PostGIS-backed catalog: scene metadata
// with polygon footprints plus band rasters stored per scene/band.
type PostgresSource struct {
	pool Pool
}

// NewPostgres builds a Postgres catalog source over the given pool.
func NewPostgres(pool Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS scenes (
	id          TEXT PRIMARY KEY,
	acquired_at TIMESTAMPTZ NOT NULL,
	cloud_cover DOUBLE PRECISION NOT NULL,
	footprint   geometry(Polygon, 4326) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scenes_acquired_at ON scenes(acquired_at);
CREATE INDEX IF NOT EXISTS idx_scenes_footprint ON scenes USING gist (footprint);

CREATE TABLE IF NOT EXISTS scene_bands (
	scene_id   TEXT NOT NULL REFERENCES scenes(id),
	band       TEXT NOT NULL,
	cols       INTEGER NOT NULL,
	rows       INTEGER NOT NULL,
	origin_x   DOUBLE PRECISION NOT NULL,
	origin_y   DOUBLE PRECISION NOT NULL,
	cell_x     DOUBLE PRECISION NOT NULL,
	cell_y     DOUBLE PRECISION NOT NULL,
	crs        TEXT NOT NULL,
	geographic BOOLEAN NOT NULL DEFAULT FALSE,
	pixels     DOUBLE PRECISION[] NOT NULL,
	PRIMARY KEY (scene_id, band)
);
`

// Migrate creates the catalog tables if they do not exist.
func (p *PostgresSource) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate catalog schema")
	}
	return nil
}

// ListScenes queries scenes whose footprint intersects the query bound,
// acquired in [Start, End), with cloud cover at or below the maximum.
func (p *PostgresSource) ListScenes(ctx context.Context, q Query) ([]Scene, error) {
	sql := `
		SELECT id, acquired_at, cloud_cover, ST_AsEWKB(footprint)
		FROM scenes
		WHERE footprint && ST_MakeEnvelope($1, $2, $3, $4, 4326)
		  AND acquired_at >= $5 AND acquired_at < $6
		  AND cloud_cover <= $7
		ORDER BY acquired_at, id
	`
	rows, err := p.pool.Query(ctx, sql,
		q.Bound.Min[0], q.Bound.Min[1], q.Bound.Max[0], q.Bound.Max[1],
		q.Start, q.End, q.MaxCloudCover,
	)
	if err != nil {
		return nil, eris.Wrapf(ErrDataSource, "postgres: list scenes: %v", err)
	}
	defer rows.Close()

	var scenes []Scene
	for rows.Next() {
		var s Scene
		var footprint []byte
		if err := rows.Scan(&s.ID, &s.AcquiredAt, &s.CloudCover, &footprint); err != nil {
			return nil, eris.Wrapf(ErrDataSource, "postgres: scan scene row: %v", err)
		}
		poly, err := decodeFootprint(footprint)
		if err != nil {
			return nil, eris.Wrapf(ErrDataSource, "postgres: scene %s: %v", s.ID, err)
		}
		s.Footprint = poly
		s.Bands = map[string]string{BandNIR: BandNIR, BandRed: BandRed}
		scenes = append(scenes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(ErrDataSource, "postgres: iterate scene rows: %v", err)
	}
	return scenes, nil
}

// FetchBand loads a stored band raster for the scene.
func (p *PostgresSource) FetchBand(ctx context.Context, scene Scene, band string) (*raster.Raster, error) {
	sql := `
		SELECT cols, rows, origin_x, origin_y, cell_x, cell_y, crs, geographic, pixels
		FROM scene_bands
		WHERE scene_id = $1 AND band = $2
	`
	var g raster.Grid
	var pixels []float64
	err := p.pool.QueryRow(ctx, sql, scene.ID, band).Scan(
		&g.Cols, &g.Rows, &g.OriginX, &g.OriginY, &g.CellX, &g.CellY,
		&g.CRS, &g.Geographic, &pixels,
	)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrDataSource, "postgres: scene %s has no %q band", scene.ID, band)
		}
		return nil, eris.Wrapf(ErrDataSource, "postgres: fetch band %s of %s: %v", band, scene.ID, err)
	}
	if len(pixels) != g.Size() {
		return nil, eris.Wrapf(ErrDataSource,
			"postgres: band %s of %s has %d pixels, grid wants %d", band, scene.ID, len(pixels), g.Size())
	}

	r := raster.New(g)
	copy(r.Values, pixels)
	return r, nil
}

// decodeFootprint parses an EWKB polygon into orb coordinates.
func decodeFootprint(data []byte) (orb.Polygon, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "decode footprint EWKB")
	}
	poly, ok := g.(*geom.Polygon)
	if !ok {
		return nil, eris.Errorf("footprint is %T, want polygon", g)
	}

	out := make(orb.Polygon, 0, poly.NumLinearRings())
	for i := 0; i < poly.NumLinearRings(); i++ {
		coords := poly.LinearRing(i).Coords()
		ring := make(orb.Ring, 0, len(coords))
		for _, c := range coords {
			ring = append(ring, orb.Point{c.X(), c.Y()})
		}
		out = append(out, ring)
	}
	return out, nil
}
