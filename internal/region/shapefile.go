package region

import (
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FromShapefile loads a region from the polygon records of a shapefile. All
// polygon records are merged into one multipolygon; non-polygon records are
// skipped with a debug log.
func FromShapefile(path string) (*Region, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "region: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	var mp orb.MultiPolygon
	n := 0
	for reader.Next() {
		n++
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			zap.L().Debug("region: skipping non-polygon shapefile record", zap.Int("record", n))
			continue
		}
		mp = append(mp, polygonParts(poly)...)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "region: read shapefile %s", path)
	}
	if len(mp) == 0 {
		return nil, eris.Errorf("region: no polygon records in %s", path)
	}
	return &Region{geom: mp}, nil
}

// polygonParts splits a shapefile polygon into one orb.Polygon per part.
// Shapefile ring orientation (holes vs shells) is not resolved here; each
// part becomes its own single-ring polygon, which is sufficient for
// containment tests on simple study areas.
func polygonParts(p *shp.Polygon) []orb.Polygon {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var polys []orb.Polygon
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		ring := make(orb.Ring, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, orb.Point{p.Points[j].X, p.Points[j].Y})
		}
		if len(ring) < 4 {
			continue
		}
		polys = append(polys, orb.Polygon{ring})
	}
	return polys
}
