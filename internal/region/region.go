// Package region loads and queries the region of interest. A region is a
// polygon (or multipolygon) in geographic coordinates and is immutable once
// loaded.
package region

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
)

// Region is a study-area polygon. All geometries are normalized to a
// multipolygon internally.
type Region struct {
	geom orb.MultiPolygon
}

// FromWKT parses a POLYGON or MULTIPOLYGON WKT string.
func FromWKT(s string) (*Region, error) {
	g, err := wkt.Unmarshal(strings.TrimSpace(s))
	if err != nil {
		return nil, eris.Wrap(err, "region: parse WKT")
	}
	return fromGeometry(g)
}

// FromGeoJSON parses a GeoJSON geometry, feature, or feature collection. For
// a feature collection the union of all polygonal features is used.
func FromGeoJSON(data []byte) (*Region, error) {
	if g, err := geojson.UnmarshalGeometry(data); err == nil {
		return fromGeometry(g.Geometry())
	}
	if f, err := geojson.UnmarshalFeature(data); err == nil {
		return fromGeometry(f.Geometry)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, eris.Wrap(err, "region: parse GeoJSON")
	}
	var mp orb.MultiPolygon
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = append(mp, g)
		case orb.MultiPolygon:
			mp = append(mp, g...)
		}
	}
	if len(mp) == 0 {
		return nil, eris.New("region: feature collection has no polygonal features")
	}
	return &Region{geom: mp}, nil
}

// FromFile loads a region from a file, dispatching on extension: .wkt,
// .json/.geojson, or .shp.
func FromFile(path string) (*Region, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wkt", ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "region: read %s", path)
		}
		return FromWKT(string(data))
	case ".json", ".geojson":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "region: read %s", path)
		}
		return FromGeoJSON(data)
	case ".shp":
		return FromShapefile(path)
	default:
		return nil, eris.Errorf("region: unsupported file extension %q", filepath.Ext(path))
	}
}

func fromGeometry(g orb.Geometry) (*Region, error) {
	switch geom := g.(type) {
	case orb.Polygon:
		if len(geom) == 0 || len(geom[0]) < 4 {
			return nil, eris.New("region: polygon has no valid outer ring")
		}
		return &Region{geom: orb.MultiPolygon{geom}}, nil
	case orb.MultiPolygon:
		if len(geom) == 0 {
			return nil, eris.New("region: empty multipolygon")
		}
		return &Region{geom: geom}, nil
	default:
		return nil, eris.Errorf("region: unsupported geometry type %s", g.GeoJSONType())
	}
}

// Contains reports whether the point (lon, lat) lies inside the region.
func (r *Region) Contains(lon, lat float64) bool {
	return planar.MultiPolygonContains(r.geom, orb.Point{lon, lat})
}

// Bound returns the bounding box of the region.
func (r *Region) Bound() orb.Bound {
	return r.geom.Bound()
}

// Geometry returns the underlying multipolygon.
func (r *Region) Geometry() orb.MultiPolygon {
	return r.geom
}

// Intersects reports whether the given polygon's bound overlaps the region
// bound. It is a cheap footprint pre-filter, not an exact intersection test.
func (r *Region) Intersects(p orb.Polygon) bool {
	return r.geom.Bound().Intersects(p.Bound())
}
