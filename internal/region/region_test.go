package region

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const squareWKT = "POLYGON((0 0, 10 0, 10 10, 0 10, 0 0))"

const squareGeoJSON = `{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]}`

const featureCollectionGeoJSON = `{
	"type": "FeatureCollection",
	"features": [
		{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[5,0],[5,5],[0,5],[0,0]]]}},
		{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[99,99]}},
		{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[20,20],[25,20],[25,25],[20,25],[20,20]]]}}
	]
}`

func TestFromWKT(t *testing.T) {
	r, err := FromWKT(squareWKT)
	require.NoError(t, err)

	assert.True(t, r.Contains(5, 5))
	assert.False(t, r.Contains(15, 5))
	assert.False(t, r.Contains(-1, -1))
}

func TestFromWKT_Invalid(t *testing.T) {
	_, err := FromWKT("POLYGON((")
	assert.Error(t, err)

	_, err = FromWKT("POINT(1 2)")
	assert.Error(t, err)
}

func TestFromGeoJSON_Geometry(t *testing.T) {
	r, err := FromGeoJSON([]byte(squareGeoJSON))
	require.NoError(t, err)
	assert.True(t, r.Contains(1, 1))
	assert.False(t, r.Contains(11, 11))
}

func TestFromGeoJSON_FeatureCollection(t *testing.T) {
	r, err := FromGeoJSON([]byte(featureCollectionGeoJSON))
	require.NoError(t, err)

	// Both polygonal features contribute; the point feature is ignored.
	assert.True(t, r.Contains(2, 2))
	assert.True(t, r.Contains(22, 22))
	assert.False(t, r.Contains(10, 10))
}

func TestFromGeoJSON_Invalid(t *testing.T) {
	_, err := FromGeoJSON([]byte(`{"type":"FeatureCollection","features":[]}`))
	assert.Error(t, err)

	_, err = FromGeoJSON([]byte(`not json`))
	assert.Error(t, err)
}

func TestFromFile_WKT(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roi.wkt")
	require.NoError(t, os.WriteFile(path, []byte(squareWKT), 0o644))

	r, err := FromFile(path)
	require.NoError(t, err)
	assert.True(t, r.Contains(5, 5))
}

func TestFromFile_GeoJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roi.geojson")
	require.NoError(t, os.WriteFile(path, []byte(squareGeoJSON), 0o644))

	r, err := FromFile(path)
	require.NoError(t, err)
	assert.True(t, r.Contains(5, 5))
}

func TestFromFile_UnsupportedExtension(t *testing.T) {
	_, err := FromFile("roi.gpkg")
	assert.Error(t, err)
}

func TestBound(t *testing.T) {
	r, err := FromWKT(squareWKT)
	require.NoError(t, err)

	b := r.Bound()
	assert.Equal(t, 0.0, b.Min[0])
	assert.Equal(t, 10.0, b.Max[0])
}
