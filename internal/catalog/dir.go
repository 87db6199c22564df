package catalog

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/ndvi-cli/internal/geotiff"
	"github.com/sells-group/ndvi-cli/internal/raster"
)

// sceneIndex is the on-disk format of a scene directory's scenes.yaml.
type sceneIndex struct {
	Scenes []sceneEntry `yaml:"scenes"`
}

type sceneEntry struct {
	ID           string            `yaml:"id"`
	AcquiredAt   time.Time         `yaml:"acquired_at"`
	CloudCover   float64           `yaml:"cloud_cover"`
	FootprintWKT string            `yaml:"footprint_wkt"`
	Bands        map[string]string `yaml:"bands"`
}

// DirSource serves scenes from a local directory containing a scenes.yaml
// index and per-band GeoTIFF files with paths relative to the directory.
type DirSource struct {
	dir    string
	scenes []Scene

	// readBand is swapped in tests to avoid GeoTIFF fixtures.
	readBand func(path string) (*raster.Raster, error)
}

// OpenDir loads the scene index from dir/scenes.yaml.
func OpenDir(dir string) (*DirSource, error) {
	data, err := os.ReadFile(filepath.Join(dir, "scenes.yaml"))
	if err != nil {
		return nil, eris.Wrapf(ErrDataSource, "dir: read scenes.yaml: %v", err)
	}

	var idx sceneIndex
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, eris.Wrapf(ErrDataSource, "dir: parse scenes.yaml: %v", err)
	}

	scenes := make([]Scene, 0, len(idx.Scenes))
	for _, e := range idx.Scenes {
		if e.ID == "" {
			return nil, eris.Wrap(ErrDataSource, "dir: scene entry missing id")
		}
		s := Scene{
			ID:         e.ID,
			AcquiredAt: e.AcquiredAt,
			CloudCover: e.CloudCover,
			Bands:      e.Bands,
		}
		if e.FootprintWKT != "" {
			g, err := wkt.Unmarshal(e.FootprintWKT)
			if err != nil {
				return nil, eris.Wrapf(ErrDataSource, "dir: scene %s footprint: %v", e.ID, err)
			}
			poly, ok := g.(orb.Polygon)
			if !ok {
				return nil, eris.Wrapf(ErrDataSource, "dir: scene %s footprint is %s, want Polygon", e.ID, g.GeoJSONType())
			}
			s.Footprint = poly
		}
		scenes = append(scenes, s)
	}
	sortScenes(scenes)

	return &DirSource{dir: dir, scenes: scenes, readBand: geotiff.ReadBand}, nil
}

// ListScenes filters the index against the query.
func (d *DirSource) ListScenes(_ context.Context, q Query) ([]Scene, error) {
	var out []Scene
	for _, s := range d.scenes {
		if q.Matches(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

// FetchBand reads the scene's band GeoTIFF relative to the source directory.
func (d *DirSource) FetchBand(_ context.Context, scene Scene, band string) (*raster.Raster, error) {
	rel, ok := scene.Bands[band]
	if !ok {
		return nil, eris.Wrapf(ErrDataSource, "dir: scene %s has no %q band", scene.ID, band)
	}
	r, err := d.readBand(filepath.Join(d.dir, rel))
	if err != nil {
		return nil, eris.Wrapf(ErrDataSource, "dir: read band %s of %s: %v", band, scene.ID, err)
	}
	return r, nil
}
