// Package catalog abstracts the scene catalog: listing satellite scenes that
// match a spatial/temporal/quality query and fetching their band rasters.
// Implementations exist for a local scene directory, a STAC API, and a
// PostGIS-backed catalog.
package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ndvi-cli/internal/raster"
)

// Band names used throughout the pipeline.
const (
	BandNIR = "nir"
	BandRed = "red"
)

// ErrDataSource wraps catalog/fetch failures. Transport-level retries happen
// inside the sources; by the time this surfaces, retries are exhausted.
var ErrDataSource = eris.New("catalog: data source failure")

// Scene is one satellite observation: metadata plus locators for its band
// rasters. Scenes are immutable once listed.
type Scene struct {
	ID         string            `json:"id"`
	AcquiredAt time.Time         `json:"acquired_at"`
	CloudCover float64           `json:"cloud_cover"` // fraction in [0, 1]
	Footprint  orb.Polygon       `json:"-"`
	Bands      map[string]string `json:"bands,omitempty"` // band name -> source-specific URI
}

// Query selects scenes by spatial bound, acquisition window [Start, End),
// and maximum cloud-cover fraction.
type Query struct {
	Bound         orb.Bound
	Start         time.Time
	End           time.Time
	MaxCloudCover float64
}

// Matches reports whether the scene satisfies the query.
func (q Query) Matches(s Scene) bool {
	if s.CloudCover > q.MaxCloudCover {
		return false
	}
	if s.AcquiredAt.Before(q.Start) || !s.AcquiredAt.Before(q.End) {
		return false
	}
	if len(s.Footprint) > 0 && !q.Bound.Intersects(s.Footprint.Bound()) {
		return false
	}
	return true
}

// Source is a pluggable scene catalog. ListScenes returns an empty slice,
// not an error, when nothing matches; callers decide whether that is fatal.
// Returned scenes are ordered by acquisition time then ID so identical
// queries list identically.
type Source interface {
	ListScenes(ctx context.Context, q Query) ([]Scene, error)
	FetchBand(ctx context.Context, scene Scene, band string) (*raster.Raster, error)
}

// sortScenes orders scenes by acquisition time, breaking ties by ID.
func sortScenes(scenes []Scene) {
	sort.Slice(scenes, func(i, j int) bool {
		if !scenes[i].AcquiredAt.Equal(scenes[j].AcquiredAt) {
			return scenes[i].AcquiredAt.Before(scenes[j].AcquiredAt)
		}
		return scenes[i].ID < scenes[j].ID
	})
}
