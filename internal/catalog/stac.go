package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/planetlabs/go-stac"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/ndvi-cli/internal/geotiff"
	"github.com/sells-group/ndvi-cli/internal/raster"
	"github.com/sells-group/ndvi-cli/internal/resilience"
)

// itemCollection is the FeatureCollection shape of a STAC search response.
type itemCollection struct {
	Features []*stac.Item `json:"features"`
}

// STACSource queries a STAC API for scenes and fetches band assets over
// HTTP. Requests are rate limited and retried with backoff on transient
// failures.
type STACSource struct {
	baseURL    string
	collection string
	// bandAssets maps pipeline band names to STAC asset keys, e.g.
	// "nir" -> "B08" for Sentinel-2.
	bandAssets map[string]string

	client  *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig

	readBand func(path string) (*raster.Raster, error)
}

// STACOptions configures a STACSource.
type STACOptions struct {
	BaseURL    string
	Collection string
	BandAssets map[string]string
	// RequestsPerSecond bounds the request rate against the API. Zero means
	// no limit.
	RequestsPerSecond float64
	Client            *http.Client
}

// NewSTAC builds a STAC catalog source.
func NewSTAC(opts STACOptions) (*STACSource, error) {
	if opts.BaseURL == "" {
		return nil, eris.New("stac: base URL is required")
	}
	if opts.Collection == "" {
		return nil, eris.New("stac: collection is required")
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	bands := opts.BandAssets
	if bands == nil {
		bands = map[string]string{BandNIR: "B08", BandRed: "B04"}
	}

	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("stac", "request")

	return &STACSource{
		baseURL:    opts.BaseURL,
		collection: opts.Collection,
		bandAssets: bands,
		client:     client,
		limiter:    limiter,
		retry:      cfg,
		readBand:   geotiff.ReadBand,
	}, nil
}

// ListScenes POSTs a STAC item search and converts matching items to Scenes.
// The server filters by bbox and datetime; cloud cover is re-checked client
// side because the query extension is not universally implemented.
func (s *STACSource) ListScenes(ctx context.Context, q Query) ([]Scene, error) {
	body := map[string]any{
		"collections": []string{s.collection},
		"bbox":        []float64{q.Bound.Min[0], q.Bound.Min[1], q.Bound.Max[0], q.Bound.Max[1]},
		"datetime":    fmt.Sprintf("%s/%s", q.Start.UTC().Format(time.RFC3339), q.End.UTC().Format(time.RFC3339)),
		"limit":       500,
		"query": map[string]any{
			"eo:cloud_cover": map[string]any{"lte": q.MaxCloudCover * 100},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "stac: marshal search body")
	}

	data, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]byte, error) {
		return s.post(ctx, s.baseURL+"/search", payload)
	})
	if err != nil {
		return nil, eris.Wrapf(ErrDataSource, "stac: search: %v", err)
	}

	var ic itemCollection
	if err := json.Unmarshal(data, &ic); err != nil {
		return nil, eris.Wrapf(ErrDataSource, "stac: decode search response: %v", err)
	}

	scenes := make([]Scene, 0, len(ic.Features))
	for _, item := range ic.Features {
		scene, err := s.itemToScene(item)
		if err != nil {
			zap.L().Warn("stac: skipping malformed item", zap.String("item", item.Id), zap.Error(err))
			continue
		}
		if q.Matches(scene) {
			scenes = append(scenes, scene)
		}
	}
	sortScenes(scenes)
	return scenes, nil
}

// FetchBand downloads the scene's band asset to a temp file and reads it as
// a GeoTIFF.
func (s *STACSource) FetchBand(ctx context.Context, scene Scene, band string) (*raster.Raster, error) {
	href, ok := scene.Bands[band]
	if !ok {
		return nil, eris.Wrapf(ErrDataSource, "stac: scene %s has no %q band asset", scene.ID, band)
	}

	data, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]byte, error) {
		return s.get(ctx, href)
	})
	if err != nil {
		return nil, eris.Wrapf(ErrDataSource, "stac: fetch band %s of %s: %v", band, scene.ID, err)
	}

	tmp, err := os.CreateTemp("", "ndvi-band-*.tif")
	if err != nil {
		return nil, eris.Wrap(err, "stac: create temp file")
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(data); err != nil {
		return nil, eris.Wrap(err, "stac: write temp file")
	}

	r, err := s.readBand(tmp.Name())
	if err != nil {
		return nil, eris.Wrapf(ErrDataSource, "stac: read band %s of %s: %v", band, scene.ID, err)
	}
	return r, nil
}

func (s *STACSource) itemToScene(item *stac.Item) (Scene, error) {
	scene := Scene{ID: item.Id, Bands: make(map[string]string, len(s.bandAssets))}

	dt, ok := item.Properties["datetime"].(string)
	if !ok || dt == "" {
		return Scene{}, eris.New("item has no datetime")
	}
	acquired, err := time.Parse(time.RFC3339, dt)
	if err != nil {
		return Scene{}, eris.Wrap(err, "parse datetime")
	}
	scene.AcquiredAt = acquired

	if cc, ok := item.Properties["eo:cloud_cover"].(float64); ok {
		scene.CloudCover = cc / 100
	}

	if item.Geometry != nil {
		raw, err := json.Marshal(item.Geometry)
		if err != nil {
			return Scene{}, eris.Wrap(err, "marshal geometry")
		}
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return Scene{}, eris.Wrap(err, "parse geometry")
		}
		if poly, ok := g.Geometry().(orb.Polygon); ok {
			scene.Footprint = poly
		}
	}

	for band, assetKey := range s.bandAssets {
		asset, ok := item.Assets[assetKey]
		if !ok || asset.Href == "" {
			return Scene{}, eris.Errorf("item missing asset %q", assetKey)
		}
		scene.Bands[band] = asset.Href
	}
	return scene, nil
}

func (s *STACSource) post(ctx context.Context, url string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func (s *STACSource) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "build request")
	}
	return s.do(req)
}

func (s *STACSource) do(req *http.Request) ([]byte, error) {
	if err := s.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response body")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("%s %s returned status %d", req.Method, req.URL, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}
	return data, nil
}
