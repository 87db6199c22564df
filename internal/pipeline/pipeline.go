// Package pipeline runs the end-to-end vegetation analysis: catalog query,
// per-scene NDVI, temporal median composite, threshold classification, and
// zonal area aggregation over a region of interest.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ndvi-cli/internal/catalog"
	"github.com/sells-group/ndvi-cli/internal/raster"
	"github.com/sells-group/ndvi-cli/internal/region"
	"github.com/sells-group/ndvi-cli/internal/zonal"
)

// Params configures a single pipeline run.
type Params struct {
	Region        *region.Region
	Start         time.Time
	End           time.Time
	MaxCloudCover float64
	NDVIThreshold float64
	Unit          zonal.Unit
	Concurrency   int
	FetchTimeout  time.Duration

	// CompositePath, when non-empty, is where the median composite is
	// written via WriteComposite after aggregation succeeds.
	CompositePath  string
	WriteComposite func(path string, r *raster.Raster) error

	// Progress, when set, is called after each scene finishes (used or
	// dropped) with the number done so far and the total.
	Progress func(done, total int)
}

// Result is the outcome of a successful run.
type Result struct {
	Area           float64
	Unit           zonal.Unit
	ScenesMatched  int
	ScenesUsed     int
	ScenesFailed   int
	VegetatedCells int
	Composite      *raster.Raster
	CompositeStats raster.Summary
}

const (
	defaultConcurrency  = 4
	defaultFetchTimeout = 2 * time.Minute
)

func (p *Params) validate() error {
	if p.Region == nil {
		return eris.Wrap(ErrConfiguration, "region is required")
	}
	if p.Start.IsZero() || p.End.IsZero() {
		return eris.Wrap(ErrConfiguration, "start and end dates are required")
	}
	if !p.Start.Before(p.End) {
		return eris.Wrapf(ErrConfiguration, "start %s is not before end %s",
			p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
	}
	if p.MaxCloudCover < 0 || p.MaxCloudCover > 1 {
		return eris.Wrapf(ErrConfiguration, "max cloud cover %v outside [0, 1]", p.MaxCloudCover)
	}
	if p.NDVIThreshold < -1 || p.NDVIThreshold > 1 {
		return eris.Wrapf(ErrConfiguration, "ndvi threshold %v outside [-1, 1]", p.NDVIThreshold)
	}
	if p.Concurrency < 0 {
		return eris.Wrapf(ErrConfiguration, "concurrency %d is negative", p.Concurrency)
	}
	if p.Unit == "" {
		p.Unit = zonal.Hectares
	}
	if p.Concurrency == 0 {
		p.Concurrency = defaultConcurrency
	}
	if p.FetchTimeout <= 0 {
		p.FetchTimeout = defaultFetchTimeout
	}
	return nil
}

// Run executes the full pipeline against src. Scenes that fail to fetch or
// time out are dropped with a warning; the run only fails when no scene
// survives. The returned error carries the class sentinels consumed by
// ExitCode.
func Run(ctx context.Context, src catalog.Source, p Params) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("component", "pipeline"))

	q := catalog.Query{
		Bound:         p.Region.Bound(),
		Start:         p.Start,
		End:           p.End,
		MaxCloudCover: p.MaxCloudCover,
	}
	scenes, err := src.ListScenes(ctx, q)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list scenes")
	}
	if len(scenes) == 0 {
		return nil, eris.Wrap(raster.ErrEmptyInput, "pipeline: no scenes match the query")
	}
	log.Info("scenes matched",
		zap.Int("count", len(scenes)),
		zap.Time("start", p.Start),
		zap.Time("end", p.End))

	indexes := make([]*raster.Raster, len(scenes))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Concurrency)
	for i, scene := range scenes {
		g.Go(func() error {
			ndvi, err := sceneNDVI(gctx, src, scene, p.FetchTimeout)
			switch {
			case err != nil && gctx.Err() != nil:
				return gctx.Err()
			case err != nil:
				log.Warn("scene dropped",
					zap.String("scene", scene.ID),
					zap.Error(err))
			default:
				indexes[i] = ndvi
			}
			if p.Progress != nil {
				p.Progress(int(done.Add(1)), len(scenes))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: fetch scenes")
	}

	// Compact in place; indexes keeps acquisition order.
	kept := indexes[:0]
	for _, r := range indexes {
		if r != nil {
			kept = append(kept, r)
		}
	}
	failed := len(scenes) - len(kept)
	if len(kept) == 0 {
		return nil, eris.Wrapf(raster.ErrEmptyInput,
			"pipeline: all %d scenes dropped", len(scenes))
	}
	if failed > 0 {
		log.Warn("partial coverage", zap.Int("dropped", failed), zap.Int("kept", len(kept)))
	}

	composite, err := raster.CompositeMedian(kept)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: composite")
	}
	mask := raster.Classify(composite, p.NDVIThreshold)
	areas := zonal.PixelAreas(composite.Grid)
	area, err := zonal.Area(mask, areas, p.Region, p.Unit)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: aggregate area")
	}

	if p.CompositePath != "" && p.WriteComposite != nil {
		if err := p.WriteComposite(p.CompositePath, composite); err != nil {
			return nil, eris.Wrapf(err, "pipeline: write composite %s", p.CompositePath)
		}
		log.Info("composite written", zap.String("path", p.CompositePath))
	}

	res := &Result{
		Area:           area,
		Unit:           p.Unit,
		ScenesMatched:  len(scenes),
		ScenesUsed:     len(kept),
		ScenesFailed:   failed,
		VegetatedCells: mask.TrueCount(),
		Composite:      composite,
		CompositeStats: raster.Summarize(composite),
	}
	log.Info("run complete",
		zap.Float64("area", res.Area),
		zap.String("unit", string(res.Unit)),
		zap.Int("scenes_used", res.ScenesUsed),
		zap.Int("scenes_failed", res.ScenesFailed))
	return res, nil
}

// sceneNDVI fetches both bands for one scene under its own deadline and
// computes the index.
func sceneNDVI(ctx context.Context, src catalog.Source, scene catalog.Scene, timeout time.Duration) (*raster.Raster, error) {
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	nir, err := src.FetchBand(sctx, scene, catalog.BandNIR)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch %s band", catalog.BandNIR)
	}
	red, err := src.FetchBand(sctx, scene, catalog.BandRed)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch %s band", catalog.BandRed)
	}
	ndvi, err := raster.NDVI(nir, red)
	if err != nil {
		return nil, eris.Wrapf(err, "scene %s", scene.ID)
	}
	return ndvi, nil
}
