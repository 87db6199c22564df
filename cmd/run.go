package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ndvi-cli/internal/config"
	"github.com/sells-group/ndvi-cli/internal/geotiff"
	"github.com/sells-group/ndvi-cli/internal/pipeline"
	"github.com/sells-group/ndvi-cli/internal/region"
	"github.com/sells-group/ndvi-cli/internal/store"
	"github.com/sells-group/ndvi-cli/internal/zonal"
)

var (
	runRegion       string
	runStart        string
	runEnd          string
	runMaxCloud     float64
	runThreshold    float64
	runUnit         string
	runConcurrency  int
	runTimeoutSecs  int
	runOutComposite string
	runOutSummary   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the vegetation analysis for a region and date range",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		params, err := buildParams(cfg.Pipeline)
		if err != nil {
			return err
		}

		src, closeSrc, err := newSource(ctx)
		if err != nil {
			return err
		}
		defer closeSrc()

		st, err := initStore()
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		rec, err := st.CreateRun(ctx, store.RunParams{
			Region:        runRegion,
			Start:         params.Start.Format(time.RFC3339),
			End:           params.End.Format(time.RFC3339),
			MaxCloudCover: params.MaxCloudCover,
			NDVIThreshold: params.NDVIThreshold,
			Unit:          string(params.Unit),
		})
		if err != nil {
			return eris.Wrap(err, "record run")
		}

		// Progress bar is created lazily once the scene count is known.
		var barOnce sync.Once
		var bar *progressbar.ProgressBar
		params.Progress = func(done, total int) {
			barOnce.Do(func() {
				bar = progressbar.Default(int64(total), "Processing scenes")
			})
			_ = bar.Add(1)
		}

		result, err := pipeline.Run(ctx, src, params)
		if err != nil {
			if ferr := st.FailRun(ctx, rec.ID, err.Error()); ferr != nil {
				zap.L().Warn("record run failure", zap.Error(ferr))
			}
			return err
		}

		if err := st.CompleteRun(ctx, rec.ID, &store.RunResult{
			Area:          result.Area,
			Unit:          string(result.Unit),
			ScenesMatched: result.ScenesMatched,
			ScenesUsed:    result.ScenesUsed,
			ScenesFailed:  result.ScenesFailed,
		}); err != nil {
			zap.L().Warn("record run result", zap.Error(err))
		}

		return writeSummary(summaryPath(), result)
	},
}

func init() {
	runCmd.Flags().StringVar(&runRegion, "region", "", "region of interest: WKT, GeoJSON, or path to a .wkt/.geojson/.shp file (required)")
	runCmd.Flags().StringVar(&runStart, "start", "", "start date, inclusive (YYYY-MM-DD, required)")
	runCmd.Flags().StringVar(&runEnd, "end", "", "end date, exclusive (YYYY-MM-DD, required)")
	runCmd.Flags().Float64Var(&runMaxCloud, "max-cloud", -1, "max scene cloud cover fraction (default from config)")
	runCmd.Flags().Float64Var(&runThreshold, "threshold", -2, "NDVI classification threshold (default from config)")
	runCmd.Flags().StringVar(&runUnit, "unit", "", "output area unit: m2, ha, km2 (default from config)")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "max scenes fetched in parallel (default from config)")
	runCmd.Flags().IntVar(&runTimeoutSecs, "timeout", 0, "per-scene fetch timeout in seconds (default from config)")
	runCmd.Flags().StringVar(&runOutComposite, "out-composite", "", "write the median NDVI composite GeoTIFF here")
	runCmd.Flags().StringVar(&runOutSummary, "out-summary", "", "write the JSON summary here instead of stdout")
	_ = runCmd.MarkFlagRequired("region")
	_ = runCmd.MarkFlagRequired("start")
	_ = runCmd.MarkFlagRequired("end")
	rootCmd.AddCommand(runCmd)
}

// buildParams merges flags over config defaults into pipeline parameters.
// All parse failures are configuration errors.
func buildParams(defaults config.PipelineConfig) (pipeline.Params, error) {
	var p pipeline.Params

	roi, err := loadRegion(runRegion)
	if err != nil {
		return p, eris.Wrapf(pipeline.ErrConfiguration, "region: %v", err)
	}
	start, err := parseDate(runStart)
	if err != nil {
		return p, eris.Wrapf(pipeline.ErrConfiguration, "start: %v", err)
	}
	end, err := parseDate(runEnd)
	if err != nil {
		return p, eris.Wrapf(pipeline.ErrConfiguration, "end: %v", err)
	}

	unitName := runUnit
	if unitName == "" {
		unitName = defaults.Unit
	}
	unit, err := zonal.ParseUnit(unitName)
	if err != nil {
		return p, eris.Wrapf(pipeline.ErrConfiguration, "unit: %v", err)
	}

	maxCloud := runMaxCloud
	if maxCloud < 0 {
		maxCloud = defaults.MaxCloudCover
	}
	threshold := runThreshold
	if threshold < -1 {
		threshold = defaults.NDVIThreshold
	}
	concurrency := runConcurrency
	if concurrency == 0 {
		concurrency = defaults.Concurrency
	}
	timeoutSecs := runTimeoutSecs
	if timeoutSecs == 0 {
		timeoutSecs = defaults.FetchTimeoutSecs
	}

	p = pipeline.Params{
		Region:        roi,
		Start:         start,
		End:           end,
		MaxCloudCover: maxCloud,
		NDVIThreshold: threshold,
		Unit:          unit,
		Concurrency:   concurrency,
		FetchTimeout:  time.Duration(timeoutSecs) * time.Second,
	}

	if path := compositePath(); path != "" {
		p.CompositePath = path
		p.WriteComposite = geotiff.Write
	}
	return p, nil
}

// loadRegion accepts inline WKT, inline GeoJSON, or a file path.
func loadRegion(s string) (*region.Region, error) {
	trimmed := strings.TrimSpace(s)
	upper := strings.ToUpper(trimmed)
	switch {
	case strings.HasPrefix(upper, "POLYGON") || strings.HasPrefix(upper, "MULTIPOLYGON"):
		return region.FromWKT(trimmed)
	case strings.HasPrefix(trimmed, "{"):
		return region.FromGeoJSON([]byte(trimmed))
	default:
		return region.FromFile(trimmed)
	}
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func compositePath() string {
	if runOutComposite != "" {
		return runOutComposite
	}
	return cfg.Output.CompositePath
}

func summaryPath() string {
	if runOutSummary != "" {
		return runOutSummary
	}
	return cfg.Output.SummaryPath
}

// runSummary is the JSON document emitted after a successful run. AreaHa is
// always in hectares regardless of the requested unit.
type runSummary struct {
	AreaHa        float64 `json:"area_ha"`
	Area          float64 `json:"area"`
	Unit          string  `json:"unit"`
	ScenesMatched int     `json:"scenes_matched"`
	ScenesUsed    int     `json:"scenes_used"`
	ScenesFailed  int     `json:"scenes_failed"`
}

func newRunSummary(res *pipeline.Result) runSummary {
	return runSummary{
		AreaHa:        toHectares(res.Area, res.Unit),
		Area:          res.Area,
		Unit:          string(res.Unit),
		ScenesMatched: res.ScenesMatched,
		ScenesUsed:    res.ScenesUsed,
		ScenesFailed:  res.ScenesFailed,
	}
}

func toHectares(v float64, unit zonal.Unit) float64 {
	switch unit {
	case zonal.SquareMeters:
		return v / 10_000
	case zonal.SquareKilometers:
		return v * 100
	default:
		return v
	}
}

// writeSummary writes the summary JSON to path, or stdout when path is empty.
func writeSummary(path string, res *pipeline.Result) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "create summary %s", path)
		}
		defer f.Close() //nolint:errcheck
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(newRunSummary(res))
}
