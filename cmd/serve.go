package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ndvi-cli/internal/catalog"
	"github.com/sells-group/ndvi-cli/internal/config"
	"github.com/sells-group/ndvi-cli/internal/pipeline"
	"github.com/sells-group/ndvi-cli/internal/store"
	"github.com/sells-group/ndvi-cli/internal/zonal"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for analysis requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

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

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(ctx, st, src, cfg.Pipeline),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// analyzeRequest is the POST /v1/analyze body. Optional numeric fields fall
// back to the configured defaults when omitted.
type analyzeRequest struct {
	Region        string   `json:"region"`
	Start         string   `json:"start"`
	End           string   `json:"end"`
	MaxCloudCover *float64 `json:"max_cloud_cover"`
	NDVIThreshold *float64 `json:"ndvi_threshold"`
	Unit          string   `json:"unit"`
	Concurrency   int      `json:"concurrency"`
}

func newRouter(bg context.Context, st *store.SQLiteStore, src catalog.Source, defaults config.PipelineConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/v1/analyze", func(w http.ResponseWriter, req *http.Request) {
		var body analyzeRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		params, err := paramsFromRequest(body, defaults)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		rec, err := st.CreateRun(req.Context(), store.RunParams{
			Region:        body.Region,
			Start:         params.Start.Format(time.RFC3339),
			End:           params.End.Format(time.RFC3339),
			MaxCloudCover: params.MaxCloudCover,
			NDVIThreshold: params.NDVIThreshold,
			Unit:          string(params.Unit),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "record run")
			return
		}

		// The analysis outlives the request; it is tied to the server
		// lifetime instead.
		go func() {
			result, err := pipeline.Run(bg, src, params)
			if err != nil {
				zap.L().Error("analysis failed",
					zap.String("run", rec.ID),
					zap.Error(err))
				if ferr := st.FailRun(bg, rec.ID, err.Error()); ferr != nil {
					zap.L().Warn("record run failure", zap.Error(ferr))
				}
				return
			}
			if err := st.CompleteRun(bg, rec.ID, &store.RunResult{
				Area:          result.Area,
				Unit:          string(result.Unit),
				ScenesMatched: result.ScenesMatched,
				ScenesUsed:    result.ScenesUsed,
				ScenesFailed:  result.ScenesFailed,
			}); err != nil {
				zap.L().Warn("record run result", zap.Error(err))
			}
			zap.L().Info("analysis complete",
				zap.String("run", rec.ID),
				zap.Float64("area", result.Area),
				zap.String("unit", string(result.Unit)))
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"run_id": rec.ID,
			"status": string(store.RunStatusRunning),
		})
	})

	r.Get("/v1/runs", func(w http.ResponseWriter, req *http.Request) {
		limit := 50
		if s := req.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}

		runs, err := st.ListRuns(req.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list runs")
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/v1/runs/{runID}", func(w http.ResponseWriter, req *http.Request) {
		run, err := st.GetRun(req.Context(), chi.URLParam(req, "runID"))
		if err != nil {
			if eris.Is(err, store.ErrRunNotFound) {
				writeError(w, http.StatusNotFound, "run not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "get run")
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	return r
}

// paramsFromRequest validates an API request into pipeline parameters using
// the configured defaults for omitted fields.
func paramsFromRequest(body analyzeRequest, defaults config.PipelineConfig) (pipeline.Params, error) {
	var p pipeline.Params

	if body.Region == "" {
		return p, eris.New("region is required")
	}
	roi, err := loadRegion(body.Region)
	if err != nil {
		return p, eris.Wrap(err, "region")
	}
	start, err := parseDate(body.Start)
	if err != nil {
		return p, eris.Wrap(err, "start")
	}
	end, err := parseDate(body.End)
	if err != nil {
		return p, eris.Wrap(err, "end")
	}

	unitName := body.Unit
	if unitName == "" {
		unitName = defaults.Unit
	}
	unit, err := zonal.ParseUnit(unitName)
	if err != nil {
		return p, err
	}

	maxCloud := defaults.MaxCloudCover
	if body.MaxCloudCover != nil {
		maxCloud = *body.MaxCloudCover
	}
	threshold := defaults.NDVIThreshold
	if body.NDVIThreshold != nil {
		threshold = *body.NDVIThreshold
	}
	concurrency := body.Concurrency
	if concurrency == 0 {
		concurrency = defaults.Concurrency
	}

	return pipeline.Params{
		Region:        roi,
		Start:         start,
		End:           end,
		MaxCloudCover: maxCloud,
		NDVIThreshold: threshold,
		Unit:          unit,
		Concurrency:   concurrency,
		FetchTimeout:  time.Duration(defaults.FetchTimeoutSecs) * time.Second,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
