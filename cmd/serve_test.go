package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ndvi-cli/internal/catalog"
	"github.com/sells-group/ndvi-cli/internal/config"
	"github.com/sells-group/ndvi-cli/internal/raster"
	"github.com/sells-group/ndvi-cli/internal/store"
)

// memSource serves fixed scenes and bands without any backend.
type memSource struct {
	scenes []catalog.Scene
	bands  map[string]map[string]*raster.Raster
}

func (m *memSource) ListScenes(_ context.Context, _ catalog.Query) ([]catalog.Scene, error) {
	return m.scenes, nil
}

func (m *memSource) FetchBand(_ context.Context, scene catalog.Scene, band string) (*raster.Raster, error) {
	return m.bands[scene.ID][band], nil
}

func testServeSource() *memSource {
	g := raster.Grid{
		Cols: 2, Rows: 2,
		OriginX: 0, OriginY: 20,
		CellX: 10, CellY: -10,
		CRS: "EPSG:32633",
	}
	mk := func(vals ...float64) *raster.Raster {
		r := raster.New(g)
		copy(r.Values, vals)
		return r
	}
	return &memSource{
		scenes: []catalog.Scene{
			{ID: "s1", AcquiredAt: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)},
		},
		bands: map[string]map[string]*raster.Raster{
			"s1": {
				catalog.BandNIR: mk(3, 1, 4, 1),
				catalog.BandRed: mk(1, 1, 1, 1),
			},
		},
	}
}

func testRouter(t *testing.T) (http.Handler, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	defaults := config.PipelineConfig{
		NDVIThreshold:    0.3,
		MaxCloudCover:    0.2,
		Concurrency:      2,
		FetchTimeoutSecs: 10,
		Unit:             "ha",
	}
	return newRouter(context.Background(), st, testServeSource(), defaults), st
}

func TestServeHealthz(t *testing.T) {
	router, _ := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServeAnalyze_BadBody(t *testing.T) {
	router, _ := testRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader("not json"))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeAnalyze_MissingRegion(t *testing.T) {
	router, _ := testRouter(t)

	rec := httptest.NewRecorder()
	body := `{"start":"2023-06-01","end":"2023-07-01"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(body))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "region")
}

func TestServeAnalyze_RunsToCompletion(t *testing.T) {
	router, st := testRouter(t)

	rec := httptest.NewRecorder()
	body := `{"region":"POLYGON((0 0, 20 0, 20 20, 0 20, 0 0))","start":"2023-06-01","end":"2023-07-01"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(body))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		RunID  string `json:"run_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RunID)
	assert.Equal(t, "running", resp.Status)

	require.Eventually(t, func() bool {
		run, err := st.GetRun(context.Background(), resp.RunID)
		return err == nil && run.Status == store.RunStatusSucceeded
	}, 5*time.Second, 20*time.Millisecond)

	run, err := st.GetRun(context.Background(), resp.RunID)
	require.NoError(t, err)
	require.NotNil(t, run.Result)
	// Two of four 100 m2 pixels exceed the 0.3 threshold.
	assert.InDelta(t, 0.02, run.Result.Area, 1e-9)
	assert.Equal(t, "ha", run.Result.Unit)
	assert.Equal(t, 1, run.Result.ScenesUsed)
}

func TestServeRuns_ListAndGet(t *testing.T) {
	router, st := testRouter(t)

	rec, err := st.CreateRun(context.Background(), store.RunParams{Region: "POLYGON EMPTY"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), rec.ID)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/runs/"+rec.ID, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/runs/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeRuns_BadLimit(t *testing.T) {
	router, _ := testRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/runs?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
