package raster

import (
	"math"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGrid(cols, rows int) Grid {
	return Grid{
		Cols: cols, Rows: rows,
		OriginX: 500000, OriginY: 4649776,
		CellX: 10, CellY: -10,
		CRS: "EPSG:32633",
	}
}

func rasterOf(t *testing.T, g Grid, vals ...float64) *Raster {
	t.Helper()
	require.Len(t, vals, g.Size())
	r := New(g)
	copy(r.Values, vals)
	return r
}

func TestGridEqual(t *testing.T) {
	g := testGrid(4, 3)
	assert.True(t, g.Equal(testGrid(4, 3)))

	shifted := testGrid(4, 3)
	shifted.OriginX += 5
	assert.False(t, g.Equal(shifted))

	resized := testGrid(5, 3)
	assert.False(t, g.Equal(resized))

	otherCRS := testGrid(4, 3)
	otherCRS.CRS = "EPSG:4326"
	assert.False(t, g.Equal(otherCRS))
}

func TestGridCellCenter(t *testing.T) {
	g := testGrid(4, 3)
	x, y := g.CellCenter(0, 0)
	assert.Equal(t, 500005.0, x)
	assert.Equal(t, 4649771.0, y)

	x, y = g.CellCenter(3, 2)
	assert.Equal(t, 500035.0, x)
	assert.Equal(t, 4649751.0, y)
}

func TestGridCellBound(t *testing.T) {
	g := testGrid(2, 2)
	minX, minY, maxX, maxY := g.CellBound(1, 1)
	assert.Equal(t, 500010.0, minX)
	assert.Equal(t, 500020.0, maxX)
	assert.Equal(t, 4649756.0, minY)
	assert.Equal(t, 4649766.0, maxY)
}

func TestNewIsUndefined(t *testing.T) {
	r := New(testGrid(2, 2))
	for row := 0; row < 2; row++ {
		for col := 0; col < 2; col++ {
			assert.False(t, r.Defined(col, row))
		}
	}
	assert.Equal(t, 0, r.DefinedCount())
}

func TestNDVI_Values(t *testing.T) {
	g := testGrid(2, 1)
	nir := rasterOf(t, g, 0.8, 0.5)
	red := rasterOf(t, g, 0.2, 0.5)

	idx, err := NDVI(nir, red)
	require.NoError(t, err)

	// (0.8-0.2)/(0.8+0.2) = 0.6, (0.5-0.5)/(0.5+0.5) = 0.
	assert.InDelta(t, 0.6, idx.At(0, 0), 1e-12)
	assert.InDelta(t, 0.0, idx.At(1, 0), 1e-12)
}

func TestNDVI_ZeroSumIsUndefined(t *testing.T) {
	g := testGrid(2, 1)
	nir := rasterOf(t, g, 0, 0.3)
	red := rasterOf(t, g, 0, -0.3)

	idx, err := NDVI(nir, red)
	require.NoError(t, err)

	assert.False(t, idx.Defined(0, 0), "0/0 pixel must be undefined")
	assert.False(t, idx.Defined(1, 0), "zero-sum pixel must be undefined")
}

func TestNDVI_UndefinedInputPropagates(t *testing.T) {
	g := testGrid(2, 1)
	nir := rasterOf(t, g, math.NaN(), 0.8)
	red := rasterOf(t, g, 0.2, math.NaN())

	idx, err := NDVI(nir, red)
	require.NoError(t, err)
	assert.False(t, idx.Defined(0, 0))
	assert.False(t, idx.Defined(1, 0))
}

func TestNDVI_RangeBounded(t *testing.T) {
	g := testGrid(3, 1)
	nir := rasterOf(t, g, 1.0, 0.0, 0.9)
	red := rasterOf(t, g, 0.0, 1.0, 0.1)

	idx, err := NDVI(nir, red)
	require.NoError(t, err)
	for i, v := range idx.Values {
		assert.GreaterOrEqual(t, v, -1.0, "pixel %d", i)
		assert.LessOrEqual(t, v, 1.0, "pixel %d", i)
	}
}

func TestNDVI_GridMismatch(t *testing.T) {
	nir := New(testGrid(2, 2))
	red := New(testGrid(3, 2))

	_, err := NDVI(nir, red)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrGridMismatch))
}

func TestCompositeMedian_Empty(t *testing.T) {
	_, err := CompositeMedian(nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrEmptyInput))
}

func TestCompositeMedian_GridMismatch(t *testing.T) {
	a := New(testGrid(2, 2))
	b := New(testGrid(2, 3))

	_, err := CompositeMedian([]*Raster{a, b})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrGridMismatch))
}

func TestCompositeMedian_DimsMatchInput(t *testing.T) {
	g := testGrid(5, 4)
	out, err := CompositeMedian([]*Raster{New(g), New(g), New(g)})
	require.NoError(t, err)
	assert.Equal(t, g.Cols, out.Grid.Cols)
	assert.Equal(t, g.Rows, out.Grid.Rows)
}

func TestCompositeMedian_OddCount(t *testing.T) {
	g := testGrid(1, 1)
	out, err := CompositeMedian([]*Raster{
		rasterOf(t, g, 0.1),
		rasterOf(t, g, 0.9),
		rasterOf(t, g, 0.4),
	})
	require.NoError(t, err)
	assert.Equal(t, 0.4, out.At(0, 0))
}

func TestCompositeMedian_EvenCount(t *testing.T) {
	g := testGrid(1, 1)
	out, err := CompositeMedian([]*Raster{
		rasterOf(t, g, 0.2),
		rasterOf(t, g, 0.6),
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.4, out.At(0, 0), 1e-12)
}

func TestCompositeMedian_IgnoresUndefined(t *testing.T) {
	g := testGrid(1, 1)
	out, err := CompositeMedian([]*Raster{
		rasterOf(t, g, math.NaN()),
		rasterOf(t, g, 0.7),
		rasterOf(t, g, math.NaN()),
	})
	require.NoError(t, err)
	assert.Equal(t, 0.7, out.At(0, 0))
}

func TestCompositeMedian_AllUndefinedStaysUndefined(t *testing.T) {
	g := testGrid(1, 1)
	out, err := CompositeMedian([]*Raster{New(g), New(g)})
	require.NoError(t, err)
	assert.False(t, out.Defined(0, 0))
}

func TestClassify_Threshold(t *testing.T) {
	g := testGrid(3, 1)
	comp := rasterOf(t, g, 0.2, 0.3, 0.4)

	m := Classify(comp, 0.3)
	assert.False(t, m.At(0, 0))
	assert.False(t, m.At(1, 0), "strictly greater than, not >=")
	assert.True(t, m.At(2, 0))
}

func TestClassify_UndefinedIsFalse(t *testing.T) {
	g := testGrid(1, 1)
	m := Classify(New(g), -10)
	assert.False(t, m.At(0, 0))
}

func TestClassify_Monotonic(t *testing.T) {
	g := testGrid(4, 4)
	comp := New(g)
	vals := []float64{-0.8, -0.2, 0.0, 0.1, 0.25, 0.3, 0.31, 0.5, 0.75, 0.9, 1.0, math.NaN(), 0.05, 0.45, 0.6, -1.0}
	copy(comp.Values, vals)

	prev := comp.Grid.Size() + 1
	for _, th := range []float64{-1.5, -0.5, 0.0, 0.3, 0.6, 0.95, 1.5} {
		n := Classify(comp, th).TrueCount()
		assert.LessOrEqual(t, n, prev, "raising threshold must not grow the mask (threshold %v)", th)
		prev = n
	}
}

func TestSummarize(t *testing.T) {
	g := testGrid(2, 2)
	r := rasterOf(t, g, 0.1, 0.5, math.NaN(), 0.3)

	s := Summarize(r)
	assert.Equal(t, 3, s.Defined)
	assert.Equal(t, 0.1, s.Min)
	assert.Equal(t, 0.5, s.Max)
	assert.InDelta(t, 0.3, s.Mean, 1e-12)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(New(testGrid(2, 2)))
	assert.Equal(t, 0, s.Defined)
	assert.True(t, math.IsNaN(s.Mean))
}
