// Package raster holds the in-memory raster model and the pixel-wise
// operations of the pipeline: band algebra, temporal compositing, and
// threshold classification. All operations are eager and pure; undefined
// pixels are represented as NaN in the buffer and must be tested through
// Defined, never compared directly.
package raster

import (
	"math"

	"github.com/rotisserie/eris"
)

// Grid describes the georeferencing of a raster: dimensions, origin
// (upper-left corner), cell size, and coordinate reference system. Two
// rasters may be combined pixel-wise only when their grids are equal.
type Grid struct {
	Cols int
	Rows int

	// OriginX, OriginY are the coordinates of the upper-left corner of the
	// upper-left cell.
	OriginX float64
	OriginY float64

	// CellX is the cell width. CellY is the cell height and is negative for
	// north-up grids, matching the GDAL geotransform convention.
	CellX float64
	CellY float64

	// CRS is an identifier such as "EPSG:32633". Geographic reports whether
	// cell sizes are in degrees rather than projected meters.
	CRS        string
	Geographic bool
}

// Equal reports whether two grids are pixel-compatible: same dimensions,
// origin, cell size, and CRS.
func (g Grid) Equal(o Grid) bool {
	return g.Cols == o.Cols && g.Rows == o.Rows &&
		g.OriginX == o.OriginX && g.OriginY == o.OriginY &&
		g.CellX == o.CellX && g.CellY == o.CellY &&
		g.CRS == o.CRS
}

// CellCenter returns the coordinates of the center of cell (col, row).
func (g Grid) CellCenter(col, row int) (x, y float64) {
	x = g.OriginX + (float64(col)+0.5)*g.CellX
	y = g.OriginY + (float64(row)+0.5)*g.CellY
	return x, y
}

// CellBound returns the min/max coordinates of cell (col, row).
func (g Grid) CellBound(col, row int) (minX, minY, maxX, maxY float64) {
	x0 := g.OriginX + float64(col)*g.CellX
	y0 := g.OriginY + float64(row)*g.CellY
	x1 := x0 + g.CellX
	y1 := y0 + g.CellY
	return math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)
}

// Size returns the number of cells in the grid.
func (g Grid) Size() int {
	return g.Cols * g.Rows
}

// Raster is a single-band 2-D array of float64 values on a Grid. Pixels may
// be undefined (no observation, invalid input); undefined pixels are stored
// as NaN.
type Raster struct {
	Grid Grid

	// Values is row-major: Values[row*Grid.Cols+col].
	Values []float64
}

// New allocates a raster on the given grid with every pixel undefined.
func New(g Grid) *Raster {
	vals := make([]float64, g.Size())
	for i := range vals {
		vals[i] = math.NaN()
	}
	return &Raster{Grid: g, Values: vals}
}

// NewFilled allocates a raster on the given grid with every pixel set to v.
func NewFilled(g Grid, v float64) *Raster {
	vals := make([]float64, g.Size())
	for i := range vals {
		vals[i] = v
	}
	return &Raster{Grid: g, Values: vals}
}

// At returns the value at (col, row). The value is NaN when undefined.
func (r *Raster) At(col, row int) float64 {
	return r.Values[row*r.Grid.Cols+col]
}

// Set stores v at (col, row).
func (r *Raster) Set(col, row int, v float64) {
	r.Values[row*r.Grid.Cols+col] = v
}

// SetUndefined marks (col, row) as having no value.
func (r *Raster) SetUndefined(col, row int) {
	r.Values[row*r.Grid.Cols+col] = math.NaN()
}

// Defined reports whether (col, row) holds a value.
func (r *Raster) Defined(col, row int) bool {
	return !math.IsNaN(r.Values[row*r.Grid.Cols+col])
}

// DefinedCount returns the number of defined pixels.
func (r *Raster) DefinedCount() int {
	n := 0
	for _, v := range r.Values {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Mask is a 2-D boolean array on a Grid, produced by threshold
// classification.
type Mask struct {
	Grid   Grid
	Values []bool
}

// NewMask allocates an all-false mask on the given grid.
func NewMask(g Grid) *Mask {
	return &Mask{Grid: g, Values: make([]bool, g.Size())}
}

// At returns the mask value at (col, row).
func (m *Mask) At(col, row int) bool {
	return m.Values[row*m.Grid.Cols+col]
}

// Set stores v at (col, row).
func (m *Mask) Set(col, row int, v bool) {
	m.Values[row*m.Grid.Cols+col] = v
}

// TrueCount returns the number of true pixels.
func (m *Mask) TrueCount() int {
	n := 0
	for _, v := range m.Values {
		if v {
			n++
		}
	}
	return n
}

func isUndefined(v float64) bool {
	return math.IsNaN(v)
}

// sameGrid verifies that every raster shares the grid of the first one.
func sameGrid(rasters []*Raster) error {
	if len(rasters) == 0 {
		return nil
	}
	g := rasters[0].Grid
	for i, r := range rasters[1:] {
		if !r.Grid.Equal(g) {
			return eris.Wrapf(ErrGridMismatch, "raster %d does not align with raster 0", i+1)
		}
	}
	return nil
}
