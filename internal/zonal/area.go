// Package zonal aggregates masked pixel area inside a region of interest.
//
// The overlap policy is pixel-center-in-polygon: a pixel contributes its full
// area when its center lies inside the region and nothing otherwise. The
// policy is simple and deliberately approximate at region edges; it is fixed
// here so results are reproducible.
package zonal

import (
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ndvi-cli/internal/raster"
	"github.com/sells-group/ndvi-cli/internal/region"
)

// Unit is a physical area unit for reported results.
type Unit string

const (
	SquareMeters     Unit = "m2"
	Hectares         Unit = "ha"
	SquareKilometers Unit = "km2"
)

// ParseUnit parses a unit name. Unknown names are an error.
func ParseUnit(s string) (Unit, error) {
	switch Unit(strings.ToLower(strings.TrimSpace(s))) {
	case SquareMeters:
		return SquareMeters, nil
	case Hectares:
		return Hectares, nil
	case SquareKilometers:
		return SquareKilometers, nil
	default:
		return "", eris.Errorf("zonal: unknown area unit %q", s)
	}
}

// FromSquareMeters converts an area in m² to the unit.
func (u Unit) FromSquareMeters(m2 float64) float64 {
	switch u {
	case Hectares:
		return m2 / 10_000
	case SquareKilometers:
		return m2 / 1_000_000
	default:
		return m2
	}
}

// PixelAreas returns a raster of per-pixel physical area in m² on the given
// grid. Projected grids have uniform cells of |CellX·CellY|. Geographic
// grids get a geodesic area per cell; cells in the same row share latitude
// extent and therefore area, so one cell per row is evaluated.
func PixelAreas(g raster.Grid) *raster.Raster {
	out := raster.New(g)
	if !g.Geographic {
		cell := g.CellX * g.CellY
		if cell < 0 {
			cell = -cell
		}
		for i := range out.Values {
			out.Values[i] = cell
		}
		return out
	}

	for row := 0; row < g.Rows; row++ {
		minX, minY, maxX, maxY := g.CellBound(0, row)
		cell := geo.Area(orb.Bound{
			Min: orb.Point{minX, minY},
			Max: orb.Point{maxX, maxY},
		})
		if cell < 0 {
			cell = -cell
		}
		for col := 0; col < g.Cols; col++ {
			out.Set(col, row, cell)
		}
	}
	return out
}

// Area sums the physical area of mask-true pixels whose centers fall inside
// the region, converted to the requested unit. The mask and area rasters
// must share dimensions. The result is always >= 0.
func Area(mask *raster.Mask, areas *raster.Raster, roi *region.Region, unit Unit) (float64, error) {
	if mask.Grid.Cols != areas.Grid.Cols || mask.Grid.Rows != areas.Grid.Rows {
		return 0, eris.Wrapf(raster.ErrDimensionMismatch,
			"zonal: mask %dx%d vs areas %dx%d",
			mask.Grid.Cols, mask.Grid.Rows, areas.Grid.Cols, areas.Grid.Rows)
	}

	var sum float64
	for row := 0; row < mask.Grid.Rows; row++ {
		for col := 0; col < mask.Grid.Cols; col++ {
			if !mask.At(col, row) {
				continue
			}
			x, y := mask.Grid.CellCenter(col, row)
			if roi != nil && !roi.Contains(x, y) {
				continue
			}
			if areas.Defined(col, row) {
				sum += areas.At(col, row)
			}
		}
	}
	return unit.FromSquareMeters(sum), nil
}
