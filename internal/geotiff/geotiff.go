// Package geotiff reads and writes single-band GeoTIFF rasters through GDAL.
// It is the only package that touches godal; the rest of the pipeline works
// on in-memory rasters.
package geotiff

import (
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ndvi-cli/internal/raster"
)

var registerOnce sync.Once

func register() {
	registerOnce.Do(godal.RegisterAll)
}

// ReadBand reads the first band of a GeoTIFF into a raster. NoData pixels
// become undefined.
func ReadBand(path string) (*raster.Raster, error) {
	register()

	ds, err := godal.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geotiff: open %s", path)
	}
	defer ds.Close()

	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, eris.Wrapf(err, "geotiff: geotransform of %s", path)
	}
	if gt[2] != 0 || gt[4] != 0 {
		return nil, eris.Errorf("geotiff: %s has a rotated geotransform, not supported", path)
	}

	structure := ds.Structure()
	g := raster.Grid{
		Cols:    structure.SizeX,
		Rows:    structure.SizeY,
		OriginX: gt[0],
		OriginY: gt[3],
		CellX:   gt[1],
		CellY:   gt[5],
	}
	if sr := ds.SpatialRef(); sr != nil {
		g.Geographic = sr.Geographic()
		if wkt, err := sr.WKT(); err == nil {
			g.CRS = wkt
		}
	}

	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, eris.Errorf("geotiff: %s has no bands", path)
	}
	band := bands[0]

	data := make([]float64, g.Size())
	if err := band.Read(0, 0, data, g.Cols, g.Rows); err != nil {
		return nil, eris.Wrapf(err, "geotiff: read band of %s", path)
	}

	out := &raster.Raster{Grid: g, Values: data}
	if nodata, ok := band.NoData(); ok {
		for i, v := range data {
			if v == nodata {
				data[i] = math.NaN()
			}
		}
	}
	return out, nil
}

// nodataValue marks undefined pixels in written files. Chosen to match the
// common convention for float rasters.
const nodataValue = -9999.0

// Write writes a raster as a single-band float64 GeoTIFF. Undefined pixels
// are written as the NoData value.
func Write(path string, r *raster.Raster) error {
	register()

	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float64, r.Grid.Cols, r.Grid.Rows)
	if err != nil {
		return eris.Wrapf(err, "geotiff: create %s", path)
	}
	defer ds.Close()

	gt := [6]float64{r.Grid.OriginX, r.Grid.CellX, 0, r.Grid.OriginY, 0, r.Grid.CellY}
	if err := ds.SetGeoTransform(gt); err != nil {
		return eris.Wrapf(err, "geotiff: set geotransform on %s", path)
	}

	if sr, err := spatialRef(r.Grid.CRS); err == nil && sr != nil {
		if err := ds.SetSpatialRef(sr); err != nil {
			return eris.Wrapf(err, "geotiff: set CRS on %s", path)
		}
	}

	band := ds.Bands()[0]
	if err := band.SetNoData(nodataValue); err != nil {
		return eris.Wrapf(err, "geotiff: set nodata on %s", path)
	}

	data := make([]float64, len(r.Values))
	for i, v := range r.Values {
		if math.IsNaN(v) {
			data[i] = nodataValue
		} else {
			data[i] = v
		}
	}
	if err := band.Write(0, 0, data, r.Grid.Cols, r.Grid.Rows); err != nil {
		return eris.Wrapf(err, "geotiff: write band of %s", path)
	}
	return nil
}

// spatialRef resolves a Grid.CRS label into a godal spatial reference.
// "EPSG:nnnn" labels are resolved by code, anything else is treated as WKT.
// An empty label yields nil.
func spatialRef(crs string) (*godal.SpatialRef, error) {
	if crs == "" {
		return nil, nil
	}
	if code, ok := epsgCode(crs); ok {
		return godal.NewSpatialRefFromEPSG(code)
	}
	return godal.NewSpatialRefFromWKT(crs)
}

// epsgCode extracts the numeric code from an "EPSG:nnnn" label.
func epsgCode(crs string) (int, bool) {
	if !strings.HasPrefix(strings.ToUpper(crs), "EPSG:") {
		return 0, false
	}
	code, err := strconv.Atoi(strings.TrimSpace(crs[5:]))
	if err != nil {
		return 0, false
	}
	return code, true
}
