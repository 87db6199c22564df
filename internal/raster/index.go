package raster

import "github.com/rotisserie/eris"

// NDVI computes the normalized difference vegetation index
// (nir-red)/(nir+red) per pixel. The output shares the input grid. A pixel
// is undefined in the output when it is undefined in either input or when
// nir+red == 0; the zero-sum case never produces a division fault or an
// Inf/NaN leaking out as a defined value.
func NDVI(nir, red *Raster) (*Raster, error) {
	if !nir.Grid.Equal(red.Grid) {
		return nil, eris.Wrap(ErrGridMismatch, "ndvi: nir and red bands")
	}

	out := New(nir.Grid)
	for i, n := range nir.Values {
		r := red.Values[i]
		if isUndefined(n) || isUndefined(r) {
			continue
		}
		sum := n + r
		if sum == 0 {
			continue
		}
		out.Values[i] = (n - r) / sum
	}
	return out, nil
}
