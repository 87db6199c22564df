package raster

import (
	"sort"

	"github.com/rotisserie/eris"
)

// CompositeMedian reduces a stack of index rasters into one composite by
// taking the per-pixel median of the defined values. Pixels undefined in
// every input stay undefined. All inputs must share a grid; callers resample
// before calling, never this function.
func CompositeMedian(rasters []*Raster) (*Raster, error) {
	if len(rasters) == 0 {
		return nil, eris.Wrap(ErrEmptyInput, "composite: no rasters to reduce")
	}
	if err := sameGrid(rasters); err != nil {
		return nil, eris.Wrap(err, "composite")
	}

	out := New(rasters[0].Grid)
	stack := make([]float64, 0, len(rasters))
	for i := range out.Values {
		stack = stack[:0]
		for _, r := range rasters {
			if v := r.Values[i]; !isUndefined(v) {
				stack = append(stack, v)
			}
		}
		if len(stack) == 0 {
			continue
		}
		out.Values[i] = median(stack)
	}
	return out, nil
}

// median computes the classic sample median: the middle element for odd
// counts, the mean of the two middle elements for even counts. The input
// slice is sorted in place.
func median(vals []float64) float64 {
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[mid]
	}
	return (vals[mid-1] + vals[mid]) / 2
}
