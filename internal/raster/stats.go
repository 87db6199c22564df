package raster

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds descriptive statistics over the defined pixels of a raster.
type Summary struct {
	Defined int     `json:"defined"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
}

// Summarize computes descriptive statistics over the defined pixels. When no
// pixel is defined, Defined is zero and the numeric fields are NaN.
func Summarize(r *Raster) Summary {
	defined := make([]float64, 0, len(r.Values))
	for _, v := range r.Values {
		if !isUndefined(v) {
			defined = append(defined, v)
		}
	}
	if len(defined) == 0 {
		nan := math.NaN()
		return Summary{Min: nan, Max: nan, Mean: nan, StdDev: nan}
	}
	return Summary{
		Defined: len(defined),
		Min:     floats.Min(defined),
		Max:     floats.Max(defined),
		Mean:    stat.Mean(defined, nil),
		StdDev:  stat.StdDev(defined, nil),
	}
}
