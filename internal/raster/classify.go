package raster

// Classify thresholds a composite raster into a boolean mask. A pixel is
// true when its value is strictly greater than threshold. Undefined pixels
// classify to false: an unobserved pixel never contributes area downstream.
func Classify(composite *Raster, threshold float64) *Mask {
	m := NewMask(composite.Grid)
	for i, v := range composite.Values {
		if !isUndefined(v) && v > threshold {
			m.Values[i] = true
		}
	}
	return m
}
