package raster

import "github.com/rotisserie/eris"

// Sentinel errors for precondition violations. Callers distinguish them with
// eris.Is; none of them are retryable.
var (
	// ErrEmptyInput is returned when an operation that needs at least one
	// raster receives none.
	ErrEmptyInput = eris.New("raster: empty input")

	// ErrGridMismatch is returned when rasters combined pixel-wise do not
	// share dimensions, origin, cell size, and CRS. Resampling to a common
	// grid is the caller's explicit responsibility.
	ErrGridMismatch = eris.New("raster: grid mismatch")

	// ErrDimensionMismatch is returned when two arrays expected to share a
	// shape do not.
	ErrDimensionMismatch = eris.New("raster: dimension mismatch")
)
