package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/ndvi-cli/internal/catalog"
	"github.com/sells-group/ndvi-cli/internal/raster"
)

// ErrConfiguration marks invalid user input (region, dates, thresholds).
// It is fatal and reported before any computation starts.
var ErrConfiguration = eris.New("pipeline: invalid configuration")

// Exit codes for the CLI. Zero is success; each fatal error class gets its
// own code so callers can script against them.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitConfiguration = 2
	ExitEmptyInput    = 3
	ExitDataSource    = 4
)

// ExitCode maps an error to the process exit code for its class.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case eris.Is(err, ErrConfiguration):
		return ExitConfiguration
	case eris.Is(err, raster.ErrEmptyInput):
		return ExitEmptyInput
	case eris.Is(err, catalog.ErrDataSource):
		return ExitDataSource
	default:
		return ExitFailure
	}
}
