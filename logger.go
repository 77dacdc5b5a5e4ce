package resfetch

import rlog "github.com/unkn0wn-root/resfetch/log"

// Aliases so callers configuring a Controller need only this package.
type (
	Fields    = rlog.Fields
	Logger    = rlog.Logger
	NopLogger = rlog.NopLogger
)
