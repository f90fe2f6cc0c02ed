package cmdutil

import (
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// NewLogger returns a logfmt logger writing to stdout, filtered by ll and
// tagged with program.
func NewLogger(ll LogLevel, program string) log.Logger {
	l := log.NewLogfmtLogger(log.NewSyncWriter(os.Stdout))
	l = level.NewFilter(l, ll.FilterOption())
	return log.With(l, "ts", log.DefaultTimestamp, "caller", log.DefaultCaller, "program", program)
}
