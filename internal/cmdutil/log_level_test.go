package cmdutil

import (
	"bytes"
	"flag"
	"testing"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/stretchr/testify/require"
)

func TestLogLevel_Flag(t *testing.T) {
	var ll LogLevel
	require.Equal(t, "info", ll.String())

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&ll, "log.level", "")
	require.NoError(t, fs.Parse([]string{"-log.level", "DEBUG"}))
	require.Equal(t, "debug", ll.String())

	require.Error(t, ll.Set("verbose"))
}

func TestLogLevel_FilterOption(t *testing.T) {
	var buf bytes.Buffer

	var ll LogLevel
	require.NoError(t, ll.Set("warn"))
	l := level.NewFilter(log.NewLogfmtLogger(&buf), ll.FilterOption())

	level.Info(l).Log("msg", "dropped")
	level.Warn(l).Log("msg", "kept")
	require.Equal(t, "level=warn msg=kept\n", buf.String())
}
