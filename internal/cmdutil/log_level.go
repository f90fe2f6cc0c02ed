// Package cmdutil holds helpers shared by the commands.
package cmdutil

import (
	"fmt"
	"strings"

	"github.com/go-kit/log/level"
)

// LogLevel implements flag.Value for selecting a logging level. The zero
// value logs at info.
type LogLevel struct {
	value  level.Value
	option level.Option
}

var levels = map[string]LogLevel{
	"error": {value: level.ErrorValue(), option: level.AllowError()},
	"warn":  {value: level.WarnValue(), option: level.AllowWarn()},
	"info":  {value: level.InfoValue(), option: level.AllowInfo()},
	"debug": {value: level.DebugValue(), option: level.AllowDebug()},
}

// String implements flag.Value.
func (l LogLevel) String() string {
	if l.value == nil {
		return levels["info"].value.String()
	}
	return l.value.String()
}

// Set implements flag.Value.
func (l *LogLevel) Set(in string) error {
	found, ok := levels[strings.ToLower(in)]
	if !ok {
		return fmt.Errorf("unknown log level %q, valid options error, warn, info, debug", in)
	}
	*l = found
	return nil
}

// FilterOption returns l as an option for level.NewFilter.
func (l LogLevel) FilterOption() level.Option {
	if l.option == nil {
		return levels["info"].option
	}
	return l.option
}
