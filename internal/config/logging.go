package config

import (
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

// ConfigureLogging sets up the commonlog backend. Verbosity 0 logs notices
// and above, positive values add info and debug, negative values drop levels
// until -4 turns logging off. An empty path logs to stderr.
func ConfigureLogging(s LogSettings) {
	if s.Path == "" {
		commonlog.Configure(s.Verbosity, nil)
		return
	}
	path := s.Path
	commonlog.Configure(s.Verbosity, &path)
}
