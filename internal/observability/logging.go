package observability

import (
	"io"
	"strings"

	jww "github.com/spf13/jwalterweatherman"
)

// SetupLogging sets the jww threshold from a level name and routes log
// output to w. Unknown levels fall back to info.
func SetupLogging(level string, w io.Writer) {
	threshold := jww.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		threshold = jww.LevelTrace
	case "debug":
		threshold = jww.LevelDebug
	case "warn", "warning":
		threshold = jww.LevelWarn
	case "error":
		threshold = jww.LevelError
	}
	if w != nil {
		jww.SetLogOutput(w)
	}
	jww.SetLogThreshold(threshold)
	jww.SetStdoutThreshold(threshold)
}
