package monitoring

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logf is the package-level diagnostic logger for printf-style callers such
// as the migration runner. It defaults to debug-level zerolog output but may
// be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = func(format string, v ...interface{}) {
	log.Debug().Msg(strings.TrimRight(fmt.Sprintf(format, v...), "\n"))
}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// LogOptions controls process-wide logger setup.
type LogOptions struct {
	// Verbosity 0 logs at info, 1 at debug, 2 or more at trace.
	Verbosity int
	// Format is "console" (default) or "json".
	Format string
	// Out defaults to stderr so exports written to stdout stay clean.
	Out io.Writer
}

// SetupLogger configures zerolog for the process and installs the result as
// the global logger.
func SetupLogger(opts LogOptions) (zerolog.Logger, error) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	var w io.Writer
	switch opts.Format {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	case "json":
		w = out
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q (want console or json)", opts.Format)
	}

	level := zerolog.InfoLevel
	switch {
	case opts.Verbosity >= 2:
		level = zerolog.TraceLevel
	case opts.Verbosity == 1:
		level = zerolog.DebugLevel
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	logger := zerolog.New(w).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger, nil
}
