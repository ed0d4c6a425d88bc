package gsym

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// logger writes structured events to stderr. The runtime shares stdout with
// the instrumented target, so stderr is the only safe channel.
var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).
	With().Timestamp().Logger()

// SetLogger replaces the package logger, e.g. to silence it in tests.
func SetLogger(l zerolog.Logger) {
	logger = l
}

// logFatal reports an unrecoverable misuse and aborts.
func logFatal(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Error().Msg(msg)
	panic(msg)
}
