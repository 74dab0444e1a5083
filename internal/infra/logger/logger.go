package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger. Both the shell and the daemon
// log to stderr so stdout stays free for command output.
func Init(debug bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.DateTime,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// New returns a logger tagged with the originating component.
func New(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Writer adapts zerolog for libraries that log through an io.Writer.
type Writer struct {
	Log zerolog.Logger
}

func (w Writer) Write(p []byte) (int, error) {
	if msg := strings.TrimSpace(string(p)); msg != "" {
		w.Log.Info().Msg(msg)
	}
	return len(p), nil
}
