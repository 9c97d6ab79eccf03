package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// New returns the process logger. Local environments get the console writer,
// everything else emits JSON lines.
func New(env string) zerolog.Logger {
	if env == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
