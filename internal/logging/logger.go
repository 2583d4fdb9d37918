package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New returns the process logger. Development gets a human-readable console
// writer, every other env writes JSON lines to stdout.
func New(env, service string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", service).Logger()
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Str("service", service).Logger()
	}
	return logger
}
