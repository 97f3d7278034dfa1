// Package logging constructs the single zerolog.Logger threaded through the
// rest of the process. Nothing in this repo reaches for a package-level
// logger; every actor and component receives one as a field.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger writing to stdout, honoring level and format
// the same way the teacher's config.go does ("json", "text", "pretty").
func New(level, format string) zerolog.Logger {
	var w zerolog.Logger
	switch strings.ToLower(format) {
	case "pretty":
		w = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	case "text":
		w = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, NoColor: true}).With().Timestamp().Logger()
	default: // "json"
		w = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return w.Level(lvl)
}
