// Package logging configures the process-wide zerolog logger used by
// every component instead of the standard library's log package.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global, configured logger. Init must run before any
// component calls WithComponent.
var Logger zerolog.Logger

// Init configures Logger for the given environment. production selects
// structured JSON output; anything else selects a human-readable console
// writer.
func Init(nodeEnv string) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if nodeEnv == "production" {
		Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}

	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagged with the given subsystem
// name (room, ot, session, bus, store, api).
func WithComponent(component string) *zerolog.Logger {
	l := Logger.With().Str("component", component).Logger()
	return &l
}
