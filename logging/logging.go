// Package logging builds the default per-instance zerolog.Logger used by
// Client and Server when the caller doesn't supply one, grounded on
// edgectl's internal/observability.InitLogger: a console writer with RFC3339
// timestamps and a component tag, no global logger mutation.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a console-writer logger tagged with component (e.g. "client",
// "server"). Each Client/Server owns its own *zerolog.Logger instance —
// nothing here touches zerolog's package-level default logger.
func New(component string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).With().Timestamp().Str("component", component).Logger()
}
