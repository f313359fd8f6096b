// Package logger implements the engine's OperationLogger contract on top of
// zerolog.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	hier "github.com/phamhung075/4genthub-sub021"
)

// Operation logs service operations as structured zerolog events.
type Operation struct {
	logger zerolog.Logger
}

// New builds an Operation logger writing JSON lines to w; a nil w defaults
// to stderr.
func New(w io.Writer) *Operation {
	if w == nil {
		w = os.Stderr
	}
	return &Operation{
		logger: zerolog.New(w).With().Timestamp().Logger(),
	}
}

// FromZerolog wraps an existing zerolog logger, so callers embedding the
// engine keep one logging pipeline.
func FromZerolog(logger zerolog.Logger) *Operation {
	return &Operation{logger: logger}
}

// LogOperation implements hier.OperationLogger.
func (l *Operation) LogOperation(event hier.OperationLogEvent) {
	entry := l.logger.Info()
	if event.Err != nil {
		entry = l.logger.Error().Err(event.Err)
	}
	entry.
		Str("op", event.Op).
		Str("owner", event.Owner).
		Str("context_level", event.Level.String()).
		Str("id", event.ID).
		Dur("duration", event.Duration).
		Msg("hierarchy operation")
}
