package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/corvusHold/certify/internal/events/domain"
)

// Logger is a Publisher that writes events to the structured log.
type Logger struct{ log zerolog.Logger }

func NewLogger(log zerolog.Logger) *Logger {
	return &Logger{log: log.With().Str("component", "events").Logger()}
}

func (l *Logger) Publish(_ context.Context, e domain.Event) error {
	l.log.Info().
		Str("type", e.Type).
		Str("user_id", e.UserID.String()).
		Fields(map[string]any{"meta": e.Meta}).
		Time("ts", e.Time).
		Msg("event")
	return nil
}
