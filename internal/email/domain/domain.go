package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotConfigured means the selected provider lacks credentials.
var ErrNotConfigured = errors.New("email provider not configured")

// ErrProviderUnavailable means sends for this owner are paused after repeated
// provider failures. The message was not attempted.
var ErrProviderUnavailable = errors.New("email provider unavailable")

// Message is one outgoing email. From may be empty to use the provider default.
type Message struct {
	To      string
	From    string
	Subject string
	Text    string
	HTML    string
	CC      []string
	BCC     []string
}

// Sender is a pluggable email sending interface supporting per-creator overrides.
// ownerID selects creator settings; use uuid.Nil for global.
type Sender interface {
	Send(ctx context.Context, ownerID uuid.UUID, msg Message) error
}
