package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service provides typed access to global settings with per-creator override.
type Service interface {
	GetString(ctx context.Context, key string, ownerID *uuid.UUID, def string) (string, error)
	GetDuration(ctx context.Context, key string, ownerID *uuid.UUID, def time.Duration) (time.Duration, error)
	GetInt(ctx context.Context, key string, ownerID *uuid.UUID, def int) (int, error)
}

// Repository abstracts storage of app settings.
type Repository interface {
	// Get returns (value, found, err) for a key, preferring the owner's value
	// over the global one.
	Get(ctx context.Context, key string, ownerID *uuid.UUID) (string, bool, error)
	// Upsert stores a key for an optional owner; nil owner is global.
	Upsert(ctx context.Context, key string, ownerID *uuid.UUID, value string, secret bool) error
}

// Common keys
const (
	KeyEmailProvider = "email.provider" // smtp | brevo
	KeySMTPHost      = "email.smtp.host"
	KeySMTPPort      = "email.smtp.port"
	KeySMTPUsername  = "email.smtp.username"
	KeySMTPPassword  = "email.smtp.password"
	KeyBrevoAPIKey   = "email.brevo.api_key"
	KeyBrevoSender   = "email.brevo.sender"
	KeyEmailFrom     = "email.from"

	// Templates for certificate emails. {{Column}} refers to a record column,
	// {{certificate_url}} to the signed image link.
	KeyEmailSubjectTemplate = "email.subject_template"
	KeyEmailBodyTemplate    = "email.body_template"
)

// SecretKeys are stored with is_secret and masked on read.
var SecretKeys = map[string]bool{
	KeySMTPPassword: true,
	KeyBrevoAPIKey:  true,
}
