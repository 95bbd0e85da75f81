package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("api key not found")
	ErrKeyInactive       = errors.New("api key inactive")
	ErrKeyExpired        = errors.New("api key expired")
	ErrAPIAccessDisabled = errors.New("api access disabled for account")
)

// KeyPrefix starts every raw key so leaked keys are easy to grep for.
const KeyPrefix = "ck_"

// APIKey is stored hashed; the raw value is only shown at creation.
type APIKey struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"userId"`
	Hash      string     `json:"-"`
	Prefix    string     `json:"prefix"`
	IsActive  bool       `json:"isActive"`
	CreatedAt time.Time  `json:"createdAt"`
	LastUsed  *time.Time `json:"lastUsed,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the key has an expiry at or before now.
func (k APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

type Repository interface {
	Create(ctx context.Context, k APIKey) error
	GetByHash(ctx context.Context, hash string) (APIKey, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
	Deactivate(ctx context.Context, userID, id uuid.UUID) error
}
