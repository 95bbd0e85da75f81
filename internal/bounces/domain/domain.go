package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Bounce is an address the provider reported as undeliverable. Bounces are
// keyed by address only; they are matched to batches at query time.
type Bounce struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type Repository interface {
	// Record stores email if it is not already known. Emails are lower-cased.
	Record(ctx context.Context, email string) error
	// ForBatch returns the batch's recipient addresses present in the bounce set.
	ForBatch(ctx context.Context, batchID uuid.UUID) ([]Bounce, error)
}
