package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event represents an audit event.
// Type examples: "batch.completed", "tokens.credited", "bounce.recorded"
// Meta may contain batch_id, counts, reason, etc.
type Event struct {
	Type   string
	UserID uuid.UUID
	Meta   map[string]string
	Time   time.Time
}

// Publisher publishes events to an external system (log, queue, etc.).
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

const (
	TypeBatchCompleted       = "batch.completed"
	TypeCertificateGenerated = "certificate.generated"
	TypeTokensCredited       = "tokens.credited"
	TypeBounceRecorded       = "bounce.recorded"
)
