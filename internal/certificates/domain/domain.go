package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corvusHold/certify/internal/records"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicateIdentifier is returned when a unique identifier collides with a stored one.
	ErrDuplicateIdentifier = errors.New("unique identifier already in use")
	ErrInvalidEmail        = errors.New("invalid recipient email")
	ErrInvalidCSV          = errors.New("invalid csv")
	ErrInvalidTemplate     = errors.New("template cannot be rendered")
)

// MissingPlaceholdersError lists template placeholders absent from a request.
type MissingPlaceholdersError struct {
	Missing []string
}

func (e *MissingPlaceholdersError) Error() string {
	return fmt.Sprintf("missing placeholders: %s", strings.Join(e.Missing, ", "))
}

type BatchStatus string

const (
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// Progress counters. Once a batch completes,
// Succeeded + Failed + InvalidEmails == Total.
type Progress struct {
	Total         int `json:"total"`
	Processed     int `json:"processed"`
	Succeeded     int `json:"succeeded"`
	Failed        int `json:"failed"`
	InvalidEmails int `json:"invalidEmailCount"`
}

type Batch struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	CreatorID   uuid.UUID   `json:"creatorId"`
	TemplateID  uuid.UUID   `json:"templateId"`
	Status      BatchStatus `json:"status"`
	Progress    Progress    `json:"progress"`
	CreatedAt   time.Time   `json:"createdAt"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// Certificate is one generated image and the record it was rendered from.
type Certificate struct {
	ID                uuid.UUID      `json:"id"`
	TemplateID        uuid.UUID      `json:"templateId"`
	BatchID           *uuid.UUID     `json:"batchId,omitempty"`
	UniqueIdentifier  string         `json:"uniqueIdentifier"`
	Data              records.Record `json:"data"`
	RecipientEmail    string         `json:"recipientEmail,omitempty"`
	ImageKey          string         `json:"-"`
	GeneratedImageURL string         `json:"generatedImageUrl"`
	CreatorID         uuid.UUID      `json:"creatorId"`
	CreatedAt         time.Time      `json:"createdAt"`
}

type FailedCertificate struct {
	ID        uuid.UUID      `json:"id"`
	BatchID   uuid.UUID      `json:"batchId"`
	Row       int            `json:"row"`
	Data      records.Record `json:"data"`
	Reason    string         `json:"reason"`
	CreatedAt time.Time      `json:"createdAt"`
}

type InvalidEmail struct {
	ID        uuid.UUID `json:"id"`
	BatchID   uuid.UUID `json:"batchId"`
	Row       int       `json:"row"`
	Email     string    `json:"email"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

// Outcome is the result of one record: a certificate or a failure reason.
type Outcome struct {
	Row         int
	Certificate *Certificate
	Reason      string
}

func (o Outcome) OK() bool { return o.Certificate != nil }

// Repository persists batches and their certificates.
type Repository interface {
	CreateBatch(ctx context.Context, b Batch) error
	RecordInvalidEmails(ctx context.Context, batchID uuid.UUID, rows []InvalidEmail) error
	// CreateCertificate debits one token from the creator, inserts the
	// certificate and bumps the batch counters in a single transaction.
	// It fails with tokens.ErrInsufficientTokens or ErrDuplicateIdentifier
	// without side effects.
	CreateCertificate(ctx context.Context, c Certificate) error
	RecordFailure(ctx context.Context, f FailedCertificate) error
	FinishBatch(ctx context.Context, batchID uuid.UUID, status BatchStatus) (Batch, error)
	GetBatch(ctx context.Context, id uuid.UUID) (Batch, error)
	ListFailures(ctx context.Context, batchID uuid.UUID) ([]FailedCertificate, error)
	ListInvalidEmails(ctx context.Context, batchID uuid.UUID) ([]InvalidEmail, error)
	GetByUniqueIdentifier(ctx context.Context, uid string) (Certificate, error)
}
