package domain

import (
	"context"
	"time"

	"github.com/google/uuid"

	edomain "github.com/corvusHold/certify/internal/email/domain"
)

// Job is one certificate email. Jobs are independent of each other.
type Job struct {
	ID             uuid.UUID `json:"id"`
	CertificateID  uuid.UUID `json:"certificateId"`
	CreatorID      uuid.UUID `json:"creatorId"`
	RecipientEmail string    `json:"recipientEmail"`
	FromAddress    string    `json:"fromAddress"`
	Subject        string    `json:"subject"`
	TextBody       string    `json:"textBody"`
	HTMLBody       string    `json:"htmlBody"`
	CC             []string  `json:"ccEmails,omitempty"`
	BCC            []string  `json:"bccEmails,omitempty"`
	AttachmentURL  string    `json:"attachmentUrl"`
	Attempt        int       `json:"attempt"`
	EnqueuedAt     time.Time `json:"enqueuedAt"`
}

// Message converts the job into an outgoing email.
func (j Job) Message() edomain.Message {
	return edomain.Message{
		To:      j.RecipientEmail,
		From:    j.FromAddress,
		Subject: j.Subject,
		Text:    j.TextBody,
		HTML:    j.HTMLBody,
		CC:      j.CC,
		BCC:     j.BCC,
	}
}

// Delivery is a consumed job awaiting settlement. Exactly one of Ack or
// Reject should be called; Reject dead-letters the job.
type Delivery struct {
	Job    Job
	Ack    func() error
	Reject func() error
}

// Enqueuer is the producer side used by the generation pipeline.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// Queue is a job transport with at-least-once semantics.
type Queue interface {
	Enqueuer
	// Consume streams deliveries until ctx is done; the channel is closed afterwards.
	Consume(ctx context.Context) (<-chan Delivery, error)
	Close() error
}
