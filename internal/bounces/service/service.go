package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corvusHold/certify/internal/bounces/domain"
	cdomain "github.com/corvusHold/certify/internal/certificates/domain"
	evdomain "github.com/corvusHold/certify/internal/events/domain"
	"github.com/corvusHold/certify/internal/metrics"
	"github.com/corvusHold/certify/internal/platform/validation"
)

var ErrInvalidEmail = errors.New("invalid email")

// Batches resolves batch ownership.
type Batches interface {
	GetBatch(ctx context.Context, id uuid.UUID) (cdomain.Batch, error)
}

type Service struct {
	repo    domain.Repository
	batches Batches
	pub     evdomain.Publisher
}

func New(repo domain.Repository, batches Batches, pub evdomain.Publisher) *Service {
	return &Service{repo: repo, batches: batches, pub: pub}
}

// Record adds an address to the bounce set. Recording the same address twice is a no-op.
func (s *Service) Record(ctx context.Context, email, event string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if !validation.IsEmail(email) {
		return ErrInvalidEmail
	}
	if err := s.repo.Record(ctx, email); err != nil {
		return err
	}
	metrics.IncBounceRecorded()
	if s.pub != nil {
		_ = s.pub.Publish(ctx, evdomain.Event{
			Type: evdomain.TypeBounceRecorded,
			Meta: map[string]string{"email": email, "event": event},
			Time: time.Now(),
		})
	}
	return nil
}

// ForBatch lists bounced recipients of a batch owned by creatorID.
func (s *Service) ForBatch(ctx context.Context, creatorID, batchID uuid.UUID) ([]domain.Bounce, error) {
	b, err := s.batches.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.CreatorID != creatorID {
		return nil, cdomain.ErrNotFound
	}
	out, err := s.repo.ForBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Bounce{}
	}
	return out, nil
}
