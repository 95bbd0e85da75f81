package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	evdomain "github.com/corvusHold/certify/internal/events/domain"
	tdomain "github.com/corvusHold/certify/internal/tokens/domain"
)

type Service struct {
	repo tdomain.Repository
	pub  evdomain.Publisher
}

func New(repo tdomain.Repository, pub evdomain.Publisher) *Service {
	return &Service{repo: repo, pub: pub}
}

// Check fails with *InsufficientError when the balance cannot cover required.
// It is advisory: the authoritative check is the conditional debit.
func (s *Service) Check(ctx context.Context, userID uuid.UUID, required int) error {
	balance, err := s.repo.Balance(ctx, userID)
	if err != nil {
		return fmt.Errorf("token balance: %w", err)
	}
	if balance < required {
		return &tdomain.InsufficientError{Required: required, Available: balance}
	}
	return nil
}

func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.Balance(ctx, userID)
}

func (s *Service) Credit(ctx context.Context, userID uuid.UUID, amount int, reason string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	balance, err := s.repo.Credit(ctx, userID, amount, reason)
	if err != nil {
		return 0, err
	}
	if s.pub != nil {
		_ = s.pub.Publish(ctx, evdomain.Event{
			Type:   evdomain.TypeTokensCredited,
			UserID: userID,
			Meta:   map[string]string{"amount": strconv.Itoa(amount), "balance": strconv.Itoa(balance), "reason": reason},
			Time:   time.Now(),
		})
	}
	return balance, nil
}

func (s *Service) History(ctx context.Context, userID uuid.UUID, limit int) ([]tdomain.Transaction, error) {
	return s.repo.History(ctx, userID, limit)
}
