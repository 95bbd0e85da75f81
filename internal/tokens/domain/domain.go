package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInsufficientTokens is matched by every *InsufficientError.
var ErrInsufficientTokens = errors.New("insufficient tokens")

// InsufficientError reports how far a request is from being affordable.
type InsufficientError struct {
	Required  int
	Available int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient tokens: required %d, available %d", e.Required, e.Available)
}

func (e *InsufficientError) Is(target error) bool { return target == ErrInsufficientTokens }

type TransactionType string

const (
	TypeAdd    TransactionType = "ADD"
	TypeDeduct TransactionType = "DEDUCT"
)

// Transaction is one ledger row. Amount is always positive; Type gives the sign.
type Transaction struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"userId"`
	Amount    int             `json:"amount"`
	Type      TransactionType `json:"type"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Repository abstracts the balance column and the ledger.
type Repository interface {
	Balance(ctx context.Context, userID uuid.UUID) (int, error)
	// Credit adds amount and writes an ADD ledger row atomically, returning the new balance.
	Credit(ctx context.Context, userID uuid.UUID, amount int, reason string) (int, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]Transaction, error)
}

// Service is the quota gate used by the batch and API paths.
type Service interface {
	Check(ctx context.Context, userID uuid.UUID, required int) error
	Balance(ctx context.Context, userID uuid.UUID) (int, error)
	Credit(ctx context.Context, userID uuid.UUID, amount int, reason string) (int, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]Transaction, error)
}
