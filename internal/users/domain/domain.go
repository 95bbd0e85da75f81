package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("user not found")

// User is the certify view of an account owned by the auth service.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Organization string    `json:"organization"`
	Email        string    `json:"email"`
	TokenBalance int       `json:"tokenBalance"`
	APIAccess    bool      `json:"apiAccess"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Public is the part of a creator shown on certificate validation pages.
type Public struct {
	Name         string `json:"name"`
	Organization string `json:"organization"`
	Email        string `json:"email"`
}

func (u User) Public() Public {
	return Public{Name: u.Name, Organization: u.Organization, Email: u.Email}
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
}
