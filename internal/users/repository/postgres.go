package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvusHold/certify/internal/users/domain"
)

type PGRepository struct{ pg *pgxpool.Pool }

func New(pg *pgxpool.Pool) *PGRepository { return &PGRepository{pg: pg} }

const getUserByID = `
SELECT id, name, organization, email, token_balance, api_access, roles, created_at
FROM users WHERE id = $1`

func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	var u domain.User
	err := r.pg.QueryRow(ctx, getUserByID, id).Scan(
		&u.ID, &u.Name, &u.Organization, &u.Email, &u.TokenBalance, &u.APIAccess, &u.Roles, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	return u, err
}
