package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvusHold/certify/internal/apikeys/domain"
)

type PGRepository struct{ pg *pgxpool.Pool }

func New(pg *pgxpool.Pool) *PGRepository { return &PGRepository{pg: pg} }

const (
	insertKey = `
INSERT INTO api_keys (id, user_id, key_hash, prefix, is_active, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	getKeyByHash = `
SELECT id, user_id, key_hash, prefix, is_active, created_at, last_used, expires_at
FROM api_keys WHERE key_hash = $1`
	touchKey      = `UPDATE api_keys SET last_used = $2 WHERE id = $1`
	deactivateKey = `UPDATE api_keys SET is_active = FALSE WHERE id = $1 AND user_id = $2`
)

func (r *PGRepository) Create(ctx context.Context, k domain.APIKey) error {
	_, err := r.pg.Exec(ctx, insertKey, k.ID, k.UserID, k.Hash, k.Prefix, k.IsActive, k.CreatedAt, k.ExpiresAt)
	return err
}

func (r *PGRepository) GetByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	var k domain.APIKey
	err := r.pg.QueryRow(ctx, getKeyByHash, hash).Scan(
		&k.ID, &k.UserID, &k.Hash, &k.Prefix, &k.IsActive, &k.CreatedAt, &k.LastUsed, &k.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.APIKey{}, domain.ErrNotFound
	}
	return k, err
}

func (r *PGRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pg.Exec(ctx, touchKey, id, at)
	return err
}

func (r *PGRepository) Deactivate(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.pg.Exec(ctx, deactivateKey, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
