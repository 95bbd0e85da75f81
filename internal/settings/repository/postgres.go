package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGRepository struct{ pg *pgxpool.Pool }

func New(pg *pgxpool.Pool) *PGRepository { return &PGRepository{pg: pg} }

const (
	getOwnerSetting  = `SELECT value FROM app_settings WHERE owner_id = $1 AND key = $2`
	getGlobalSetting = `SELECT value FROM app_settings WHERE owner_id IS NULL AND key = $1`
	upsertSetting    = `
INSERT INTO app_settings (id, owner_id, key, value, is_secret)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (COALESCE(owner_id, '00000000-0000-0000-0000-000000000000'::uuid), key)
DO UPDATE SET value = EXCLUDED.value, is_secret = EXCLUDED.is_secret, updated_at = now()`
)

func (r *PGRepository) Get(ctx context.Context, key string, ownerID *uuid.UUID) (string, bool, error) {
	var v string
	if ownerID != nil {
		err := r.pg.QueryRow(ctx, getOwnerSetting, *ownerID, key).Scan(&v)
		if err == nil {
			return v, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", false, err
		}
	}
	err := r.pg.QueryRow(ctx, getGlobalSetting, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *PGRepository) Upsert(ctx context.Context, key string, ownerID *uuid.UUID, value string, secret bool) error {
	_, err := r.pg.Exec(ctx, upsertSetting, uuid.New(), ownerID, key, value, secret)
	return err
}
