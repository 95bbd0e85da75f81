package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvusHold/certify/internal/bounces/domain"
)

type PGRepository struct{ pg *pgxpool.Pool }

func New(pg *pgxpool.Pool) *PGRepository { return &PGRepository{pg: pg} }

const (
	upsertBounce    = `INSERT INTO bounces (email) VALUES ($1) ON CONFLICT (email) DO NOTHING`
	bouncesForBatch = `
SELECT DISTINCT b.email, b.created_at
FROM certificates c
JOIN bounces b ON b.email = lower(c.recipient_email)
WHERE c.batch_id = $1
ORDER BY b.email`
)

func (r *PGRepository) Record(ctx context.Context, email string) error {
	_, err := r.pg.Exec(ctx, upsertBounce, strings.ToLower(strings.TrimSpace(email)))
	return err
}

func (r *PGRepository) ForBatch(ctx context.Context, batchID uuid.UUID) ([]domain.Bounce, error) {
	rows, err := r.pg.Query(ctx, bouncesForBatch, batchID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[domain.Bounce])
}
