package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvusHold/certify/internal/templates/domain"
)

type PGRepository struct{ pg *pgxpool.Pool }

func New(pg *pgxpool.Pool) *PGRepository { return &PGRepository{pg: pg} }

const getTemplateByID = `
SELECT id, creator_id, name, image_url, width, height,
       placeholders, signatures, qr_placeholders, created_at, updated_at
FROM templates WHERE id = $1`

func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Template, error) {
	var (
		t              domain.Template
		phs, sigs, qrs []byte
	)
	err := r.pg.QueryRow(ctx, getTemplateByID, id).Scan(
		&t.ID, &t.CreatorID, &t.Name, &t.ImageURL, &t.Width, &t.Height,
		&phs, &sigs, &qrs, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Template{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Template{}, err
	}
	if err := decodeJSON(phs, &t.Placeholders); err != nil {
		return domain.Template{}, fmt.Errorf("template %s placeholders: %w", id, err)
	}
	if err := decodeJSON(sigs, &t.Signatures); err != nil {
		return domain.Template{}, fmt.Errorf("template %s signatures: %w", id, err)
	}
	if err := decodeJSON(qrs, &t.QRPlaceholders); err != nil {
		return domain.Template{}, fmt.Errorf("template %s qr placeholders: %w", id, err)
	}
	return t, nil
}

func decodeJSON(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}
