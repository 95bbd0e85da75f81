package repository

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvusHold/certify/internal/templates/domain"
)

func TestPGRepository_GetByID(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("skipping integration test: DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
	require.NoError(t, err)
	defer pool.Close()

	creator, id := uuid.New(), uuid.New()
	_, err = pool.Exec(ctx, `INSERT INTO users (id, name, email) VALUES ($1, $2, $3)`,
		creator, "tpl", "tpl-"+creator.String()+"@example.com")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO templates (id, creator_id, name, image_url, width, height, placeholders)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, creator, "Completion", "https://assets.example.com/bg.png", 800, 600,
		`[{"id":"p1","name":"Name","position":{"x":400,"y":200},"style":{"fontSize":32}}]`)
	require.NoError(t, err)

	r := New(pool)
	got, err := r.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, creator, got.CreatorID)
	assert.Equal(t, 800, got.Width)
	require.Len(t, got.Placeholders, 1)
	assert.Equal(t, "Name", got.Placeholders[0].Name)
	assert.Empty(t, got.Signatures)

	_, err = r.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
