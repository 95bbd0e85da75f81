package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	global map[string]string
	owner  map[uuid.UUID]map[string]string
	err    error
}

func (m *memRepo) Get(_ context.Context, key string, ownerID *uuid.UUID) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	if ownerID != nil {
		if v, ok := m.owner[*ownerID][key]; ok {
			return v, true, nil
		}
	}
	v, ok := m.global[key]
	return v, ok, nil
}

func (m *memRepo) Upsert(context.Context, string, *uuid.UUID, string, bool) error { return nil }

func TestService_OwnerOverridesGlobal(t *testing.T) {
	owner := uuid.New()
	s := New(&memRepo{
		global: map[string]string{"email.from": "global@example.com", "n": "7"},
		owner:  map[uuid.UUID]map[string]string{owner: {"email.from": "creator@example.com", "n": " "}},
	})
	ctx := context.Background()

	v, err := s.GetString(ctx, "email.from", &owner, "def")
	require.NoError(t, err)
	assert.Equal(t, "creator@example.com", v)

	v, err = s.GetString(ctx, "email.from", nil, "def")
	require.NoError(t, err)
	assert.Equal(t, "global@example.com", v)

	// blank override falls back to the default, not the global value
	n, err := s.GetInt(ctx, "n", &owner, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestService_TypedDefaults(t *testing.T) {
	s := New(&memRepo{global: map[string]string{"d": "90s", "bad": "soon", "i": "x"}})
	ctx := context.Background()

	d, err := s.GetDuration(ctx, "d", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = s.GetDuration(ctx, "bad", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	i, err := s.GetInt(ctx, "i", nil, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, i)
}

func TestService_RepoErrorReturnsDefault(t *testing.T) {
	s := New(&memRepo{err: errors.New("db down")})
	v, err := s.GetString(context.Background(), "k", nil, "def")
	assert.Error(t, err)
	assert.Equal(t, "def", v)
}
