package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	evdomain "github.com/corvusHold/certify/internal/events/domain"
	tdomain "github.com/corvusHold/certify/internal/tokens/domain"
	udomain "github.com/corvusHold/certify/internal/users/domain"
)

type memRepo struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int
	ledger   []tdomain.Transaction
}

func (m *memRepo) Balance(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[id]
	if !ok {
		return 0, udomain.ErrNotFound
	}
	return b, nil
}

func (m *memRepo) Credit(_ context.Context, id uuid.UUID, amount int, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[id]; !ok {
		return 0, udomain.ErrNotFound
	}
	m.balances[id] += amount
	m.ledger = append(m.ledger, tdomain.Transaction{UserID: id, Amount: amount, Type: tdomain.TypeAdd, Reason: reason})
	return m.balances[id], nil
}

func (m *memRepo) History(_ context.Context, id uuid.UUID, _ int) ([]tdomain.Transaction, error) {
	return m.ledger, nil
}

type capturePub struct{ events []evdomain.Event }

func (c *capturePub) Publish(_ context.Context, e evdomain.Event) error {
	c.events = append(c.events, e)
	return nil
}

func TestCheck(t *testing.T) {
	user := uuid.New()
	s := New(&memRepo{balances: map[uuid.UUID]int{user: 3}}, nil)

	require.NoError(t, s.Check(context.Background(), user, 3))

	err := s.Check(context.Background(), user, 5)
	require.ErrorIs(t, err, tdomain.ErrInsufficientTokens)
	var ie *tdomain.InsufficientError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 5, ie.Required)
	assert.Equal(t, 3, ie.Available)

	assert.ErrorIs(t, s.Check(context.Background(), uuid.New(), 1), udomain.ErrNotFound)
}

func TestCredit_PublishesEvent(t *testing.T) {
	user := uuid.New()
	repo := &memRepo{balances: map[uuid.UUID]int{user: 1}}
	pub := &capturePub{}
	s := New(repo, pub)

	b, err := s.Credit(context.Background(), user, 10, "purchase")
	require.NoError(t, err)
	assert.Equal(t, 11, b)
	require.Len(t, pub.events, 1)
	assert.Equal(t, evdomain.TypeTokensCredited, pub.events[0].Type)
	assert.Equal(t, "11", pub.events[0].Meta["balance"])

	_, err = s.Credit(context.Background(), user, 0, "")
	assert.Error(t, err)
	assert.Len(t, repo.ledger, 1)
}
