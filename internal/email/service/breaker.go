package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	edomain "github.com/corvusHold/certify/internal/email/domain"
)

// ErrProviderUnavailable is returned while the owner's breaker is open.
var ErrProviderUnavailable = edomain.ErrProviderUnavailable

// Breaker stops hammering a failing provider. Each owner gets its own circuit
// since owners carry their own credentials. Configuration errors do not
// count as provider failures.
type Breaker struct {
	next     edomain.Sender
	settings gobreaker.Settings

	mu      sync.Mutex
	byOwner map[uuid.UUID]*gobreaker.CircuitBreaker
}

// NewBreaker opens an owner's circuit after 5 consecutive failures and tries
// again after cooldown.
func NewBreaker(next edomain.Sender, cooldown time.Duration, log zerolog.Logger) *Breaker {
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		next: next,
		settings: gobreaker.Settings{
			Timeout: cooldown,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, edomain.ErrNotConfigured)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			},
		},
		byOwner: map[uuid.UUID]*gobreaker.CircuitBreaker{},
	}
}

func (b *Breaker) breakerFor(ownerID uuid.UUID) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.byOwner[ownerID]
	if !ok {
		st := b.settings
		st.Name = "email:" + ownerID.String()
		cb = gobreaker.NewCircuitBreaker(st)
		b.byOwner[ownerID] = cb
	}
	return cb
}

func (b *Breaker) Send(ctx context.Context, ownerID uuid.UUID, m edomain.Message) error {
	_, err := b.breakerFor(ownerID).Execute(func() (interface{}, error) {
		return nil, b.next.Send(ctx, ownerID, m)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrProviderUnavailable
	}
	return err
}

// Cooldown is how long an open circuit waits before letting a send through.
func (b *Breaker) Cooldown() time.Duration { return b.settings.Timeout }

// State reports the owner's circuit. Owners that never sent are closed.
func (b *Breaker) State(ownerID uuid.UUID) string {
	b.mu.Lock()
	cb, ok := b.byOwner[ownerID]
	b.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed.String()
	}
	return cb.State().String()
}
