package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	adomain "github.com/corvusHold/certify/internal/apikeys/domain"
	udomain "github.com/corvusHold/certify/internal/users/domain"
)

type Service struct {
	repo  adomain.Repository
	users udomain.Repository
	log   zerolog.Logger
	now   func() time.Time
}

func New(repo adomain.Repository, users udomain.Repository, log zerolog.Logger) *Service {
	return &Service{repo: repo, users: users, log: log, now: time.Now}
}

// Hash is the at-rest form of a raw key.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Create mints a key for userID. The raw key is returned once and never stored.
// ttl <= 0 means no expiry.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, ttl time.Duration) (string, adomain.APIKey, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return "", adomain.APIKey{}, err
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", adomain.APIKey{}, fmt.Errorf("generate api key: %w", err)
	}
	raw := adomain.KeyPrefix + hex.EncodeToString(buf)
	now := s.now().UTC()
	k := adomain.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		Hash:      Hash(raw),
		Prefix:    raw[:len(adomain.KeyPrefix)+8],
		IsActive:  true,
		CreatedAt: now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		k.ExpiresAt = &exp
	}
	if err := s.repo.Create(ctx, k); err != nil {
		return "", adomain.APIKey{}, err
	}
	return raw, k, nil
}

// Authenticate resolves a raw key to its record. The key must be active and
// unexpired and its owner must have API access.
func (s *Service) Authenticate(ctx context.Context, raw string) (adomain.APIKey, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, adomain.KeyPrefix) {
		return adomain.APIKey{}, adomain.ErrNotFound
	}
	k, err := s.repo.GetByHash(ctx, Hash(raw))
	if err != nil {
		return adomain.APIKey{}, err
	}
	now := s.now()
	if !k.IsActive {
		return adomain.APIKey{}, adomain.ErrKeyInactive
	}
	if k.Expired(now) {
		return adomain.APIKey{}, adomain.ErrKeyExpired
	}
	u, err := s.users.GetByID(ctx, k.UserID)
	if err != nil {
		return adomain.APIKey{}, err
	}
	if !u.APIAccess {
		return adomain.APIKey{}, adomain.ErrAPIAccessDisabled
	}
	if err := s.repo.TouchLastUsed(ctx, k.ID, now); err != nil {
		s.log.Warn().Err(err).Str("api_key_id", k.ID.String()).Msg("failed to record api key use")
	} else {
		k.LastUsed = &now
	}
	return k, nil
}

// Revoke deactivates one of userID's keys.
func (s *Service) Revoke(ctx context.Context, userID, keyID uuid.UUID) error {
	return s.repo.Deactivate(ctx, userID, keyID)
}
