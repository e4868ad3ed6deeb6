package integrations

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pmahajan3105/releasenote-sub004/internal/domain/integration"
	"github.com/pmahajan3105/releasenote-sub004/internal/repository"
)

// DefaultStateTTL bounds how long an authorization redirect stays valid.
const DefaultStateTTL = 10 * time.Minute

// StateStore issues and consumes single-use anti-forgery state tokens.
// A token moves from issued to exactly one of consumed, expired, or invalid;
// there is no way back.
type StateStore struct {
	repo repository.OAuthStateRepository
	ttl  time.Duration
	now  func() time.Time
}

// NewStateStore wires the store over a state repository. A non-positive ttl
// falls back to DefaultStateTTL.
func NewStateStore(repo repository.OAuthStateRepository, ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{repo: repo, ttl: ttl, now: time.Now}
}

// NewToken returns a fresh opaque state token: 32 bytes of system
// randomness, hex encoded. The token carries no embedded meaning.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Persist records a new state for the given provider and user. The caller
// must not redirect the browser unless Persist succeeded: an un-persisted
// state can never be validated.
func (s *StateStore) Persist(ctx context.Context, provider integration.Provider, state, userID, pkceVerifier string) error {
	now := s.now().UTC()
	rec := integration.StateRecord{
		State:        state,
		Provider:     provider,
		UserID:       userID,
		PKCEVerifier: pkceVerifier,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.repo.Insert(ctx, rec); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// Consume removes the state record and returns it. The removal happens
// atomically with the read, so of two racing callbacks presenting the same
// state at most one succeeds; the loser sees ErrInvalidState.
//
// A user mismatch also returns ErrInvalidState, indistinguishable from
// "not found", and still burns the token.
func (s *StateStore) Consume(ctx context.Context, provider integration.Provider, state, userID string) (*integration.StateRecord, error) {
	rec, err := s.repo.Take(ctx, provider, state)
	if err != nil {
		return nil, fmt.Errorf("consume state: %w", err)
	}
	if rec == nil {
		return nil, integration.ErrInvalidState
	}
	if rec.UserID != userID {
		return nil, integration.ErrInvalidState
	}
	if rec.Expired(s.now()) {
		return nil, integration.ErrExpiredState
	}
	return rec, nil
}
