package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pmahajan3105/releasenote-sub004/internal/domain/integration"
	"github.com/pmahajan3105/releasenote-sub004/internal/repository"
)

const stateKeyPrefix = "oauth:state:"

// RedisOAuthStateRepo implements OAuthStateRepository backed by Redis.
// Single-use consumption maps onto GETDEL, which is atomic server-side.
type RedisOAuthStateRepo struct {
	client redis.UniversalClient
}

var _ repository.OAuthStateRepository = (*RedisOAuthStateRepo)(nil)

// NewRedisOAuthStateRepo constructs a Redis-backed state repository.
func NewRedisOAuthStateRepo(client redis.UniversalClient) *RedisOAuthStateRepo {
	return &RedisOAuthStateRepo{client: client}
}

func stateKey(provider integration.Provider, state string) string {
	return stateKeyPrefix + string(provider) + ":" + state
}

// Insert stores the encoded state record with a TTL derived from ExpiresAt.
func (r *RedisOAuthStateRepo) Insert(ctx context.Context, rec integration.StateRecord) error {
	payload, err := json.Marshal(redisStateRecord{
		State:        rec.State,
		Provider:     string(rec.Provider),
		UserID:       rec.UserID,
		PKCEVerifier: rec.PKCEVerifier,
		CreatedAt:    rec.CreatedAt,
		ExpiresAt:    rec.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		// Keep an already-expired record briefly resolvable so its consumer
		// reports expired_state instead of invalid_state.
		ttl = time.Minute
	}
	if err := r.client.Set(ctx, stateKey(rec.Provider, rec.State), payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// Take removes and returns the record in one GETDEL round trip.
func (r *RedisOAuthStateRepo) Take(ctx context.Context, provider integration.Provider, state string) (*integration.StateRecord, error) {
	raw, err := r.client.GetDel(ctx, stateKey(provider, state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("take state: %w", err)
	}

	var stored redisStateRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &integration.StateRecord{
		State:        stored.State,
		Provider:     integration.Provider(stored.Provider),
		UserID:       stored.UserID,
		PKCEVerifier: stored.PKCEVerifier,
		CreatedAt:    stored.CreatedAt,
		ExpiresAt:    stored.ExpiresAt,
	}, nil
}

type redisStateRecord struct {
	State        string    `json:"state"`
	Provider     string    `json:"provider"`
	UserID       string    `json:"user_id"`
	PKCEVerifier string    `json:"pkce_verifier,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}
