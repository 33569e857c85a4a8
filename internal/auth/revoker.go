package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "deskhop:revoked:"

// Revoker records revoked token IDs so that logout invalidates the
// access token before its natural expiry. A nil *Revoker is valid and
// revokes nothing, letting deployments run without Redis.
type Revoker struct {
	client *redis.Client
}

// NewRevoker creates a revoker backed by the given Redis client.
func NewRevoker(client *redis.Client) *Revoker {
	return &Revoker{client: client}
}

// Revoke marks a token ID as revoked until its expiry time.
func (r *Revoker) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if r == nil || r.client == nil {
		return nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, revokedKeyPrefix+jti, "1", ttl).Err()
}

// IsRevoked reports whether the token ID has been revoked. Lookup
// errors are treated as not revoked so a Redis outage does not lock
// every user out.
func (r *Revoker) IsRevoked(ctx context.Context, jti string) bool {
	if r == nil || r.client == nil {
		return false
	}
	n, err := r.client.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false
	}
	return n > 0
}
