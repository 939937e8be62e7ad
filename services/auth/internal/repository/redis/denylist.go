package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "pidrive:denylist:"

// minTTL keeps an entry alive for tokens that expire within clock skew of
// the logout.
const minTTL = time.Second

// Denylist records access token ids revoked before their natural expiry.
// Each entry expires together with the token it blocks.
type Denylist struct {
	client *redis.Client
	now    func() time.Time
}

// NewDenylist creates a Redis-backed access token denylist.
func NewDenylist(client *redis.Client) *Denylist {
	return &Denylist{client: client, now: time.Now}
}

// Deny blocks tokenID until the given time.
func (d *Denylist) Deny(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(d.now())
	if ttl < minTTL {
		ttl = minTTL
	}

	if err := d.client.Set(ctx, keyPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set denylist entry: %w", err)
	}
	return nil
}

// IsDenied reports whether tokenID has been denied.
func (d *Denylist) IsDenied(ctx context.Context, tokenID string) (bool, error) {
	err := d.client.Get(ctx, keyPrefix+tokenID).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get denylist entry: %w", err)
	}
	return true, nil
}

// Ping checks the connection for readiness probes.
func (d *Denylist) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}
