package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "claim:v1:"
	inProgress = "processing"
	done       = "done"
)

// Guard deduplicates operations keyed by an external reference. It stops
// redundant provider calls before they happen; the ledger's unique reference
// constraint remains the last line of defense for balance mutations.
type Guard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewGuard(client *redis.Client, ttl time.Duration) *Guard {
	return &Guard{client: client, ttl: ttl}
}

// TryClaim marks the reference as being processed. Returns false if another
// caller already claimed or completed it. The claim expires after the TTL so
// a crashed worker does not block the reference forever.
func (g *Guard) TryClaim(ctx context.Context, reference string) (bool, error) {
	return g.client.SetNX(ctx, keyPrefix+reference, inProgress, g.ttl).Result()
}

// Complete marks the reference as permanently processed.
func (g *Guard) Complete(ctx context.Context, reference string) error {
	return g.client.Set(ctx, keyPrefix+reference, done, 0).Err()
}

// Release frees the claim after a terminal failure so a legitimate retry is
// not blocked.
func (g *Guard) Release(ctx context.Context, reference string) error {
	return g.client.Del(ctx, keyPrefix+reference).Err()
}

// IsComplete reports whether the reference has been processed to completion.
func (g *Guard) IsComplete(ctx context.Context, reference string) (bool, error) {
	val, err := g.client.Get(ctx, keyPrefix+reference).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == done, nil
}
