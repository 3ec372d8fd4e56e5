package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGuard(t *testing.T) (*Guard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewGuard(client, time.Minute), mr
}

func TestTryClaim(t *testing.T) {
	guard, _ := newTestGuard(t)
	ctx := context.Background()

	claimed, err := guard.TryClaim(ctx, "ref1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = guard.TryClaim(ctx, "ref1")
	require.NoError(t, err)
	assert.False(t, claimed, "second claim on the same reference must fail")

	claimed, err = guard.TryClaim(ctx, "ref2")
	require.NoError(t, err)
	assert.True(t, claimed, "a different reference is independent")
}

func TestConcurrentClaims(t *testing.T) {
	guard, _ := newTestGuard(t)
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	results := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := guard.TryClaim(ctx, "hot-ref")
			require.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for ok := range results {
		if ok {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestReleaseAllowsRetry(t *testing.T) {
	guard, _ := newTestGuard(t)
	ctx := context.Background()

	claimed, _ := guard.TryClaim(ctx, "ref1")
	require.True(t, claimed)

	require.NoError(t, guard.Release(ctx, "ref1"))

	claimed, err := guard.TryClaim(ctx, "ref1")
	require.NoError(t, err)
	assert.True(t, claimed, "released reference must be claimable again")
}

func TestCompleteIsPermanent(t *testing.T) {
	guard, mr := newTestGuard(t)
	ctx := context.Background()

	claimed, _ := guard.TryClaim(ctx, "ref1")
	require.True(t, claimed)
	require.NoError(t, guard.Complete(ctx, "ref1"))

	// even after the claim TTL would have expired, the completion holds
	mr.FastForward(2 * time.Minute)

	claimed, err := guard.TryClaim(ctx, "ref1")
	require.NoError(t, err)
	assert.False(t, claimed)

	complete, err := guard.IsComplete(ctx, "ref1")
	require.NoError(t, err)
	assert.True(t, complete)
}

func TestClaimExpires(t *testing.T) {
	guard, mr := newTestGuard(t)
	ctx := context.Background()

	claimed, _ := guard.TryClaim(ctx, "ref1")
	require.True(t, claimed)

	// a crashed worker's claim lapses after the TTL
	mr.FastForward(2 * time.Minute)

	claimed, err := guard.TryClaim(ctx, "ref1")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestIsCompleteUnknownReference(t *testing.T) {
	guard, _ := newTestGuard(t)
	complete, err := guard.IsComplete(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, complete)
}
