package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRefundAfterBurstOfRefundableFailures is spec.md §8's rate-limiter
// refund property: after `burst = capacity` failed refundable requests,
// available tokens equal capacity.
func TestRefundAfterBurstOfRefundableFailures(t *testing.T) {
	l := New(5, 0)
	defer l.Stop()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(ctx, 0))
	}
	assert.Equal(t, 0, l.Available())

	for i := 0; i < 5; i++ {
		l.Refund()
	}
	assert.Equal(t, 5, l.Available())
}

func TestNonRefundableFailuresLeaveBucketEmpty(t *testing.T) {
	l := New(3, 0)
	defer l.Stop()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx, 0))
	}
	assert.Equal(t, 0, l.Available())
	// Non-refundable: nothing returns the token.
	assert.Equal(t, 0, l.Available())
}

func TestAcquireRespectsDeadline(t *testing.T) {
	l := New(1, 0)
	defer l.Stop()
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, 0))
	err := l.Acquire(ctx, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquireIsFIFO(t *testing.T) {
	l := New(1, 0)
	defer l.Stop()
	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, 0))

	order := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		go func() {
			_ = l.Acquire(ctx, 2*time.Second)
			order <- i
		}()
		time.Sleep(10 * time.Millisecond) // force queue order deterministically
	}
	l.Refund()
	first := <-order
	assert.Equal(t, 0, first)
}

func TestRefillLoopRestoresCapacity(t *testing.T) {
	l := New(2, 15*time.Millisecond)
	defer l.Stop()
	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, 0))
	require.NoError(t, l.Acquire(ctx, 0))
	assert.Equal(t, 0, l.Available())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 2, l.Available())
}
