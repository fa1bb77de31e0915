package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationLimiter_BurstThenWaits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cl := NewConversationLimiter(ctx, 0.001, 2)

	require.NoError(t, cl.Wait(ctx, "a"))
	require.NoError(t, cl.Wait(ctx, "a"))

	short, stop := context.WithTimeout(ctx, 20*time.Millisecond)
	defer stop()
	assert.Error(t, cl.Wait(short, "a"))

	// Conversations are paced independently.
	assert.NoError(t, cl.Wait(ctx, "b"))
	assert.Equal(t, 2, cl.Active())
}

func TestConversationLimiter_PrunesIdleConversations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cl := NewConversationLimiter(ctx, 10, 1)

	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	cl.now = func() time.Time { return now }
	require.NoError(t, cl.Wait(ctx, "old"))

	now = now.Add(limiterIdleTTL + time.Minute)
	require.NoError(t, cl.Wait(ctx, "fresh"))
	cl.prune()

	assert.Equal(t, 1, cl.Active())
}

func TestConversationLimiter_NilIsUnlimited(t *testing.T) {
	var cl *ConversationLimiter
	assert.NoError(t, cl.Wait(context.Background(), "a"))
}
