package infrastructure

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterCleanupTick = 5 * time.Minute
	limiterIdleTTL     = 10 * time.Minute
)

// ConversationLimiter paces outbound activities per conversation so a burst
// of replies stays under the connector's per-conversation throttle.
type ConversationLimiter struct {
	mu       sync.Mutex
	limiters map[string]*conversationBucket
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

type conversationBucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewConversationLimiter allows perSecond activities per conversation with
// the given burst. Stale conversations are dropped until ctx is done.
func NewConversationLimiter(ctx context.Context, perSecond float64, burst int) *ConversationLimiter {
	if burst < 1 {
		burst = 1
	}
	cl := &ConversationLimiter{
		limiters: make(map[string]*conversationBucket),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
	go cl.cleanup(ctx)
	return cl
}

// Wait blocks until the conversation may send, or ctx ends.
func (cl *ConversationLimiter) Wait(ctx context.Context, conversationID string) error {
	if cl == nil {
		return nil
	}
	return cl.bucket(conversationID).Wait(ctx)
}

func (cl *ConversationLimiter) bucket(conversationID string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	b, ok := cl.limiters[conversationID]
	if !ok {
		b = &conversationBucket{limiter: rate.NewLimiter(cl.limit, cl.burst)}
		cl.limiters[conversationID] = b
	}
	b.lastUsed = cl.now()
	return b.limiter
}

// Active returns the number of conversations currently tracked.
func (cl *ConversationLimiter) Active() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.limiters)
}

func (cl *ConversationLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(limiterCleanupTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cl.prune()
		}
	}
}

func (cl *ConversationLimiter) prune() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cutoff := cl.now().Add(-limiterIdleTTL)
	for id, b := range cl.limiters {
		if b.lastUsed.Before(cutoff) {
			delete(cl.limiters, id)
		}
	}
}
