package pipeline

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// EncodeLimiter caps the number of encoder processes running at once across
// every worker sharing it. A nil limiter does not limit.
type EncodeLimiter struct {
	sem *semaphore.Weighted
}

func NewEncodeLimiter(max int64) *EncodeLimiter {
	if max <= 0 {
		return nil
	}
	return &EncodeLimiter{sem: semaphore.NewWeighted(max)}
}

// Do runs fn while holding one encode slot.
func (l *EncodeLimiter) Do(ctx context.Context, fn func() error) error {
	if l == nil {
		return fn()
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)
	return fn()
}
