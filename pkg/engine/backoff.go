package engine

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	BackoffBase = 500 * time.Millisecond
	BackoffCap  = 8 * time.Second
)

// Backoff returns the wait before the n-th retry of an item:
// min(BackoffBase * 2^(n-1), BackoffCap). n below 1 is treated as 1.
func Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	// the sequence is pinned at the cap long before this
	if n > 16 {
		n = 16
	}
	b := retry.WithCappedDuration(BackoffCap, retry.NewExponential(BackoffBase))
	var d time.Duration
	for i := 0; i < n; i++ {
		d, _ = b.Next()
	}
	return d
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
