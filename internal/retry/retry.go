package retry

import (
	"context"
	"math/rand"
	"time"
)

// Options controls the backoff schedule.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
	OnRetry     func(attempt int, err error)
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 10 * time.Second
	}
	if o.Jitter < 0 {
		o.Jitter = 0
	}
	return o
}

// Do runs fn until it succeeds or attempts are exhausted, sleeping an
// exponentially growing, jittered delay between attempts. The context
// cancels the wait; the last error is returned.
func Do(ctx context.Context, fn func(ctx context.Context) error, opts Options) error {
	opts = opts.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == opts.MaxAttempts {
			break
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, lastErr)
		}

		delay := opts.BaseDelay << (attempt - 1)
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
		if opts.Jitter > 0 {
			spread := float64(delay) * opts.Jitter
			delay += time.Duration((rand.Float64()*2 - 1) * spread)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
