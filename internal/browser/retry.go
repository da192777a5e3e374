// File: internal/browser/retry.go
package browser

import (
	"context"
	"time"
)

// Policy bounds a retried page operation: at most Attempts tries, Delay
// between them, and Timeout applied per attempt.
type Policy struct {
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
}

// DefaultClassifyPolicy matches the login flow's read-classify loop.
func DefaultClassifyPolicy() Policy {
	return Policy{Attempts: 5, Delay: 500 * time.Millisecond, Timeout: 5 * time.Second}
}

// Do runs fn until it reports done, the attempt budget is exhausted, or the
// parent context ends. fn receives a per-attempt deadline context. A non-nil
// error from fn aborts immediately; running out of attempts returns
// ErrRetriesExhausted.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) (done bool, err error)) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if p.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		done, err := fn(attemptCtx)
		cancel()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if i < attempts-1 && p.Delay > 0 {
			select {
			case <-time.After(p.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return ErrRetriesExhausted
}
