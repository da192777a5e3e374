// File: internal/browser/retry_test.go
package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyDo(t *testing.T) {
	t.Run("succeeds once the operation reports done", func(t *testing.T) {
		p := Policy{Attempts: 5, Delay: time.Millisecond}
		calls := 0
		err := p.Do(context.Background(), func(ctx context.Context) (bool, error) {
			calls++
			return calls == 3, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausts the attempt budget", func(t *testing.T) {
		p := Policy{Attempts: 4, Delay: time.Millisecond}
		calls := 0
		err := p.Do(context.Background(), func(ctx context.Context) (bool, error) {
			calls++
			return false, nil
		})
		require.ErrorIs(t, err, ErrRetriesExhausted)
		assert.Equal(t, 4, calls)
	})

	t.Run("an operation error aborts immediately", func(t *testing.T) {
		p := Policy{Attempts: 5, Delay: time.Millisecond}
		boom := errors.New("boom")
		calls := 0
		err := p.Do(context.Background(), func(ctx context.Context) (bool, error) {
			calls++
			return false, boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancellation stops the loop between attempts", func(t *testing.T) {
		p := Policy{Attempts: 100, Delay: 50 * time.Millisecond}
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		err := p.Do(ctx, func(ctx context.Context) (bool, error) {
			calls++
			return false, nil
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Less(t, calls, 100)
	})

	t.Run("attempts below one still run once", func(t *testing.T) {
		p := Policy{}
		calls := 0
		err := p.Do(context.Background(), func(ctx context.Context) (bool, error) {
			calls++
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("per attempt timeout is applied", func(t *testing.T) {
		p := Policy{Attempts: 1, Timeout: 10 * time.Millisecond}
		err := p.Do(context.Background(), func(ctx context.Context) (bool, error) {
			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 5*time.Millisecond)
			return true, nil
		})
		require.NoError(t, err)
	})
}
