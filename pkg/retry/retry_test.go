package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRetriesTransientErrors(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), 3, time.Millisecond, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return Transient(errors.New("flaky"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnTerminalError(t *testing.T) {
	attempts := 0
	terminal := errors.New("execution reverted")
	err := Do(context.Background(), 3, time.Millisecond, func(context.Context) error {
		attempts++
		return terminal
	})
	require.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, attempts)
}

func TestDoExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), 3, time.Millisecond, func(context.Context) error {
		attempts++
		return Transient(errors.New("still down"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "retries exhausted")
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, 3, 10*time.Second, func(context.Context) error {
		return Transient(errors.New("flaky"))
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestWaitForReturnsImmediatelyWhenConditionHolds(t *testing.T) {
	start := time.Now()
	err := WaitFor(context.Background(), time.Hour, time.Hour, func(context.Context) (bool, error) {
		return true, nil
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitForTimesOut(t *testing.T) {
	err := WaitFor(context.Background(), 5*time.Millisecond, 30*time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})
	require.ErrorIs(t, err, ErrWaitTimeout)
}

func TestWaitForUnblocksOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := WaitFor(ctx, time.Hour, time.Hour, func(context.Context) (bool, error) {
		return false, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitForPropagatesConditionError(t *testing.T) {
	boom := errors.New("boom")
	err := WaitFor(context.Background(), time.Millisecond, time.Second, func(context.Context) (bool, error) {
		return false, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"marked transient", Transient(errors.New("whatever")), true},
		{"cancellation", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"rpc timeout", errors.New("request timed out"), true},
		{"rate limited", errors.New("429 too many requests"), true},
		{"connection reset", fmt.Errorf("read: %w", errors.New("connection reset by peer")), true},
		{"reverted", errors.New("execution reverted: paused"), false},
		{"nonce too low", errors.New("nonce too low"), false},
		// terminal signatures win even when a transient token also matches
		{"reverted after timeout", errors.New("execution reverted after timeout"), false},
		{"unclassified", errors.New("something odd"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}
