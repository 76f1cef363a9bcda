package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// DefaultAttempts is the submission retry cap used across the executor and
// monitor stages.
const DefaultAttempts = 3

// ErrWaitTimeout is returned by WaitFor when the condition never held within
// the timeout.
var ErrWaitTimeout = errors.New("wait timed out")

// Do runs fn up to attempts times, sleeping baseDelay, 2*baseDelay,
// 4*baseDelay ... between attempts. Only transient errors are retried; a
// terminal error or context cancellation returns immediately.
func Do(ctx context.Context, attempts int, baseDelay time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := baseDelay
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("retries exhausted after %d attempts: %w", attempts, err)
}

// WaitFor polls cond every interval until it reports done, the timeout
// elapses, or ctx is cancelled. Cancellation unblocks the wait immediately,
// not at the next tick.
func WaitFor(ctx context.Context, interval, timeout time.Duration, cond func(ctx context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// check once before the first tick
	done, err := cond(ctx)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrWaitTimeout
			}
			return ctx.Err()
		case <-ticker.C:
			done, err := cond(ctx)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

// transientError marks an error as explicitly retryable.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so Do will retry it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient classifies err for retry purposes. Context cancellation is
// always terminal; network timeouts and the usual RPC overload signatures are
// transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var marked *transientError
	if errors.As(err, &marked) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, token := range terminalTokens {
		if strings.Contains(msg, token) {
			return false
		}
	}
	for _, token := range transientTokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

var transientTokens = []string{
	"timeout",
	"timed out",
	"temporar",
	"unavailable",
	"connection reset",
	"connection refused",
	"broken pipe",
	"too many requests",
	"rate limit",
	"502",
	"503",
	"504",
}

var terminalTokens = []string{
	"execution reverted",
	"insufficient funds",
	"invalid argument",
	"invalid params",
	"nonce too low",
	"method not found",
}
