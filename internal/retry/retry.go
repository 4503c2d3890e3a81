// Package retry runs store and network calls under a per-attempt timeout with
// a bounded number of attempts and linear backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// ErrTimeout is returned when a single attempt exceeds Policy.Timeout.
var ErrTimeout = errors.New("connection timeout")

type Policy struct {
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
	// Retryable reports whether err deserves another attempt. nil retries everything.
	Retryable func(error) bool
}

func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Delay: time.Second, Timeout: 30 * time.Second}
}

// linear waits delay*n before the n-th retry.
func linear(delay time.Duration) goretry.Backoff {
	var n int64
	return goretry.BackoffFunc(func() (time.Duration, bool) {
		n++
		return time.Duration(n) * delay, false
	})
}

// Do runs op until it succeeds, returns a non-retryable error, or the attempts
// are used up. The last error is returned on exhaustion.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := goretry.WithMaxRetries(uint64(attempts-1), linear(p.Delay))

	return goretry.Do(ctx, backoff, func(ctx context.Context) error {
		err := attempt(ctx, p.Timeout, op)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		return goretry.RetryableError(err)
	})
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func attempt(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	if timeout <= 0 {
		return op(ctx)
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := op(opCtx)
	if err != nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}
