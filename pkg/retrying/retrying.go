package retrying

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/comptoirhq/comptoir/pkg/errorbank"
)

// Policy bounds the retry behavior applied to transient remote failures.
type Policy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy is used when no policy is configured.
var DefaultPolicy = Policy{
	MaxAttempts:     3,
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     2 * time.Second,
}

// Do runs op, retrying transient failures with exponential backoff until the
// attempt budget is spent. Non-transient errors abort immediately. A timeout is
// treated like any other transport error: it never means the operation did not
// happen, so op must be idempotent.
func Do(ctx context.Context, policy Policy, op func(context.Context) error) error {
	if policy.MaxAttempts == 0 {
		policy = DefaultPolicy
	}

	exp := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		exp.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		exp.MaxInterval = policy.MaxInterval
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(exp, policy.MaxAttempts-1), ctx)

	err := backoff.Retry(func() error {
		if err := op(ctx); err != nil {
			if Transient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}, bo)

	if err != nil && Transient(err) {
		return errorbank.Unavailable("remote operation failed after retries", errorbank.WithCause(err))
	}
	return err
}

// Transient reports whether err looks like a transport-level failure worth
// retrying: timeouts, dropped connections, or anything already classified as
// unavailable.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errorbank.IsKind(err, errorbank.KindUnavailable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
