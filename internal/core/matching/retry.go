package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/agenthands/crosswalk/internal/config"
	"github.com/agenthands/crosswalk/internal/llm"
)

type RetryConfig struct {
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
	// CallTimeout bounds one whole invocation, retries included.
	CallTimeout time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       4,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        20 * time.Second,
		CallTimeout:       90 * time.Second,
	}
}

func RetryConfigFrom(cfg config.MatcherConfig) RetryConfig {
	rc := DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BackoffBase > 0 {
		rc.BackoffBase = cfg.BackoffBase
	}
	if cfg.Multiplier >= 1 {
		rc.BackoffMultiplier = cfg.Multiplier
	}
	if cfg.BackoffMax > 0 {
		rc.MaxBackoff = cfg.BackoffMax
	}
	if cfg.CallTimeout > 0 {
		rc.CallTimeout = cfg.CallTimeout
	}
	return rc
}

type retrier struct {
	cfg     RetryConfig
	onRetry func(err error, wait time.Duration)
}

// do runs op until it succeeds, fails fatally, or the attempt or time budget
// runs out. Cancellation of ctx is returned as is; every other failure is
// wrapped in ErrUnavailable.
func (r retrier) do(ctx context.Context, op func(ctx context.Context) error) error {
	callCtx := ctx
	if r.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.cfg.BackoffBase
	eb.Multiplier = r.cfg.BackoffMultiplier
	eb.MaxInterval = r.cfg.MaxBackoff
	eb.MaxElapsedTime = 0

	attempts := r.cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), callCtx)

	err := backoff.RetryNotify(func() error {
		err := op(callCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if llm.IsFatal(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		if r.onRetry != nil {
			r.onRetry(err, wait)
		}
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
