package ledger_engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/banking-ledger-engine/internal/domain/shared"
)

func (e *Engine) newBackOff(ctx context.Context, attempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.RetryBaseDelay
	b.MaxInterval = e.cfg.RetryMaxDelay
	b.MaxElapsedTime = 0 // bounded by attempts and ctx instead
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// withRetry runs op until it succeeds, fails with anything other than a lost
// conditional write, runs out of attempts or ctx is done
func withRetry[T any](ctx context.Context, e *Engine, logger *slog.Logger, name string, op func() (T, error)) (T, error) {
	attempt := 0
	return backoff.RetryNotifyWithData(
		func() (T, error) {
			attempt++
			res, err := op()
			if err != nil && shared.KindOf(err) != shared.KindConditionFailed {
				return res, backoff.Permanent(err)
			}
			return res, err
		},
		e.newBackOff(ctx, e.cfg.RetryMaxAttempts),
		func(err error, next time.Duration) {
			logger.Debug("Retrying ledger operation after lost race",
				"operation", name,
				"attempt", attempt,
				"next_delay", next.String(),
				"error", err,
			)
		},
	)
}

// retryTransient retries a compensation step while the store is unavailable.
// Any other failure ends the step immediately.
func (e *Engine) retryTransient(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err != nil && shared.KindOf(err) != shared.KindStoreUnavailable {
			return backoff.Permanent(err)
		}
		return err
	}, e.newBackOff(ctx, e.cfg.RetryMaxAttempts))
}
