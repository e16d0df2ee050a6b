package utils

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// WithRetriesTimeout uses an exponential backoff to run the operation until it
// succeeds or timeout limit has been reached. Errors wrapped with
// backoff.Permanent stop the retries immediately.
func WithRetriesTimeout(
	logger *zap.Logger,
	operation backoff.Operation,
	timeout time.Duration,
) error {
	expBackOff := backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(timeout),
	)
	notify := func(err error, duration time.Duration) {
		logger.Warn(
			"operation failed, retrying...",
			zap.Duration("backoff", duration),
			zap.Error(err),
		)
	}
	err := backoff.RetryNotify(operation, expBackOff, notify)
	return err
}
