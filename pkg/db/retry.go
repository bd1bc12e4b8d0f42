package db

import (
	"context"
	"time"

	"im-social/pkg/logger"
	"im-social/pkg/metrics"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryTransient runs op up to attempts times with exponential backoff.
// Only lock contention (IsTransient) is retried; any other error stops
// at once and is returned.
func RetryTransient(ctx context.Context, attempts int, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second

	operation := func() error {
		err := op()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		metrics.ReceiptRetries.Inc()
		logger.Debug("retrying after lock contention", zap.Duration("wait", wait), zap.Error(err))
	}

	return backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx),
		notify)
}
