package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Dosada05/track-bracket/metrics"
	"github.com/Dosada05/track-bracket/repositories"
)

// retrier runs a storage operation and repeats it once after a short backoff
// when the repository reports ErrTransient. Other errors are returned at once.
type retrier struct {
	initialInterval time.Duration
	metrics         metrics.Recorder
	logger          *slog.Logger
}

func (r retrier) do(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 {
			r.metrics.StorageRetry(op)
			r.logger.Warn("retrying storage operation", slog.String("operation", op), slog.Int("attempt", attempt))
		}
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, repositories.ErrTransient) {
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	b.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, 1), ctx))
	return mapRepoError(err)
}
