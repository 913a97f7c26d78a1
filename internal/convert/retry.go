package convert

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/a3tai/facturx-bridge/internal/observability"
)

func defaultBackOff() backoff.BackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(250*time.Millisecond),
		backoff.WithMaxInterval(2*time.Second),
		backoff.WithMaxElapsedTime(0),
	)
}

// permanent reports whether err must not be retried
func permanent(err error) bool {
	if errors.Is(err, ErrInsufficientCredits) || errors.Is(err, context.Canceled) {
		return true
	}
	var de *DelegateError
	if errors.As(err, &de) {
		return !de.Temporary()
	}
	return false
}

// retry runs op up to retryAttempts+1 times, stopping on permanent errors
// and when ctx ends.
func (s *Service) retry(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.retryAttempts)), ctx)

	return backoff.RetryNotify(func() error {
		err := op(ctx)
		if err != nil && permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, next time.Duration) {
		s.metrics.ObserveRetry(operation)
		observability.FromContext(ctx).Warn("retrying collaborator call",
			zap.String("operation", operation),
			zap.Duration("next", next),
			zap.Error(err),
		)
	})
}
