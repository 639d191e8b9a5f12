package provider

import (
	"context"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"go.uber.org/zap"
)

const (
	initialRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 8 * time.Second
)

// CompleteWithRetry calls the provider with exponential backoff and jitter.
// Only rate-limit and unavailability errors are retried; invalid requests
// and timeouts fail immediately.
func CompleteWithRetry(ctx context.Context, p Provider, req Request, maxRetries int, log *zap.Logger) (Response, error) {
	if log == nil {
		log = zap.NewNop()
	}
	attempts := uint(maxRetries) + 1

	var resp Response
	err := retry.Do(
		func() error {
			var err error
			resp, err = p.Complete(ctx, req)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.Delay(initialRetryDelay),
		retry.MaxDelay(maxRetryDelay),
		retry.RetryIf(IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("provider call retrying",
				zap.String("provider", p.Name()),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
		retry.LastErrorOnly(true),
	)
	return resp, err
}
