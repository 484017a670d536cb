package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/repository"
	"github.com/ghazaziz76/data-scraper/pkg/metrics"
	"github.com/ghazaziz76/data-scraper/pkg/utils"
)

// RetryPolicy bounds the retries of transient failures.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	RetryAfterCap time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     time.Second,
		MaxDelay:      30 * time.Second,
		RetryAfterCap: 2 * time.Minute,
	}
}

// Fetcher applies rate limiting and retries around a transport. One Fetcher
// is built per job run so its spacing and limiter are scoped to that run.
type Fetcher struct {
	transport repository.DocumentFetcher
	limiter   repository.HostLimiter
	spacing   time.Duration
	policy    RetryPolicy
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func New(
	transport repository.DocumentFetcher,
	limiter repository.HostLimiter,
	spacing time.Duration,
	policy RetryPolicy,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Fetcher {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Fetcher{
		transport: transport,
		limiter:   limiter,
		spacing:   spacing,
		policy:    policy,
		logger:    logger,
		metrics:   m,
	}
}

func (f *Fetcher) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.policy.BaseDelay
	b.Multiplier = 2
	b.MaxInterval = f.policy.MaxDelay
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Fetch retrieves target, waiting on the rate limiter before every attempt.
// Transient failures are retried up to MaxAttempts; permanent ones return at once.
func (f *Fetcher) Fetch(ctx context.Context, target entity.FetchTarget) (*entity.RawDocument, error) {
	host := utils.Host(target.URL)
	bo := f.newBackOff()

	var lastErr error
	for attempt := 1; attempt <= f.policy.MaxAttempts; attempt++ {
		if err := f.limiter.Wait(ctx, host, f.spacing); err != nil {
			return nil, err
		}

		start := time.Now()
		doc, err := f.transport.Fetch(ctx, target)
		elapsed := time.Since(start).Seconds()
		if err == nil {
			f.metrics.ObserveFetch(host, "success", elapsed)
			return doc, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		var fe *repository.FetchError
		if !errors.As(err, &fe) {
			fe = TransportError(target.URL, err)
			err = fe
		}
		if !fe.Transient {
			f.metrics.ObserveFetch(host, "permanent", elapsed)
			f.logger.Warn("fetch failed permanently",
				zap.String("url", target.URL), zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}
		f.metrics.ObserveFetch(host, "transient", elapsed)
		lastErr = err
		if attempt == f.policy.MaxAttempts {
			break
		}

		delay := bo.NextBackOff()
		if fe.RetryAfter > 0 {
			delay = fe.RetryAfter
			if f.policy.RetryAfterCap > 0 && delay > f.policy.RetryAfterCap {
				delay = f.policy.RetryAfterCap
			}
		}
		f.logger.Warn("transient fetch failure, retrying",
			zap.String("url", target.URL), zap.Int("attempt", attempt),
			zap.Duration("delay", delay), zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", f.policy.MaxAttempts, lastErr)
}
