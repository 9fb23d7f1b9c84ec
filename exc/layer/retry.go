package layer

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/fd1az/go-exc/exc"
	"golang.org/x/time/rate"
)

// RetryConfig bounds the Retry layer's exponential backoff.
type RetryConfig struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
}

// DefaultRetryConfig matches the reconnect supervisor's own backoff
// shape, applied here at request granularity instead of
// connection granularity.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 5, Initial: 200 * time.Millisecond, Max: 5 * time.Second}
}

// Retry re-issues Call while exc.Retryable(err, allowlist) holds, up to
// MaxAttempts, backing off exponentially with full jitter between
// attempts. limiter is the same bucket the stack's RateLimit layer
// draws from (pass nil to skip per-retry consumption, e.g. in tests that
// don't care about pacing): RateLimit sits above Retry in the canonical
// stack, so without this Retry's own re-attempts would never touch the
// rate limit after the first external call.
func Retry(cfg RetryConfig, allowlist exc.SemanticAllowList, limiter *rate.Limiter) exc.Layer {
	return func(inner exc.Service) exc.Service {
		return &retryService{inner: inner, cfg: cfg, allowlist: allowlist, limiter: limiter}
	}
}

type retryService struct {
	inner     exc.Service
	cfg       RetryConfig
	allowlist exc.SemanticAllowList
	limiter   *rate.Limiter
}

func (s *retryService) Ready(ctx context.Context) error {
	return s.inner.Ready(ctx)
}

func (s *retryService) Call(ctx context.Context, req exc.Request) (exc.Response, error) {
	var lastErr error

	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, s.cfg, attempt); err != nil {
				return exc.Response{}, err
			}
			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					return exc.Response{}, exc.NewTransientError(exc.CodeRateLimitExceeded, "retry rate limit wait", err)
				}
			}
			if err := s.inner.Ready(ctx); err != nil {
				return exc.Response{}, err
			}
		}

		resp, err := s.inner.Call(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if !exc.Retryable(err, s.allowlist) {
			return exc.Response{}, err
		}
	}

	return exc.Response{}, lastErr
}

func sleepBackoff(ctx context.Context, cfg RetryConfig, attempt int) error {
	d := time.Duration(float64(cfg.Initial) * math.Pow(2, float64(attempt-1)))
	if d > cfg.Max {
		d = cfg.Max
	}
	d = time.Duration(rand.Int63n(int64(d) + 1)) // full jitter

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
