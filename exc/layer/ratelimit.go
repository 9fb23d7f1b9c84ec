// Package layer implements the orthogonal Service decorators of the
// canonical stack: Adaptor → RateLimit → Retry → Timeout →
// Buffer → Breaker → Reconnect → Multiplexer. Each file in this package
// is one Layer, composed via exc.Stack in the order the venue builder
// chooses.
package layer

import (
	"context"

	"github.com/fd1az/go-exc/exc"
	"golang.org/x/time/rate"
)

// NewLimiter builds the token bucket a RateLimit layer gates on. Exported
// so a venue builder can construct one limiter and share it with both
// RateLimit and Retry (see RateLimitWithLimiter and Retry's limiter
// parameter) — Retry draws from the same bucket on each retry attempt
// instead of only the outermost Ready call ever touching it.
func NewLimiter(cfg exc.RateLimit) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(float64(cfg.N))/rate.Limit(cfg.Window.Seconds()), cfg.N)
}

// RateLimit wraps golang.org/x/time/rate the same way internal/ratelimit
// does for the REST client, but as an exc.Layer: Ready blocks for a
// token instead of Call itself, so a caller that never calls Ready
// (streaming subscribe, which admits once) is unaffected.
func RateLimit(cfg exc.RateLimit) exc.Layer {
	return RateLimitWithLimiter(NewLimiter(cfg))
}

// RateLimitWithLimiter wraps a pre-built limiter instead of one derived
// from cfg, so the caller can hand the same instance to Retry.
func RateLimitWithLimiter(limiter *rate.Limiter) exc.Layer {
	return func(inner exc.Service) exc.Service {
		return &rateLimitService{inner: inner, limiter: limiter}
	}
}

type rateLimitService struct {
	inner   exc.Service
	limiter *rate.Limiter
}

func (s *rateLimitService) Ready(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return exc.NewTransientError(exc.CodeRateLimitExceeded, "rate limit wait", err)
	}
	return s.inner.Ready(ctx)
}

func (s *rateLimitService) Call(ctx context.Context, req exc.Request) (exc.Response, error) {
	return s.inner.Call(ctx, req)
}
