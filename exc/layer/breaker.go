package layer

import (
	"context"

	"github.com/fd1az/go-exc/exc"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig tunes the circuit breaker sitting between Buffer and
// Reconnect: repeated transport/protocol failures trip it, short-
// circuiting further calls with CodeCircuitOpen instead of piling onto a
// connection that is already failing.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	ConsecutiveTrips uint32
}

// DefaultBreakerConfig trips after 5 consecutive failures and allows a
// single trial request once half-open.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{Name: name, MaxRequests: 1, ConsecutiveTrips: 5}
}

// Breaker wraps gobreaker/v2 as an exc.Layer.
func Breaker(cfg BreakerConfig) exc.Layer {
	return func(inner exc.Service) exc.Service {
		cb := gobreaker.NewCircuitBreaker[exc.Response](gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: cfg.MaxRequests,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.ConsecutiveTrips
			},
		})
		return &breakerService{inner: inner, cb: cb}
	}
}

type breakerService struct {
	inner exc.Service
	cb    *gobreaker.CircuitBreaker[exc.Response]
}

func (s *breakerService) Ready(ctx context.Context) error {
	if s.cb.State() == gobreaker.StateOpen {
		return exc.NewTransientError(exc.CodeCircuitOpen, "breaker open", nil)
	}
	return s.inner.Ready(ctx)
}

func (s *breakerService) Call(ctx context.Context, req exc.Request) (exc.Response, error) {
	return s.cb.Execute(func() (exc.Response, error) {
		return s.inner.Call(ctx, req)
	})
}
