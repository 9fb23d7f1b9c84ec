package layer

import (
	"context"
	"time"

	"github.com/fd1az/go-exc/exc"
)

// Timeout bounds each Call (not Ready — a blocked Ready is backpressure,
// not a stuck call) with a fixed deadline, surfacing the venue's
// ServiceTimeout code on expiry.
func Timeout(d time.Duration) exc.Layer {
	return func(inner exc.Service) exc.Service {
		return &timeoutService{inner: inner, d: d}
	}
}

type timeoutService struct {
	inner exc.Service
	d     time.Duration
}

func (s *timeoutService) Ready(ctx context.Context) error {
	return s.inner.Ready(ctx)
}

func (s *timeoutService) Call(ctx context.Context, req exc.Request) (exc.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()

	resp, err := s.inner.Call(ctx, req)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return exc.Response{}, exc.NewTransientError(exc.CodeServiceTimeout, "call exceeded timeout", err)
	}
	return resp, err
}
