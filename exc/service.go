package exc

import "context"

// Service is the two-operation contract every layer preserves:
// Ready must be called and must succeed before each Call; a layer may
// make Ready block or fail to exert backpressure (a full rate-limit
// bucket, a tripped breaker, a reconnecting transport).
type Service interface {
	Ready(ctx context.Context) error
	Call(ctx context.Context, req Request) (Response, error)
}

// Layer decorates an inner Service with one orthogonal policy, preserving
// the Service contract. The canonical stack (outermost first) is
// Adaptor → RateLimit → Retry → Timeout → Buffer → Breaker → Reconnect →
// Multiplexer.
type Layer func(inner Service) Service

// Stack applies layers inner-to-outer, so Stack(base, A, B, C) returns
// C(B(A(base))) — A is applied first and therefore sits innermost.
func Stack(base Service, layers ...Layer) Service {
	svc := base
	for _, l := range layers {
		svc = l(svc)
	}
	return svc
}

// ServiceFunc adapts a plain call function into a Service whose Ready
// always succeeds — useful for the innermost adaptor-facing shim that has
// no backpressure of its own to contribute.
type ServiceFunc func(ctx context.Context, req Request) (Response, error)

func (f ServiceFunc) Ready(ctx context.Context) error { return nil }
func (f ServiceFunc) Call(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
