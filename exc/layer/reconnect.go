package layer

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/go-exc/exc"
)

const reconnectTracerName = "github.com/fd1az/go-exc/exc/layer"

// Connector builds one connected generation of the innermost service —
// dial the transport, run the multiplexer, wrap it in the venue adaptor
// — and reports back a channel that closes when that generation dies.
// A venue's service builder supplies this; Reconnect owns only the
// dial/backoff/replay loop around it.
type Connector interface {
	Connect(ctx context.Context) (svc exc.Service, dead <-chan struct{}, err error)
}

// Reconnect sits directly above the multiplexer in the canonical stack.
// Unlike the other layers it does not decorate a fixed inner Service —
// there is no fixed inner, since a fresh Channel+Mux is built on every
// reconnect — so it is constructed directly rather than via exc.Layer.
type Reconnect struct {
	connector Connector
	backoff   exc.ReconnectBackoff

	mu      sync.RWMutex
	current exc.Service
	readyCh chan struct{}
	lastErr error

	tracer trace.Tracer
}

// NewReconnect builds a Reconnect service and starts its connect loop.
// ctx bounds the loop's lifetime; canceling it stops all future
// reconnect attempts (in-flight calls still fail with ctx.Err()).
func NewReconnect(ctx context.Context, connector Connector, backoff exc.ReconnectBackoff) *Reconnect {
	r := &Reconnect{
		connector: connector,
		backoff:   backoff,
		readyCh:   make(chan struct{}),
		tracer:    otel.Tracer(reconnectTracerName),
	}
	go r.run(ctx)
	return r
}

func (r *Reconnect) run(ctx context.Context) {
	attempt := 0
	delay := r.backoff.Initial

	for {
		if ctx.Err() != nil {
			return
		}

		svc, dead, err := r.connector.Connect(ctx)
		if err != nil {
			r.recordFailure(ctx, attempt, delay, err)
			attempt++
			if !r.sleep(ctx, delay) {
				return
			}
			delay = nextBackoff(delay, r.backoff)
			continue
		}

		attempt = 0
		delay = r.backoff.Initial
		r.publish(svc, nil)

		select {
		case <-dead:
			// Connection lost: stop admitting calls to the dead
			// generation, then fall through and reconnect. Durable
			// subscription replay is the connector's responsibility —
			// it reads the previous generation's Mux.Durable() before
			// tearing down and resubscribes after the new one is live.
			r.publish(nil, exc.NewTransientError(exc.CodeReconnecting, "connection lost", nil))
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reconnect) recordFailure(ctx context.Context, attempt int, delay time.Duration, err error) {
	_, span := r.tracer.Start(ctx, "reconnect.attempt_failed",
		trace.WithAttributes(
			attribute.Int("exc.reconnect.attempt", attempt),
			attribute.String("exc.reconnect.backoff", delay.String()),
		))
	span.RecordError(err)
	span.SetStatus(codes.Error, "connect failed")
	span.End()

	r.publish(nil, exc.NewTransientError(exc.CodeReconnecting, "reconnecting", err))
}

func (r *Reconnect) publish(svc exc.Service, err error) {
	r.mu.Lock()
	r.current = svc
	r.lastErr = err
	old := r.readyCh
	r.readyCh = make(chan struct{})
	ready := r.readyCh
	r.mu.Unlock()

	if svc != nil {
		close(ready)
	}
	select {
	case <-old:
	default:
		close(old)
	}
}

// sleep waits out one backoff interval d plus a random jitter of up to
// d*backoff.Jitter. Returns false if ctx ended first.
func (r *Reconnect) sleep(ctx context.Context, d time.Duration) bool {
	jitter := time.Duration(rand.Int63n(int64(float64(d)*r.backoff.Jitter) + 1))
	select {
	case <-time.After(d + jitter):
		return true
	case <-ctx.Done():
		return false
	}
}

func nextBackoff(cur time.Duration, cfg exc.ReconnectBackoff) time.Duration {
	next := cur * 2
	if next > cfg.Max {
		next = cfg.Max
	}
	return next
}

// Ready blocks until a connection generation is live, or ctx ends.
func (r *Reconnect) Ready(ctx context.Context) error {
	r.mu.RLock()
	svc, readyCh := r.current, r.readyCh
	r.mu.RUnlock()

	if svc != nil {
		return nil
	}

	select {
	case <-readyCh:
		return r.Ready(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call delegates to whichever generation is currently live, blocking
// for one to become ready first if a reconnect is in flight.
func (r *Reconnect) Call(ctx context.Context, req exc.Request) (exc.Response, error) {
	r.mu.RLock()
	svc := r.current
	r.mu.RUnlock()

	if svc == nil {
		if err := r.Ready(ctx); err != nil {
			return exc.Response{}, err
		}
		r.mu.RLock()
		svc = r.current
		r.mu.RUnlock()
	}

	return svc.Call(ctx, req)
}
