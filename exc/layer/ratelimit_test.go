package layer

import (
	"context"
	"testing"
	"time"

	"github.com/fd1az/go-exc/exc"
)

func TestRateLimitAllowsBurstThenBlocks(t *testing.T) {
	inner := &fakeService{}
	cfg := exc.RateLimit{N: 2, Window: time.Second}
	svc := RateLimit(cfg)(inner)

	// Burst of 2 should pass immediately.
	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		if err := svc.Ready(ctx); err != nil {
			t.Fatalf("burst call %d: unexpected error %v", i, err)
		}
		cancel()
	}

	// The third Ready within the window should not be immediately ready.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := svc.Ready(ctx)
	if err == nil {
		t.Fatal("expected rate limit to block the third call within the burst window")
	}
}

func TestRateLimitRecoversAfterWindow(t *testing.T) {
	inner := &fakeService{}
	cfg := exc.RateLimit{N: 1, Window: 20 * time.Millisecond}
	svc := RateLimit(cfg)(inner)

	if err := svc.Ready(context.Background()); err != nil {
		t.Fatalf("first call: unexpected error %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := svc.Ready(ctx); err != nil {
		t.Fatalf("expected token to refill after window elapses, got %v", err)
	}
}
