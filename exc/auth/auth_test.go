package auth

import (
	"context"
	"testing"
	"time"
)

func TestSignHexAndSignBase64Differ(t *testing.T) {
	hex := SignHex("secret", "payload")
	b64 := SignBase64("secret", "payload")

	if hex == "" || b64 == "" {
		t.Fatal("expected non-empty signatures")
	}
	if hex == b64 {
		t.Fatal("hex and base64 encodings of the same MAC should not collide")
	}

	// Deterministic: same secret+payload always signs the same way.
	if SignHex("secret", "payload") != hex {
		t.Fatal("SignHex is not deterministic")
	}
	if SignBase64("secret", "payload") != b64 {
		t.Fatal("SignBase64 is not deterministic")
	}
}

func TestGatePublicReadyImmediately(t *testing.T) {
	g := NewGate(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := g.Ready(ctx); err != nil {
		t.Fatalf("public gate should be ready immediately, got %v", err)
	}
}

func TestGatePrivateBlocksUntilResolve(t *testing.T) {
	g := NewGate(true)

	readyErr := make(chan error, 1)
	go func() {
		readyErr <- g.Ready(context.Background())
	}()

	select {
	case <-readyErr:
		t.Fatal("private gate resolved before Resolve was called")
	case <-time.After(10 * time.Millisecond):
	}

	g.Resolve(nil)

	select {
	case err := <-readyErr:
		if err != nil {
			t.Fatalf("expected nil error after Resolve(nil), got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Ready did not unblock after Resolve")
	}
}

func TestGateResolveCarriesError(t *testing.T) {
	g := NewGate(true)
	loginErr := context.DeadlineExceeded

	g.Resolve(loginErr)

	if err := g.Ready(context.Background()); err != loginErr {
		t.Fatalf("Ready() = %v, want %v", err, loginErr)
	}
}

func TestGateResolveIsIdempotent(t *testing.T) {
	g := NewGate(true)

	g.Resolve(nil)
	g.Resolve(context.DeadlineExceeded) // second call must be a no-op

	if err := g.Ready(context.Background()); err != nil {
		t.Fatalf("first Resolve should win, got %v", err)
	}
}

func TestGateResetAllowsRelogin(t *testing.T) {
	g := NewGate(true)
	g.Resolve(context.DeadlineExceeded)

	g.Reset()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := g.Ready(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected Ready to block again after Reset, got %v", err)
	}

	g.Resolve(nil)
	if err := g.Ready(context.Background()); err != nil {
		t.Fatalf("expected success after re-resolving post-Reset, got %v", err)
	}
}

func TestGateReadyRespectsContextCancellation(t *testing.T) {
	g := NewGate(true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := g.Ready(ctx); err != context.Canceled {
		t.Fatalf("Ready() = %v, want context.Canceled", err)
	}
}
