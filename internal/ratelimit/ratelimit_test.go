package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNewBurstFloorsAtOne(t *testing.T) {
	l := New(5) // 5/min → burst would round to 0, floored to 1
	if !l.Allow() {
		t.Fatal("expected the first token to be available with a floored burst of 1")
	}
}

func TestAllowRespectsBurst(t *testing.T) {
	l := NewWithBurst(1, 2)

	if !l.Allow() || !l.Allow() {
		t.Fatal("expected both burst tokens to be available immediately")
	}
	if l.Allow() {
		t.Fatal("expected the third call to be denied once the burst is exhausted")
	}
}

func TestWaitBlocksUntilTokenAvailable(t *testing.T) {
	l := NewWithBurst(50, 1) // fast refill so the test doesn't hang
	if !l.Allow() {
		t.Fatal("expected the burst token to be available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestWaitWithTimeoutRespectsDeadline(t *testing.T) {
	l := NewWithBurst(0.001, 1)
	l.Allow() // exhaust the single burst token

	if err := l.WaitWithTimeout(20 * time.Millisecond); err == nil {
		t.Fatal("expected a deadline-exceeded error for a near-zero rate")
	}
}

func TestSetLimitAndSetBurst(t *testing.T) {
	l := New(60)
	l.SetBurst(3)
	if !l.Allow() || !l.Allow() || !l.Allow() {
		t.Fatal("expected three tokens to be available after SetBurst(3)")
	}
	if l.Allow() {
		t.Fatal("expected the fourth call to be denied")
	}
}
