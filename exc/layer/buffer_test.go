package layer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fd1az/go-exc/exc"
)

type countingService struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	calls    int
}

func (s *countingService) Ready(ctx context.Context) error { return nil }

func (s *countingService) Call(ctx context.Context, req exc.Request) (exc.Response, error) {
	s.mu.Lock()
	s.inFlight++
	s.calls++
	if s.inFlight > s.maxSeen {
		s.maxSeen = s.inFlight
	}
	s.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()

	return exc.Response{}, nil
}

func TestBufferSerializesConcurrentCalls(t *testing.T) {
	inner := &countingService{}
	svc := Buffer(16)(inner)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Call(context.Background(), exc.FetchInstruments{Tag: "SPOT"}); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	inner.mu.Lock()
	defer inner.mu.Unlock()
	if inner.maxSeen != 1 {
		t.Fatalf("max concurrent inner calls = %d, want 1", inner.maxSeen)
	}
	if inner.calls != 8 {
		t.Fatalf("calls = %d, want 8", inner.calls)
	}
}

func TestBufferReturnsOnContextCancellation(t *testing.T) {
	release := make(chan struct{})
	inner := &blockingUntilReleased{release: release}
	svc := Buffer(1)(inner)

	// Occupy the single worker with a call that won't return until released.
	go svc.Call(context.Background(), exc.FetchInstruments{Tag: "SPOT"})
	time.Sleep(5 * time.Millisecond)

	// Fill the bound-1 queue with a second pending job.
	go svc.Call(context.Background(), exc.FetchInstruments{Tag: "SPOT"})
	time.Sleep(5 * time.Millisecond)

	// A third call can't even enqueue; canceling its context must unblock it.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Call(ctx, exc.FetchInstruments{Tag: "SPOT"})
	if err == nil {
		t.Fatal("expected context cancellation error")
	}

	close(release)
}

type blockingUntilReleased struct {
	release chan struct{}
}

func (s *blockingUntilReleased) Ready(ctx context.Context) error { return nil }

func (s *blockingUntilReleased) Call(ctx context.Context, req exc.Request) (exc.Response, error) {
	<-s.release
	return exc.Response{}, nil
}
