package layer

import (
	"context"
	"testing"
	"time"

	"github.com/fd1az/go-exc/exc"
)

type blockingService struct {
	delay time.Duration
}

func (s *blockingService) Ready(ctx context.Context) error { return nil }

func (s *blockingService) Call(ctx context.Context, req exc.Request) (exc.Response, error) {
	select {
	case <-time.After(s.delay):
		return exc.Response{}, nil
	case <-ctx.Done():
		return exc.Response{}, ctx.Err()
	}
}

func TestTimeoutPassesThroughFastCall(t *testing.T) {
	inner := &blockingService{delay: 0}
	svc := Timeout(50 * time.Millisecond)(inner)

	if _, err := svc.Call(context.Background(), exc.FetchInstruments{Tag: "SPOT"}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestTimeoutSurfacesServiceTimeoutOnExpiry(t *testing.T) {
	inner := &blockingService{delay: time.Second}
	svc := Timeout(10 * time.Millisecond)(inner)

	_, err := svc.Call(context.Background(), exc.FetchInstruments{Tag: "SPOT"})
	if err == nil {
		t.Fatal("expected a timeout error")
	}

	var appErr *exc.Error
	if !asAppError(err, &appErr) {
		t.Fatalf("expected *exc.Error, got %T", err)
	}
	if appErr.Code != exc.CodeServiceTimeout {
		t.Fatalf("code = %v, want %v", appErr.Code, exc.CodeServiceTimeout)
	}
}

func asAppError(err error, target **exc.Error) bool {
	ae, ok := err.(*exc.Error)
	if !ok {
		return false
	}
	*target = ae
	return true
}
