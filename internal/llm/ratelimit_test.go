package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRPSLimiterNilIsNoop(t *testing.T) {
	var l *rpsLimiter
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire on nil limiter: %v", err)
	}
	l.Stop()
}

func TestRPSLimiterBurst(t *testing.T) {
	l := newRPSLimiter(1, 3)
	defer l.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("burst acquire %d: %v", i, err)
		}
	}
}

func TestRPSLimiterStopUnblocksAcquire(t *testing.T) {
	l := newRPSLimiter(0.001, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("drain burst token: %v", err)
	}

	// No refill will arrive for a long time; Stop must fail the waiter
	// promptly instead of leaving it parked until the context deadline.
	done := make(chan error, 1)
	go func() { done <- l.Acquire(ctx) }()

	time.Sleep(10 * time.Millisecond)
	l.Stop()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Acquire after Stop = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after Stop")
	}
}
