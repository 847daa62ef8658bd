package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestGateBusyAfterAcquireWindow(t *testing.T) {
	g := NewGate(1, 20*time.Millisecond)

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = g.Do(context.Background(), func(ctx context.Context) error {
			<-release
			return nil
		})
	}()

	// Give the holder time to take the permit.
	time.Sleep(5 * time.Millisecond)

	err := g.Do(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrGateBusy) {
		t.Fatalf("expected ErrGateBusy, got %v", err)
	}

	close(release)
	wg.Wait()

	// Permit must be back.
	if err := g.Do(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("gate should be free again: %v", err)
	}
}

func TestGateReleasesOnError(t *testing.T) {
	g := NewGate(1, 50*time.Millisecond)

	wantErr := errors.New("store down")
	if err := g.Do(context.Background(), func(ctx context.Context) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("expected fn error, got %v", err)
	}

	if err := g.Do(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("permit leaked: %v", err)
	}
}

func TestGatePropagatesCallerCancellation(t *testing.T) {
	g := NewGate(1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.Do(ctx, func(ctx context.Context) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected caller cancellation, got %v", err)
	}
}
