package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsJobsConcurrently(t *testing.T) {
	t.Parallel()
	p := New(context.Background(), 4)
	p.Start()
	defer p.Stop()

	var completed atomic.Int64
	release := make(chan struct{})
	for i := 0; i < 4; i++ {
		p.Submit(func(ctx context.Context) {
			<-release
			completed.Add(1)
		})
	}

	deadline := time.After(time.Second)
	for p.InFlight() < 4 {
		select {
		case <-deadline:
			t.Fatalf("expected 4 in-flight jobs, got %d", p.InFlight())
		case <-time.After(time.Millisecond):
		}
	}
	close(release)

	deadline = time.After(time.Second)
	for completed.Load() != 4 {
		select {
		case <-deadline:
			t.Fatalf("expected 4 completed jobs, got %d", completed.Load())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestPoolCapacity(t *testing.T) {
	t.Parallel()
	if New(context.Background(), 0).Capacity() != 1 {
		t.Fatal("zero size should default to 1")
	}
	if New(context.Background(), 3).Capacity() != 3 {
		t.Fatal("Capacity should reflect the requested size")
	}
}

func TestPoolObservesParentCancellation(t *testing.T) {
	t.Parallel()
	parent, cancel := context.WithCancel(context.Background())
	p := New(parent, 1)
	p.Start()
	cancel()
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("pool did not observe parent cancellation")
	}
	p.Stop()
}

func TestPoolSubmitAfterStopDoesNotBlock(t *testing.T) {
	t.Parallel()
	p := New(context.Background(), 1)
	p.Start()
	p.Stop()

	done := make(chan struct{})
	go func() {
		p.Submit(func(context.Context) {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked after pool stopped")
	}
}
