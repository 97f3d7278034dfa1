package workerpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunReturnsTaskResult(t *testing.T) {
	p := New(2, 4, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	err := p.Run(context.Background(), func() error { return nil })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantErr := errors.New("merge failed")
	err = p.Run(context.Background(), func() error { return wantErr })
	if err != wantErr {
		t.Fatalf("Run() = %v, want %v", err, wantErr)
	}
}

func TestRunTimesOut(t *testing.T) {
	p := New(1, 4, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	runCtx, runCancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer runCancel()

	err := p.Run(runCtx, func() error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	if err != ErrTimeout {
		t.Fatalf("Run() = %v, want ErrTimeout", err)
	}
}

func TestSubmitDropsWhenQueueFull(t *testing.T) {
	p := New(0, 1, zerolog.Nop())
	block := make(chan struct{})
	if err := p.Submit(func() { <-block }); err != nil {
		t.Fatalf("first submit should succeed: %v", err)
	}
	if err := p.Submit(func() {}); err != ErrQueueFull {
		t.Fatalf("Submit() = %v, want ErrQueueFull", err)
	}
	close(block)
	if p.DroppedTasks() != 1 {
		t.Fatalf("DroppedTasks() = %d, want 1", p.DroppedTasks())
	}
}

func TestPanicRecovered(t *testing.T) {
	p := New(1, 4, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	runCtx, runCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer runCancel()

	err := p.Run(runCtx, func() error {
		panic("boom")
	})
	if err != ErrTimeout {
		t.Fatalf("Run() = %v, want ErrTimeout (panic recovered, done channel never written)", err)
	}

	// The pool itself must still be alive for subsequent tasks.
	if err := p.Run(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("pool did not survive a worker panic: %v", err)
	}
}
