package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// Test data structure for worker pool tests
type testWork struct {
	id   int
	fail bool
}

func TestNewPool(t *testing.T) {
	processor := func(_ context.Context, _ testWork) error { return nil }

	pool := NewPool(5, 100, processor)
	if pool.workers != 5 {
		t.Errorf("Expected 5 workers, got %d", pool.workers)
	}
	if pool.queueSize != 100 {
		t.Errorf("Expected queue size 100, got %d", pool.queueSize)
	}

	// Zero workers and queue size fall back to defaults
	pool = NewPool(0, 0, processor)
	if pool.workers != 4 {
		t.Errorf("Expected default 4 workers, got %d", pool.workers)
	}
	if pool.queueSize != 100 {
		t.Errorf("Expected default queue size 100, got %d", pool.queueSize)
	}
}

func TestNewPool_NilProcessor(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected panic for nil processor")
		}
	}()
	NewPool[testWork](5, 100, nil)
}

func TestPool_SubmitBeforeStart(t *testing.T) {
	pool := NewPool(2, 10, func(_ context.Context, _ testWork) error { return nil })

	if err := pool.Submit(testWork{id: 1}); !errors.Is(err, ErrPoolNotStarted) {
		t.Errorf("Expected ErrPoolNotStarted, got %v", err)
	}
}

func TestPool_ProcessesWork(t *testing.T) {
	var processedCount int64
	processor := func(_ context.Context, _ testWork) error {
		atomic.AddInt64(&processedCount, 1)
		return nil
	}

	pool := NewPool(2, 10, processor)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start pool: %v", err)
	}

	if err := pool.Start(context.Background()); !errors.Is(err, ErrPoolAlreadyStarted) {
		t.Errorf("Expected ErrPoolAlreadyStarted, got %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := pool.Submit(testWork{id: i}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	if err := pool.Stop(5 * time.Second); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if got := atomic.LoadInt64(&processedCount); got != 5 {
		t.Errorf("Expected 5 processed items, got %d", got)
	}

	stats := pool.Stats()
	if stats.Submitted != 5 || stats.Processed != 5 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestPool_StopDrainsQueue(t *testing.T) {
	var processedCount int64
	processor := func(_ context.Context, _ testWork) error {
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt64(&processedCount, 1)
		return nil
	}

	pool := NewPool(1, 10, processor)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start pool: %v", err)
	}

	for i := 0; i < 4; i++ {
		if err := pool.Submit(testWork{id: i}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	// Stop must block until all queued work completes
	if err := pool.Stop(5 * time.Second); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := atomic.LoadInt64(&processedCount); got != 4 {
		t.Errorf("Expected 4 processed after drain, got %d", got)
	}

	// Submissions after stop fail
	if err := pool.Submit(testWork{id: 99}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Expected ErrPoolStopped, got %v", err)
	}

	// Second stop is a no-op
	if err := pool.Stop(time.Second); err != nil {
		t.Errorf("Second stop should be nil, got %v", err)
	}
}

func TestPool_FailedWorkCounted(t *testing.T) {
	processor := func(_ context.Context, work testWork) error {
		if work.fail {
			return errors.New("processing failed")
		}
		return nil
	}

	pool := NewPool(1, 10, processor)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start pool: %v", err)
	}

	_ = pool.Submit(testWork{id: 1, fail: true})
	_ = pool.Submit(testWork{id: 2})

	if err := pool.Stop(5 * time.Second); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	stats := pool.Stats()
	if stats.Failed != 1 {
		t.Errorf("Expected 1 failed item, got %d", stats.Failed)
	}
}

func TestPool_QueueFull(t *testing.T) {
	block := make(chan struct{})
	processor := func(_ context.Context, _ testWork) error {
		<-block
		return nil
	}

	pool := NewPool(1, 1, processor)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start pool: %v", err)
	}

	// First item occupies the worker, second fills the queue
	_ = pool.Submit(testWork{id: 1})
	time.Sleep(20 * time.Millisecond)
	_ = pool.Submit(testWork{id: 2})

	err := pool.Submit(testWork{id: 3})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}

	close(block)
	if err := pool.Stop(5 * time.Second); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}
