package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolProcessesTasks(t *testing.T) {
	var processed int64
	fn := func(ctx context.Context, task *Task) *Result {
		atomic.AddInt64(&processed, 1)
		return &Result{TaskID: task.ID, Success: true}
	}

	pool, err := New(Config{Workers: 2, QueueSize: 10}, fn, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pool.Start()

	for i := 0; i < 5; i++ {
		if err := pool.Submit(&Task{ID: fmt.Sprintf("task-%d", i)}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if err := pool.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := atomic.LoadInt64(&processed); got != 5 {
		t.Errorf("processed = %d, want 5", got)
	}
	stats := pool.Stats()
	if stats.TasksCompleted != 5 || stats.TasksFailed != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestPoolRequiresWorkerFunc(t *testing.T) {
	if _, err := New(Config{}, nil, nil); err == nil {
		t.Fatal("expected an error for a nil worker function")
	}
}

func TestPoolRetriesFailedTasks(t *testing.T) {
	var attempts int64
	fn := func(ctx context.Context, task *Task) *Result {
		n := atomic.AddInt64(&attempts, 1)
		if n < 3 {
			return &Result{TaskID: task.ID, Success: false, Error: errors.New("transient")}
		}
		return &Result{TaskID: task.ID, Success: true}
	}

	pool, err := New(Config{Workers: 1, QueueSize: 1, MaxRetries: 3, RetryDelay: time.Millisecond}, fn, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pool.Start()
	if err := pool.Submit(&Task{ID: "flaky"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	pool.Stop()

	if got := atomic.LoadInt64(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	stats := pool.Stats()
	if stats.TasksCompleted != 1 {
		t.Errorf("completed = %d, want 1", stats.TasksCompleted)
	}
	if stats.TasksRetried != 2 {
		t.Errorf("retried = %d, want 2", stats.TasksRetried)
	}
}

func TestPoolExhaustsRetries(t *testing.T) {
	fn := func(ctx context.Context, task *Task) *Result {
		return &Result{TaskID: task.ID, Success: false, Error: errors.New("permanent")}
	}

	pool, err := New(Config{Workers: 1, QueueSize: 1, MaxRetries: 2, RetryDelay: time.Millisecond}, fn, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pool.Start()
	if err := pool.Submit(&Task{ID: "doomed"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	pool.Stop()

	stats := pool.Stats()
	if stats.TasksFailed != 1 {
		t.Errorf("failed = %d, want 1", stats.TasksFailed)
	}
	if stats.TasksCompleted != 0 {
		t.Errorf("completed = %d, want 0", stats.TasksCompleted)
	}
}

func TestPoolRejectsWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	fn := func(ctx context.Context, task *Task) *Result {
		<-block
		return &Result{TaskID: task.ID, Success: true}
	}

	pool, err := New(Config{Workers: 1, QueueSize: 1}, fn, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pool.Start()
	defer func() {
		close(block)
		pool.Stop()
	}()

	// Fill the single worker and the single queue slot, then overflow.
	if err := pool.Submit(&Task{ID: "running"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for {
		err := pool.Submit(&Task{ID: "overflow"})
		if err != nil {
			break // queue filled up as expected
		}
		if time.Now().After(deadline) {
			t.Fatal("queue never reported full")
		}
	}
}

func TestPoolRejectsAfterStop(t *testing.T) {
	fn := func(ctx context.Context, task *Task) *Result {
		return &Result{TaskID: task.ID, Success: true}
	}
	pool, err := New(Config{Workers: 1, QueueSize: 1}, fn, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pool.Start()
	pool.Stop()

	if err := pool.Submit(&Task{ID: "late"}); err == nil {
		t.Error("Submit after Stop must fail")
	}
}

func TestPoolIsHealthy(t *testing.T) {
	fn := func(ctx context.Context, task *Task) *Result {
		return &Result{TaskID: task.ID, Success: true}
	}
	pool, err := New(Config{Workers: 1, QueueSize: 100}, fn, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !pool.IsHealthy() {
		t.Error("idle pool must be healthy")
	}
}
