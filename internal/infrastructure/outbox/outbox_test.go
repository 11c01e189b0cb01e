package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakePublisher records published events and can fail a set number of times.
type fakePublisher struct {
	mu        sync.Mutex
	published []Entry
	failFirst int
	calls     int
}

func (f *fakePublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFirst {
		return errors.New("broker unavailable")
	}
	f.published = append(f.published, Entry{Topic: topic, Key: key, Payload: value})
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func TestOutboxDeliversEvents(t *testing.T) {
	pub := &fakePublisher{}
	ob, err := New(pub, Config{Workers: 1, QueueSize: 10}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ob.Start()

	if err := ob.Enqueue("appointment.booked", "appt-1", []byte(`{"outcome":"booked"}`)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := ob.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if pub.count() != 1 {
		t.Fatalf("published = %d, want 1", pub.count())
	}
	pub.mu.Lock()
	got := pub.published[0]
	pub.mu.Unlock()
	if got.Topic != "appointment.booked" || got.Key != "appt-1" {
		t.Errorf("published = %+v", got)
	}
}

func TestOutboxRetriesTransientFailure(t *testing.T) {
	pub := &fakePublisher{failFirst: 2}
	ob, err := New(pub, Config{
		Workers:     1,
		QueueSize:   10,
		MaxAttempts: 5,
		RetryDelay:  time.Millisecond,
	}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ob.Start()

	if err := ob.Enqueue("appointment.booked", "appt-2", []byte(`{}`)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	ob.Stop()

	if pub.count() != 1 {
		t.Errorf("published = %d, want 1 after retries", pub.count())
	}
	if pub.calls != 3 {
		t.Errorf("publish calls = %d, want 3", pub.calls)
	}
}

func TestOutboxDropsAfterExhaustedRetries(t *testing.T) {
	pub := &fakePublisher{failFirst: 100}
	ob, err := New(pub, Config{
		Workers:     1,
		QueueSize:   10,
		MaxAttempts: 2,
		RetryDelay:  time.Millisecond,
	}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ob.Start()

	if err := ob.Enqueue("appointment.booked", "appt-3", []byte(`{}`)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	ob.Stop()

	if pub.count() != 0 {
		t.Errorf("published = %d, want 0", pub.count())
	}
	if pub.calls != 2 {
		t.Errorf("publish calls = %d, want 2", pub.calls)
	}
	// A dropped event does not fail the pool task.
	if stats := ob.Stats(); stats.TasksFailed != 0 {
		t.Errorf("pool failures = %d", stats.TasksFailed)
	}
}

func TestOutboxRequiresPublisher(t *testing.T) {
	if _, err := New(nil, DefaultConfig(), nil, nil); err == nil {
		t.Fatal("expected an error for a nil publisher")
	}
}

func TestOutboxRejectsAfterStop(t *testing.T) {
	ob, err := New(&fakePublisher{}, Config{Workers: 1, QueueSize: 1}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ob.Start()
	ob.Stop()

	if err := ob.Enqueue("appointment.booked", "late", []byte(`{}`)); err == nil {
		t.Error("Enqueue after Stop must fail")
	}
}
