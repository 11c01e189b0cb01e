package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestBreaker(t *testing.T, cfg Config) *CircuitBreaker {
	t.Helper()
	cb, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cb
}

func TestExecuteSuccess(t *testing.T) {
	cb := newTestBreaker(t, DefaultConfig("test"))

	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.(string) != "ok" {
		t.Errorf("result = %v", result)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state = %s, want closed", cb.GetState())
	}
}

func TestExecutePropagatesError(t *testing.T) {
	cb := newTestBreaker(t, DefaultConfig("test"))

	boom := errors.New("downstream failure")
	_, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the wrapped error", err)
	}
	if cb.IsOpen() {
		t.Error("one failure must not open the circuit")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.FailureThreshold = 3
	cb := newTestBreaker(t, cfg)

	boom := errors.New("downstream failure")
	for i := 0; i < 3; i++ {
		cb.Execute(context.Background(), func() (interface{}, error) {
			return nil, boom
		})
	}

	if !cb.IsOpen() {
		t.Fatalf("state = %s, want open after %d consecutive failures", cb.GetState(), cfg.FailureThreshold)
	}

	// Calls while open are rejected without running the function.
	ran := false
	_, err := cb.Execute(context.Background(), func() (interface{}, error) {
		ran = true
		return nil, nil
	})
	if err == nil {
		t.Fatal("expected rejection while open")
	}
	if ran {
		t.Error("function must not run while the circuit is open")
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.FailureThreshold = 2
	cfg.Timeout = 20 * time.Millisecond
	cb := newTestBreaker(t, cfg)

	boom := errors.New("downstream failure")
	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func() (interface{}, error) {
			return nil, boom
		})
	}
	if !cb.IsOpen() {
		t.Fatalf("state = %s, want open", cb.GetState())
	}

	time.Sleep(30 * time.Millisecond)

	// The first probe after the timeout runs half-open; successes close it.
	for i := 0; i < int(cfg.MaxRequests); i++ {
		if _, err := cb.Execute(context.Background(), func() (interface{}, error) {
			return "ok", nil
		}); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state = %s, want closed after successful probes", cb.GetState())
	}
}
