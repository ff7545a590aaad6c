package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyEventualSuccess(t *testing.T) {
	p := NewRetryPolicy(3, time.Millisecond)
	attempts := 0
	err := p.Do(func() error {
		attempts++
		if attempts < 3 {
			return errors.New("nope")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryPolicyExhausted(t *testing.T) {
	p := NewRetryPolicy(2, time.Millisecond)
	attempts := 0
	err := p.Do(func() error {
		attempts++
		return errors.New("always")
	})
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestCircuitBreakerOpensOnTransient(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	if !cb.Allow() {
		t.Fatalf("expected closed breaker to allow")
	}
	cb.OnError(TransientError{Source: "ws"})
	if !cb.Allow() {
		t.Fatalf("expected breaker still closed below threshold")
	}
	cb.OnError(TransientError{Source: "ws"})
	if cb.Allow() {
		t.Fatalf("expected breaker open at threshold")
	}
	cb.OnSuccess()
	if !cb.Allow() {
		t.Fatalf("expected breaker reset after success")
	}
}

func TestCircuitBreakerIgnoresNonTransient(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	cb.OnError(errors.New("permanent"))
	if !cb.Allow() {
		t.Fatalf("expected non-transient errors not to trip the breaker")
	}
}
