package resilience

import (
	"errors"
	"sync"
	"time"
)

// TransientError marks a failure worth retrying (disconnects, rate limits).
type TransientError struct {
	Source  string
	Message string
}

func (e TransientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "transient failure"
}

// IsTransient returns true when the error is a TransientError.
func IsTransient(err error) bool {
	var te TransientError
	return errors.As(err, &te)
}

// CircuitBreaker blocks requests after repeated transient failures.
type CircuitBreaker struct {
	mu        sync.Mutex
	failures  int
	threshold int
	openUntil time.Time
	cooldown  time.Duration
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown}
}

func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !time.Now().Before(c.openUntil)
}

func (c *CircuitBreaker) OnSuccess() {
	c.mu.Lock()
	c.failures = 0
	c.openUntil = time.Time{}
	c.mu.Unlock()
}

func (c *CircuitBreaker) OnError(err error) {
	if !IsTransient(err) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	if c.failures >= c.threshold {
		c.openUntil = time.Now().Add(c.cooldown)
	}
}
