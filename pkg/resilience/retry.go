package resilience

import "time"

// RetryPolicy retries an operation a bounded number of times with a
// linearly growing pause between attempts.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff}
}

// Do returns nil on the first success; after the last attempt the final
// error is returned as-is.
func (r RetryPolicy) Do(fn func() error) error {
	attempts := r.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt < attempts {
			time.Sleep(time.Duration(attempt) * r.Backoff)
		}
	}
	return err
}
