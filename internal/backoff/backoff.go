// package backoff provides a bounded retry helper with exponential backoff.
//
// Callers at an I/O boundary (delivery, storage) wrap the operation in Retry
// rather than sleeping in a loop; the schedule is explicit and bounded.
package backoff

import (
	"context"
	"time"
)

// Delay returns the wait before the given attempt, starting at base and
// doubling each attempt, capped at 32x base. Attempt numbering starts at 1.
func Delay(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 5 {
		shift = 5
	}
	return base << uint(shift)
}

// Retry calls fn up to attempts times, waiting Delay between failures.
// It returns nil on the first success, the last error once attempts are
// exhausted, or ctx.Err() if the context is cancelled while waiting.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(Delay(attempt, base)):
		}
	}
	return err
}
