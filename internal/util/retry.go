package util

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backoff retries an operation with exponentially growing delays.
type Backoff struct {
	Retries int           // attempts after the first
	Base    time.Duration // delay before the first retry
	Max     time.Duration // cap on a single delay; zero means no cap
}

// Delay returns how long to wait after the given 0-indexed attempt fails.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base << attempt
	if d <= 0 || (b.Max > 0 && d > b.Max) {
		return b.Max
	}
	return d
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Retry calls fn until it succeeds, returns a Permanent error, runs out of
// retries or ctx is done. fn receives the 0-indexed attempt number.
func (b Backoff) Retry(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= b.Retries; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		var perm permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if attempt == b.Retries {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Delay(attempt)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", b.Retries, lastErr)
}
