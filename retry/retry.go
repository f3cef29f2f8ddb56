package retry

import (
	"context"
	"log"
	"strings"
	"time"
)

const (
	// DefaultAttempts is the retry budget for single operations
	DefaultAttempts = 3
	// PerItemAttempts is the reduced budget for per-item batch operations,
	// so one failing item does not abort the whole batch
	PerItemAttempts = 2

	baseDelay = 3 * time.Second
)

// transientPatterns match error messages that are expected to succeed on
// retry: rate limits and quota, upstream overload, generic network failure
var transientPatterns = []string{
	"rate limit",
	"quota",
	"429",
	"too many requests",
	"overloaded",
	"503",
	"service unavailable",
	"temporarily unavailable",
	"failed to fetch",
	"connection reset",
	"connection refused",
	"timeout",
	"network",
}

// credentialNotFound signals an invalid or rotated credential. When a reauth
// hook is available it gets one interactive re-selection before normal
// classification resumes.
const credentialNotFound = "requested entity was not found"

// Transient reports whether an error looks retryable
func Transient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Options tunes a retried operation
type Options struct {
	// Attempts overrides the retry budget (0 means DefaultAttempts)
	Attempts int
	// OnReauth, if set, is invoked once when a credential-not-found error
	// is seen; the operation then gets one extra attempt outside the budget
	OnReauth func(ctx context.Context) error
	// Sleep overrides backoff sleeping (tests)
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do invokes op with bounded retries and linear backoff. Transient failures
// are retried up to the budget with delays of attempt × 3s between tries;
// anything else is returned immediately.
func Do[T any](ctx context.Context, name string, opts Options, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var zero T
	reauthed := false
	for attempt := 1; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		if !reauthed && opts.OnReauth != nil &&
			strings.Contains(strings.ToLower(err.Error()), credentialNotFound) {
			reauthed = true
			log.Printf("[retry] %s: credential invalid — re-selecting and retrying once", name)
			if rerr := opts.OnReauth(ctx); rerr != nil {
				return zero, rerr
			}
			// one extra attempt outside the normal budget
			if v, err = op(ctx); err == nil {
				return v, nil
			}
		}

		if !Transient(err) {
			return zero, err
		}
		if attempt >= attempts {
			return zero, err
		}

		delay := time.Duration(attempt) * baseDelay
		log.Printf("[retry] %s attempt %d/%d failed: %v — retrying in %s", name, attempt, attempts, err, delay)
		if serr := sleep(ctx, delay); serr != nil {
			return zero, serr
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
