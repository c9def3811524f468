package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// defaultRetryAttempts is the rate-limit retry budget per call.
const defaultRetryAttempts = 3

// HTTPError is a non-2xx platform response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("platform returned %d: %s", e.StatusCode, body)
}

// IsNotFound reports whether err is a 404 platform response.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == 404
}

// retryable reports whether a response warrants a retry: transient gateway
// and throttling codes, plus 403s whose body indicates rate limiting.
func retryable(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	switch httpErr.StatusCode {
	case 429, 502, 503, 504:
		return true
	case 403:
		body := strings.ToLower(httpErr.Body)
		return strings.Contains(body, "rate limit") || strings.Contains(body, "abuse detection")
	default:
		return false
	}
}

// withRateLimit runs fn with exponential backoff on retryable errors, up to
// attempts tries total. Non-retryable errors abort immediately.
func withRateLimit(ctx context.Context, attempts int, fn func() error) error {
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second

	wrapped := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(wrapped,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx))
}
