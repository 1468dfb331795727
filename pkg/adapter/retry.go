package adapter

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultTimeout bounds every outbound call to an embedding, completion or
// storage capability. Overridable per adapter via options.
const DefaultTimeout = 30 * time.Second

const retryWait = 500 * time.Millisecond

// withRetry runs fn with a bounded timeout and retries once on a transient
// failure. Authentication and other permanent errors are never retried.
func withRetry[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	run := func() (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(callCtx)
	}

	result, err := run()
	if err == nil || !isTransient(err) {
		return result, err
	}

	select {
	case <-ctx.Done():
		return result, err
	case <-time.After(retryWait):
	}

	return run()
}

// isTransient reports whether the error is worth a single retry: timeouts,
// temporary network failures and unavailable/overloaded responses. Anything
// that looks like an authentication or quota problem is permanent.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"unauthorized", "unauthenticated", "permission denied", "invalid api key", "401", "403"} {
		if strings.Contains(msg, marker) {
			return false
		}
	}
	for _, marker := range []string{"503", "502", "429", "overloaded", "connection refused", "connection reset", "temporarily"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}
