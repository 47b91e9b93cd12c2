// Package extractor defines the shared provider error taxonomy and retry
// helpers; the concrete providers live in subpackages.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"ddtcorpus/internal/domain"
)

// Error is a classified provider failure. Every error a provider returns
// unwraps to one of these so the orchestrator can persist the class without
// string matching.
type Error struct {
	Provider string
	Class    domain.ErrorClass
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Class, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps a provider failure with its class.
func NewError(provider string, class domain.ErrorClass, err error) *Error {
	return &Error{Provider: provider, Class: class, Err: err}
}

// Errorf is NewError with a formatted message.
func Errorf(provider string, class domain.ErrorClass, format string, args ...interface{}) *Error {
	return &Error{Provider: provider, Class: class, Err: fmt.Errorf(format, args...)}
}

// ClassOf extracts the error class from a provider error chain. Unclassified
// errors report as transient_network, the safest class to retry by hand.
func ClassOf(err error) domain.ErrorClass {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrClassTimeout
	}
	return domain.ErrClassTransientNetwork
}

// IsTransportError reports whether err looks like a network-level failure
// (connection refused, reset, DNS) rather than a provider-level response.
func IsTransportError(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}

// ParseRetryAfterHeader parses a Retry-After header value into seconds.
// Returns 0 if the value is empty or not a valid integer.
func ParseRetryAfterHeader(val string) int {
	if val == "" {
		return 0
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return secs
}

// BackoffDelay returns the exponential delay before retry attempt n (0-based),
// capped at max. When the provider sent Retry-After, that wins.
func BackoffDelay(attempt int, base, max time.Duration, retryAfterSecs int) time.Duration {
	if retryAfterSecs > 0 {
		return time.Duration(retryAfterSecs) * time.Second
	}
	d := base << uint(attempt)
	if d > max || d <= 0 {
		return max
	}
	return d
}

// Sleep waits for d or until the context is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
