package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error conditions every adapter reports. Callers test them with errors.Is
// and decide retry/fallback policy themselves; adapters never swallow them.
var (
	// ErrConnect means the upstream could not be reached at all.
	ErrConnect = errors.New("provider connect failure")

	// ErrTimeout means the upstream did not answer within its bound.
	// The pipeline treats it exactly like ErrConnect.
	ErrTimeout = errors.New("provider timeout")

	// ErrNotConfigured is returned by the Disabled provider, i.e. when no
	// credential or endpoint was supplied for a backend.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrMalformedOutput means the upstream answered but the payload could
	// not be decoded (broken SSE frame, empty candidates, non-JSON text).
	ErrMalformedOutput = errors.New("provider returned malformed output")
)

// APIError is a non-2xx answer from an upstream API.
type APIError struct {
	Provider   string
	StatusCode int
	Body       any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %v", e.Provider, e.StatusCode, e.Body)
}

// Classify turns a transport-level error from an HTTP call into one of the
// typed conditions above. Errors that are already typed pass through, and a
// cancellation by the caller is returned untouched so it is never mistaken
// for an upstream failure.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr),
		errors.Is(err, ErrConnect),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrNotConfigured),
		errors.Is(err, ErrMalformedOutput),
		errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", provider, ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w: %w", provider, ErrTimeout, err)
	}

	return fmt.Errorf("%s: %w: %w", provider, ErrConnect, err)
}

// Retryable reports whether another provider (or another attempt) may be
// tried after err. Only a caller-side cancellation stops the retry chain.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}
