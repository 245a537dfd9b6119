package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), ErrTimeout},
		{"dial", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("connection refused")}, ErrConnect},
		{"already typed", fmt.Errorf("x: %w", ErrMalformedOutput), ErrMalformedOutput},
		{"canceled", context.Canceled, context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Classify("google", tt.err), tt.want)
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(ErrConnect))
	assert.True(t, Retryable(&APIError{Provider: "google", StatusCode: 500}))
	assert.True(t, Retryable(fmt.Errorf("x: %w", ErrNotConfigured)))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(nil))
}

func TestDisabled(t *testing.T) {
	d := NewDisabled("google")
	_, err := d.Complete(context.Background(), UserPrompt("", "x", Options{}))
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = d.Stream(context.Background(), UserPrompt("", "x", Options{}))
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, "google", d.Name())
}
