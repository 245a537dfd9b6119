package provider

import (
	"context"
	"fmt"
)

// Disabled stands in for a backend whose credential or endpoint is missing.
// Every call fails with ErrNotConfigured, so the process keeps running and
// the health endpoint can report the backend as not configured.
type Disabled struct {
	name string
}

// NewDisabled returns a placeholder provider with the given name.
func NewDisabled(name string) *Disabled {
	return &Disabled{name: name}
}

// Name returns the provider identifier.
func (d *Disabled) Name() string { return d.name }

// Complete always fails with ErrNotConfigured.
func (d *Disabled) Complete(ctx context.Context, req *Request) (*Response, error) {
	return nil, fmt.Errorf("%s: %w", d.name, ErrNotConfigured)
}

// Stream always fails with ErrNotConfigured.
func (d *Disabled) Stream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	return nil, fmt.Errorf("%s: %w", d.name, ErrNotConfigured)
}

// Ping always fails with ErrNotConfigured.
func (d *Disabled) Ping(ctx context.Context) error {
	return fmt.Errorf("%s: %w", d.name, ErrNotConfigured)
}
