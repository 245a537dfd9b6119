package provider

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/howard-nolan/chemtutor/internal/metrics"
)

// Chain is an ordered list of providers used for one-shot completions. The
// first provider that answers wins; the rest are only tried on failure.
type Chain struct {
	Providers []Provider
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// NewChain builds a chain. A nil logger is replaced by a no-op logger.
func NewChain(providers []Provider, logger *zap.Logger, m *metrics.Metrics) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{Providers: providers, Logger: logger, Metrics: m}
}

// Complete asks each provider in turn. It returns the last provider error
// when all of them fail, and ErrNotConfigured for an empty chain.
func (c *Chain) Complete(ctx context.Context, req *Request) (*Response, error) {
	if len(c.Providers) == 0 {
		return nil, fmt.Errorf("empty provider chain: %w", ErrNotConfigured)
	}

	var lastErr error
	for _, p := range c.Providers {
		resp, err := p.Complete(ctx, req)
		if err == nil {
			c.Metrics.ProviderRequest(p.Name(), metrics.OutcomeOK)
			return resp, nil
		}

		c.Metrics.ProviderRequest(p.Name(), metrics.OutcomeError)
		lastErr = err
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return nil, err
		}
		c.logger().Warn("provider completion failed", zap.String("provider", p.Name()), zap.Error(err))
	}
	return nil, lastErr
}

// Primary returns the first provider, or nil for an empty chain.
func (c *Chain) Primary() Provider {
	if len(c.Providers) == 0 {
		return nil
	}
	return c.Providers[0]
}

func (c *Chain) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
