package stream

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/howard-nolan/chemtutor/internal/metrics"
	"github.com/howard-nolan/chemtutor/internal/provider"
)

// UnavailableMessage is the one user-facing text for a failed stream. Raw
// provider errors only go to the log.
const UnavailableMessage = "Sorry, the chemistry tutor is unavailable right now. Please try again in a moment."

// Event is one line of the client-facing stream. Exactly one of the three
// shapes is produced: {"token"}, {"token","error":true} or {"done":true}.
type Event struct {
	Token string `json:"token,omitempty"`
	Error bool   `json:"error,omitempty"`
	Done  bool   `json:"done,omitempty"`
}

// Terminal reports whether no event follows e.
func (e Event) Terminal() bool { return e.Done || e.Error }

// Pipeline streams one request through an ordered chain of providers.
//
// A provider that fails before its first fragment is abandoned and the next
// one gets the same request. Once any fragment has reached the caller the
// active provider is committed: a later failure ends the stream with a
// single error event and the rest of the chain is never tried.
type Pipeline struct {
	Providers []provider.Provider
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Run starts the stream. The returned channel is closed after the terminal
// event, or early if ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, req *provider.Request) <-chan Event {
	out := make(chan Event)

	go func() {
		defer close(out)

		// emit blocks until the consumer takes the event or goes away.
		emit := func(e Event) bool {
			select {
			case out <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}

		log := p.logger()
		for i, prov := range p.Providers {
			last := i == len(p.Providers)-1

			err := p.attempt(ctx, prov, req, emit)
			if err == nil || errors.Is(err, errCommitted) || ctx.Err() != nil {
				return
			}

			p.Metrics.ProviderRequest(prov.Name(), metrics.OutcomeError)
			if last || !provider.Retryable(err) {
				log.Warn("chat stream failed", zap.String("provider", prov.Name()), zap.Error(err))
				break
			}
			log.Warn("chat provider failed before first fragment, falling back",
				zap.String("provider", prov.Name()),
				zap.String("next", p.Providers[i+1].Name()),
				zap.Error(err),
			)
			p.Metrics.Fallback()
		}

		emit(Event{Token: UnavailableMessage, Error: true})
	}()

	return out
}

// errCommitted means the attempt already emitted its terminal event.
var errCommitted = errors.New("stream committed")

// attempt runs one provider. It returns nil after a clean done event,
// errCommitted after a post-fragment failure (already reported to the
// caller), and the provider error when nothing was emitted.
func (p *Pipeline) attempt(ctx context.Context, prov provider.Provider, req *provider.Request, emit func(Event) bool) error {
	// Each attempt gets its own context so an abandoned provider's
	// goroutine and connection are released before the next one starts.
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, err := prov.Stream(attemptCtx, req)
	if err != nil {
		return err
	}

	emitted := false
	for chunk := range chunks {
		if chunk.Err != nil {
			if !emitted {
				return chunk.Err
			}
			p.Metrics.ProviderRequest(prov.Name(), metrics.OutcomeError)
			p.logger().Warn("chat stream interrupted after partial output",
				zap.String("provider", prov.Name()), zap.Error(chunk.Err))
			emit(Event{Token: UnavailableMessage, Error: true})
			return errCommitted
		}

		if chunk.Delta != "" {
			if !emit(Event{Token: chunk.Delta}) {
				return errCommitted
			}
			emitted = true
		}
		if chunk.Done {
			break
		}
	}

	if ctx.Err() != nil {
		return errCommitted
	}
	p.Metrics.ProviderRequest(prov.Name(), metrics.OutcomeOK)
	emit(Event{Done: true})
	return nil
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}
