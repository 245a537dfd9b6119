package analysis

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/howard-nolan/chemtutor/internal/metrics"
	"github.com/howard-nolan/chemtutor/internal/prompt"
	"github.com/howard-nolan/chemtutor/internal/provider"
)

// DefaultAttempts is how many full generations are tried before giving up.
const DefaultAttempts = 2

// analysisOptions keeps structured output close to deterministic.
var analysisOptions = provider.Options{Temperature: 0.2, TopP: 0.8, TopK: 40, MaxOutputTokens: 4096}

// Analyzer runs one-shot structured generations over a provider chain.
type Analyzer struct {
	chain    *provider.Chain
	attempts int
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewAnalyzer returns an Analyzer that makes DefaultAttempts tries per request.
func NewAnalyzer(chain *provider.Chain, logger *zap.Logger, m *metrics.Metrics) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{chain: chain, attempts: DefaultAttempts, logger: logger, metrics: m}
}

// ReactionRequest is the /analyze-reaction body.
type ReactionRequest struct {
	Chemicals []string `json:"chemicals"`
	Equipment []string `json:"equipment"`
}

// AnalyzeReaction needs at least two non-blank chemicals; the check happens
// before any provider is called.
func (a *Analyzer) AnalyzeReaction(ctx context.Context, req ReactionRequest) (*ReactionAnalysis, error) {
	chemicals := compact(req.Chemicals)
	if len(chemicals) < 2 {
		return nil, fmt.Errorf("%w: at least two chemicals are required for a reaction", ErrValidation)
	}

	system, user := prompt.ReactionAnalysis(chemicals, compact(req.Equipment))
	return generate(ctx, a, "reaction", provider.UserPrompt(system, user, analysisOptions), NormalizeReaction)
}

// GenerateMolecule builds a 3D structure from a free-text description.
func (a *Analyzer) GenerateMolecule(ctx context.Context, description string) (*Molecule, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrValidation)
	}

	system, user := prompt.MoleculeGeneration(description)
	return generate(ctx, a, "molecule_generation", provider.UserPrompt(system, user, analysisOptions), NormalizeMolecule)
}

// AnalyzeMolecule describes a student-built structure.
func (a *Analyzer) AnalyzeMolecule(ctx context.Context, m *Molecule) (*MoleculeProperties, error) {
	if m == nil || len(m.Atoms) == 0 {
		return nil, fmt.Errorf("%w: at least one atom is required", ErrValidation)
	}

	system, user := prompt.MoleculeAnalysis(m.Name, DescribeStructure(m))
	normalize := func(raw string) (*MoleculeProperties, error) {
		return NormalizeMoleculeProperties(raw, m)
	}
	return generate(ctx, a, "molecule_analysis", provider.UserPrompt(system, user, analysisOptions), normalize)
}

// generate retries the whole generation, provider call and parse, up to
// a.attempts times. Partial or fabricated data is never returned.
func generate[T any](ctx context.Context, a *Analyzer, kind string, req *provider.Request, normalize func(string) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= a.attempts; attempt++ {
		resp, err := a.chain.Complete(ctx, req)
		if err == nil {
			var out T
			out, err = normalize(resp.Content)
			if err == nil {
				a.metrics.AnalysisAttempt(kind, metrics.OutcomeOK)
				return out, nil
			}
		}

		a.metrics.AnalysisAttempt(kind, metrics.OutcomeError)
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err
		a.logger.Warn("analysis attempt failed",
			zap.String("kind", kind),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", a.attempts),
			zap.Error(err),
		)
	}

	return zero, fmt.Errorf("%w: %s failed after %d attempts: %w", ErrExhausted, kind, a.attempts, lastErr)
}

func compact(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
