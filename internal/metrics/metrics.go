// Package metrics defines the Prometheus collectors shared by the pipeline,
// the analyzer and the quiz engine. A nil *Metrics is valid and records
// nothing, which keeps tests and optional wiring simple.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for provider requests.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

type Metrics struct {
	providerRequests      *prometheus.CounterVec
	fallbacks             prometheus.Counter
	analysisAttempts      *prometheus.CounterVec
	quizSessions          prometheus.Counter
	quizFallbackQuestions prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		providerRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chemtutor_provider_requests_total",
				Help: "Provider calls by provider name and outcome",
			},
			[]string{"provider", "outcome"},
		),
		fallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "chemtutor_fallbacks_total",
			Help: "Chat streams that moved on to a fallback provider before the first fragment",
		}),
		analysisAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chemtutor_analysis_attempts_total",
				Help: "Structured analysis attempts by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		quizSessions: f.NewCounter(prometheus.CounterOpts{
			Name: "chemtutor_quiz_sessions_total",
			Help: "Quiz sessions generated",
		}),
		quizFallbackQuestions: f.NewCounter(prometheus.CounterOpts{
			Name: "chemtutor_quiz_fallback_questions_total",
			Help: "Quiz questions replaced by a built-in fallback",
		}),
		gatherer: reg,
	}
}

func (m *Metrics) ProviderRequest(provider, outcome string) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) Fallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

func (m *Metrics) AnalysisAttempt(kind, outcome string) {
	if m == nil {
		return
	}
	m.analysisAttempts.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) QuizSession() {
	if m == nil {
		return
	}
	m.quizSessions.Inc()
}

func (m *Metrics) QuizFallbackQuestion() {
	if m == nil {
		return
	}
	m.quizFallbackQuestions.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
