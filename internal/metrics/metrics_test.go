package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ProviderRequest("google", OutcomeError)
	m.ProviderRequest("ollama", OutcomeOK)
	m.ProviderRequest("ollama", OutcomeOK)
	m.Fallback()
	m.QuizSession()
	m.QuizFallbackQuestion()
	m.AnalysisAttempt("reaction", OutcomeOK)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerRequests.WithLabelValues("google", OutcomeError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.providerRequests.WithLabelValues("ollama", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.quizSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.quizFallbackQuestions))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ProviderRequest("google", OutcomeOK)
		m.Fallback()
		m.AnalysisAttempt("reaction", OutcomeError)
		m.QuizSession()
		m.QuizFallbackQuestion()
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.Fallback()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chemtutor_fallbacks_total 1")
}
