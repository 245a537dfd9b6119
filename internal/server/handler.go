package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/howard-nolan/chemtutor/internal/analysis"
	"github.com/howard-nolan/chemtutor/internal/provider"
	"github.com/howard-nolan/chemtutor/internal/quiz"
)

// Connectivity values reported per provider by /health.
const (
	Connected     = "connected"
	Disconnected  = "disconnected"
	NotConfigured = "not_configured"
)

const (
	serviceName    = "ERA - ELIXRA Reaction Avatar"
	serviceVersion = "1.0.0"

	healthTimeout = 3 * time.Second
	maxBodyBytes  = 1 << 20
)

// handleRoot is the service banner.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "online",
		"service": serviceName,
		"version": serviceVersion,
	})
}

type healthResponse struct {
	Status               string            `json:"status"`
	ProviderConnectivity map[string]string `json:"provider_connectivity"`
	ModelName            string            `json:"model_name"`
}

// handleHealth pings every provider that supports it. The service is
// degraded when the primary chat provider is not connected; it still
// answers 200 so a load balancer keeps routing quiz traffic to it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{
		Status:               "healthy",
		ProviderConnectivity: make(map[string]string, len(s.deps.Providers)),
		ModelName:            s.deps.ModelName,
	}
	for i, p := range s.deps.Providers {
		state := connectivity(ctx, p)
		resp.ProviderConnectivity[p.Name()] = state
		if i == 0 && state != Connected {
			resp.Status = "degraded"
		}
	}
	if len(s.deps.Providers) == 0 {
		resp.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}

func connectivity(ctx context.Context, p provider.Provider) string {
	pinger, ok := p.(provider.Pinger)
	if !ok {
		return Connected
	}
	err := pinger.Ping(ctx)
	switch {
	case err == nil:
		return Connected
	case errors.Is(err, provider.ErrNotConfigured):
		return NotConfigured
	default:
		return Disconnected
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// writeJSON sets the Content-Type header before the status; once the body
// starts, headers are locked in.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a bounded request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", analysis.ErrValidation, err)
	}
	return nil
}

// statusFor maps service errors onto HTTP status codes. Caller mistakes
// are 4xx and never retried; upstream failures are 5xx.
func statusFor(err error) int {
	switch {
	case errors.Is(err, analysis.ErrValidation),
		errors.Is(err, quiz.ErrInvalidArgument),
		errors.Is(err, quiz.ErrFailedPrecondition):
		return http.StatusBadRequest
	case errors.Is(err, quiz.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, provider.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads this.
		return 499
	case errors.Is(err, analysis.ErrExhausted),
		errors.Is(err, provider.ErrConnect),
		errors.Is(err, provider.ErrTimeout),
		errors.Is(err, provider.ErrMalformedOutput):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err to the client. 5xx bodies carry a generic message;
// the detail goes to the log only.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.log.Warn("request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
		msg = upstreamMessage(status)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func upstreamMessage(status int) string {
	switch status {
	case http.StatusServiceUnavailable:
		return "no language model provider is configured"
	case http.StatusBadGateway:
		return "the language model did not return a usable answer, please try again"
	default:
		return "internal server error"
	}
}
