// Package provider defines the Provider interface and the LLM backend adapters.
//
// Every backend (Ollama, Google Gemini, Anthropic) implements Provider. The
// rest of the service works with the unified Request/Response/StreamChunk
// types, so the streaming pipeline, the normalizer and the quiz engine never
// need to know which backend is actually answering.
package provider

import "context"

// Provider is the interface that every LLM backend must satisfy.
type Provider interface {
	// Name returns the provider identifier, e.g. "ollama" or "google".
	// Used for logging, metric labels and the health report.
	Name() string

	// Complete sends a request and returns the whole completion text.
	// This is the single-shot path used for JSON analyses, quiz questions
	// and remediation suggestions.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Stream sends a request and returns a channel that delivers text
	// fragments as they arrive. Errors that happen before the upstream
	// accepted the request are returned directly; errors after that are
	// delivered as a final chunk with Err set. The adapter closes the
	// channel when the stream ends or ctx is cancelled.
	Stream(ctx context.Context, req *Request) (<-chan StreamChunk, error)
}

// Pinger is implemented by providers that can cheaply check connectivity.
// The health endpoint uses it; providers without it are reported as
// configured but unchecked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// Unified request types
// ---------------------------------------------------------------------------

// Request is the internal representation of one generation call. The
// system prompt is kept separate because every backend treats it
// differently (Gemini systemInstruction, Anthropic top-level system,
// Ollama a leading "system" message).
type Request struct {
	Model    string    // overrides the adapter's default model when set
	System   string    // system prompt, may be empty
	Messages []Message // user/assistant turns
	Options  Options
}

// Message is a single conversation turn.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Options are sampling parameters. Zero values mean "use the backend's
// default"; none of them change control flow.
type Options struct {
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
}

// UserPrompt is a convenience for the common single-user-turn request.
func UserPrompt(system, user string, opts Options) *Request {
	return &Request{
		System:   system,
		Messages: []Message{{Role: "user", Content: user}},
		Options:  opts,
	}
}

// ---------------------------------------------------------------------------
// Unified response types
// ---------------------------------------------------------------------------

// Response is a complete (non-streaming) completion.
type Response struct {
	Provider string
	Model    string
	Content  string
	Usage    Usage
}

// Usage holds token counts when the backend reports them.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// StreamChunk is one piece of a streaming response.
type StreamChunk struct {
	Delta string // the new text fragment
	Done  bool   // true on the final chunk
	Err   error  // set on a terminal mid-stream failure

	// Usage is only populated on the final chunk, when the backend
	// reports it.
	Usage *Usage
}
