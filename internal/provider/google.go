package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// GoogleProvider struct + constructor
// ---------------------------------------------------------------------------

// GoogleProvider implements Provider for Google's Gemini API. It translates
// the unified Request into Gemini's generateContent format, makes the HTTP
// call, and translates the response back.
type GoogleProvider struct {
	apiKey  string        // sent as the ?key= query parameter, not a header
	baseURL string        // e.g. "https://generativelanguage.googleapis.com/v1beta"
	model   string        // default model, e.g. "gemini-2.5-flash"
	timeout time.Duration // bound for single-shot calls
	client  *http.Client
}

// NewGoogleProvider creates a GoogleProvider. The *http.Client is injected
// so main can configure transport timeouts and tests can point it at a
// recorder or an httptest server.
func NewGoogleProvider(apiKey, baseURL, model string, timeout time.Duration, client *http.Client) *GoogleProvider {
	return &GoogleProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		timeout: timeout,
		client:  client,
	}
}

// Name returns the provider identifier.
func (g *GoogleProvider) Name() string {
	return "google"
}

// ---------------------------------------------------------------------------
// Gemini API types (unexported)
// ---------------------------------------------------------------------------

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

// geminiContent is one message. Gemini uses "parts" because it supports
// multimodal input; for text we always send a single part.
type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	TopK            int      `json:"topK,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata"`
	Error         *geminiError         `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// geminiError is the in-band error object Gemini sometimes returns with a
// 200 status.
type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ---------------------------------------------------------------------------
// Request translation
// ---------------------------------------------------------------------------

// toGeminiRequest translates the unified Request into Gemini's format:
//  1. System prompt goes into systemInstruction
//  2. Messages become contents with parts ("assistant" becomes "model")
//  3. Sampling options go inside generationConfig
func toGeminiRequest(req *Request) *geminiRequest {
	gr := &geminiRequest{}

	if req.System != "" {
		gr.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: req.System}},
		}
	}

	for _, msg := range req.Messages {
		role := msg.Role
		if role == "assistant" {
			role = "model"
		}
		gr.Contents = append(gr.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}

	opts := req.Options
	if opts != (Options{}) {
		cfg := &geminiGenerationConfig{
			TopK:            opts.TopK,
			MaxOutputTokens: opts.MaxOutputTokens,
		}
		if opts.Temperature > 0 {
			t := opts.Temperature
			cfg.Temperature = &t
		}
		if opts.TopP > 0 {
			p := opts.TopP
			cfg.TopP = &p
		}
		gr.GenerationConfig = cfg
	}

	return gr
}

func (g *GoogleProvider) modelFor(req *Request) string {
	if req.Model != "" {
		return req.Model
	}
	return g.model
}

// newRequest builds the POST for either generateContent or
// streamGenerateContent. The API key goes in the query string.
func (g *GoogleProvider) newRequest(ctx context.Context, req *Request, method string) (*http.Request, error) {
	body, err := json.Marshal(toGeminiRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:%s", g.baseURL, g.modelFor(req), method)
	if method == "streamGenerateContent" {
		url += "?alt=sse&key=" + g.apiKey
	} else {
		url += "?key=" + g.apiKey
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

// ---------------------------------------------------------------------------
// Non-streaming: Complete
// ---------------------------------------------------------------------------

// Complete sends a request to generateContent and returns the whole text.
// The call is bounded by the provider timeout; exceeding it yields
// ErrTimeout.
func (g *GoogleProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	httpReq, err := g.newRequest(ctx, req, "generateContent")
	if err != nil {
		return nil, err
	}

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, Classify(g.Name(), fmt.Errorf("sending request to gemini: %w", err))
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, &APIError{Provider: g.Name(), StatusCode: httpResp.StatusCode, Body: errBody}
	}

	var geminiResp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&geminiResp); err != nil {
		return nil, Classify(g.Name(), fmt.Errorf("decoding gemini response: %w: %w", ErrMalformedOutput, err))
	}

	if geminiResp.Error != nil {
		return nil, &APIError{Provider: g.Name(), StatusCode: geminiResp.Error.Code, Body: geminiResp.Error.Message}
	}

	// Gemini can return multiple candidates; like OpenAI's choices[0] we
	// only use the first.
	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates: %w", ErrMalformedOutput)
	}

	var text strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	resp := &Response{
		Provider: g.Name(),
		Model:    g.modelFor(req),
		Content:  text.String(),
	}
	if geminiResp.UsageMetadata != nil {
		resp.Usage = Usage{
			PromptTokens:     geminiResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      geminiResp.UsageMetadata.TotalTokenCount,
		}
	}

	return resp, nil
}

// ---------------------------------------------------------------------------
// Streaming: Stream
// ---------------------------------------------------------------------------

// Stream posts to streamGenerateContent?alt=sse and returns a channel of
// chunks fed by a goroutine that reads the SSE body line by line.
//
// The channel is unbuffered: the goroutine won't read the next SSE event
// until the consumer has taken the current chunk, which gives natural
// backpressure all the way to the client socket.
func (g *GoogleProvider) Stream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	httpReq, err := g.newRequest(ctx, req, "streamGenerateContent")
	if err != nil {
		return nil, err
	}

	// No defer Body.Close() here: the goroutine below owns the body.
	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, Classify(g.Name(), fmt.Errorf("sending request to gemini: %w", err))
	}

	// Check for HTTP errors before starting the goroutine so they surface
	// as a "failed before first output" error the pipeline can fall back on.
	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, &APIError{Provider: g.Name(), StatusCode: httpResp.StatusCode, Body: errBody}
	}

	ch := make(chan StreamChunk)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		// send delivers a chunk unless the consumer has gone away.
		send := func(c StreamChunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()

			// Blank separators and SSE comments are skipped.
			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			var geminiResp geminiResponse
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &geminiResp); err != nil {
				send(StreamChunk{
					Done: true,
					Err:  fmt.Errorf("decoding gemini stream event: %w: %w", ErrMalformedOutput, err),
				})
				return
			}

			if geminiResp.Error != nil {
				send(StreamChunk{
					Done: true,
					Err:  &APIError{Provider: g.Name(), StatusCode: geminiResp.Error.Code, Body: geminiResp.Error.Message},
				})
				return
			}

			if len(geminiResp.Candidates) == 0 {
				continue
			}
			candidate := geminiResp.Candidates[0]

			var delta string
			for _, part := range candidate.Content.Parts {
				delta += part.Text
			}

			chunk := StreamChunk{Delta: delta}

			// A non-empty finishReason ("STOP", "MAX_TOKENS", ...) marks the
			// last event; usage metadata rides along with it.
			if candidate.FinishReason != "" {
				chunk.Done = true
				if geminiResp.UsageMetadata != nil {
					chunk.Usage = &Usage{
						PromptTokens:     geminiResp.UsageMetadata.PromptTokenCount,
						CompletionTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
						TotalTokens:      geminiResp.UsageMetadata.TotalTokenCount,
					}
				}
			}

			if !send(chunk) || chunk.Done {
				return
			}
		}

		// scanner.Err() is nil on clean EOF.
		if err := scanner.Err(); err != nil {
			send(StreamChunk{
				Done: true,
				Err:  Classify(g.Name(), fmt.Errorf("reading gemini stream: %w", err)),
			})
		}
	}()

	return ch, nil
}

// Ping fetches the model metadata, which needs a valid key but generates
// nothing.
func (g *GoogleProvider) Ping(ctx context.Context) error {
	url := fmt.Sprintf("%s/models/%s?key=%s", g.baseURL, g.model, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return Classify(g.Name(), err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return &APIError{Provider: g.Name(), StatusCode: httpResp.StatusCode, Body: http.StatusText(httpResp.StatusCode)}
	}
	return nil
}
