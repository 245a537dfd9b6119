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

// OllamaProvider implements Provider for a local Ollama server's /api/chat
// endpoint. Ollama needs no credential; an empty base URL disables it.
//
// Unlike Gemini and Anthropic, Ollama streams newline-delimited JSON rather
// than SSE: every line is a complete object and the last one has
// "done": true plus the token counts.
type OllamaProvider struct {
	baseURL string // e.g. "http://localhost:11434"
	model   string // e.g. "llama3.2:3b-instruct-q4_K_M"
	timeout time.Duration
	client  *http.Client
}

// NewOllamaProvider creates an OllamaProvider.
func NewOllamaProvider(baseURL, model string, timeout time.Duration, client *http.Client) *OllamaProvider {
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		timeout: timeout,
		client:  client,
	}
}

// Name returns the provider identifier.
func (o *OllamaProvider) Name() string {
	return "ollama"
}

// ---------------------------------------------------------------------------
// Ollama API types (unexported)
// ---------------------------------------------------------------------------

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

// ollamaMessage uses the same flat role + content shape as OpenAI. The
// system prompt is just a leading message with role "system".
type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaOptions maps our sampling options; num_predict is Ollama's name for
// the output token limit.
type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ollamaResponse is both the non-streaming body and each streamed line.
type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error,omitempty"`
}

func toOllamaRequest(req *Request, model string, stream bool) *ollamaRequest {
	or := &ollamaRequest{Model: model, Stream: stream}

	if req.System != "" {
		or.Messages = append(or.Messages, ollamaMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		or.Messages = append(or.Messages, ollamaMessage{Role: msg.Role, Content: msg.Content})
	}

	if req.Options != (Options{}) {
		or.Options = &ollamaOptions{
			Temperature: req.Options.Temperature,
			TopP:        req.Options.TopP,
			TopK:        req.Options.TopK,
			NumPredict:  req.Options.MaxOutputTokens,
		}
	}
	return or
}

func (o *OllamaProvider) modelFor(req *Request) string {
	if req.Model != "" {
		return req.Model
	}
	return o.model
}

func (o *OllamaProvider) post(ctx context.Context, req *Request, stream bool) (*http.Response, error) {
	body, err := json.Marshal(toOllamaRequest(req, o.modelFor(req), stream))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, Classify(o.Name(), fmt.Errorf("sending request to ollama: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, &APIError{Provider: o.Name(), StatusCode: httpResp.StatusCode, Body: errBody}
	}
	return httpResp, nil
}

// Complete sends a non-streaming chat request.
func (o *OllamaProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	httpResp, err := o.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var or ollamaResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&or); err != nil {
		return nil, Classify(o.Name(), fmt.Errorf("decoding ollama response: %w: %w", ErrMalformedOutput, err))
	}
	if or.Error != "" {
		return nil, &APIError{Provider: o.Name(), StatusCode: http.StatusOK, Body: or.Error}
	}

	return &Response{
		Provider: o.Name(),
		Model:    or.Model,
		Content:  or.Message.Content,
		Usage: Usage{
			PromptTokens:     or.PromptEvalCount,
			CompletionTokens: or.EvalCount,
			TotalTokens:      or.PromptEvalCount + or.EvalCount,
		},
	}, nil
}

// Stream sends a streaming chat request and forwards each NDJSON line's
// message content as a chunk.
func (o *OllamaProvider) Stream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	httpResp, err := o.post(ctx, req, true)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

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
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			var or ollamaResponse
			if err := json.Unmarshal([]byte(line), &or); err != nil {
				send(StreamChunk{
					Done: true,
					Err:  fmt.Errorf("decoding ollama stream line: %w: %w", ErrMalformedOutput, err),
				})
				return
			}
			if or.Error != "" {
				send(StreamChunk{
					Done: true,
					Err:  &APIError{Provider: o.Name(), StatusCode: http.StatusOK, Body: or.Error},
				})
				return
			}

			chunk := StreamChunk{Delta: or.Message.Content, Done: or.Done}
			if or.Done {
				chunk.Usage = &Usage{
					PromptTokens:     or.PromptEvalCount,
					CompletionTokens: or.EvalCount,
					TotalTokens:      or.PromptEvalCount + or.EvalCount,
				}
			}

			if !send(chunk) || chunk.Done {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			send(StreamChunk{
				Done: true,
				Err:  Classify(o.Name(), fmt.Errorf("reading ollama stream: %w", err)),
			})
		}
	}()

	return ch, nil
}

// Ping lists local models via /api/tags.
func (o *OllamaProvider) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		return Classify(o.Name(), err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return &APIError{Provider: o.Name(), StatusCode: httpResp.StatusCode, Body: http.StatusText(httpResp.StatusCode)}
	}
	return nil
}
