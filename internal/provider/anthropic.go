package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

// ---------------------------------------------------------------------------
// AnthropicProvider struct + constructor
// ---------------------------------------------------------------------------

// AnthropicProvider implements Provider on top of the official Anthropic Go
// SDK. The SDK takes care of the Messages API wire format and the named SSE
// events; this adapter only maps our Request onto MessageNewParams and the
// SDK's events back onto StreamChunk.
type AnthropicProvider struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
}

// NewAnthropicProvider creates an AnthropicProvider. SDK-level retries are
// disabled: retry and fallback policy belongs to the caller.
func NewAnthropicProvider(apiKey, baseURL, model string, timeout time.Duration, client *http.Client) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(client),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &AnthropicProvider{
		client:  anthropic.NewClient(opts...),
		model:   model,
		timeout: timeout,
	}
}

// Name returns the provider identifier.
func (a *AnthropicProvider) Name() string {
	return "anthropic"
}

// ---------------------------------------------------------------------------
// Request translation
// ---------------------------------------------------------------------------

// defaultMaxTokens is used when the caller doesn't set MaxOutputTokens.
// Anthropic rejects requests without max_tokens.
const defaultMaxTokens = 1024

// toAnthropicParams translates the unified Request:
//  1. System prompt becomes the top-level system block
//  2. Messages map directly (roles are already compatible)
//  3. max_tokens gets a default if not set
func (a *AnthropicProvider) toAnthropicParams(req *Request) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = a.model
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: defaultMaxTokens,
	}
	if req.Options.MaxOutputTokens > 0 {
		params.MaxTokens = int64(req.Options.MaxOutputTokens)
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Options.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Options.Temperature)
	}
	if req.Options.TopP > 0 {
		params.TopP = param.NewOpt(req.Options.TopP)
	}
	if req.Options.TopK > 0 {
		params.TopK = param.NewOpt(int64(req.Options.TopK))
	}

	for _, msg := range req.Messages {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == "assistant" {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	return params
}

// classifyAnthropic maps SDK errors onto our typed conditions. HTTP status
// errors come back as *anthropic.Error; everything else is transport.
func (a *AnthropicProvider) classifyAnthropic(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &APIError{Provider: a.Name(), StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
	}
	return Classify(a.Name(), err)
}

// ---------------------------------------------------------------------------
// Non-streaming: Complete
// ---------------------------------------------------------------------------

// Complete calls Messages.New and returns the first text block.
func (a *AnthropicProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	message, err := a.client.Messages.New(ctx, a.toAnthropicParams(req))
	if err != nil {
		return nil, a.classifyAnthropic(err)
	}

	// Content is an array because responses can mix text and tool_use
	// blocks; we only want the first text block.
	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in anthropic response: %w", ErrMalformedOutput)
	}

	return &Response{
		Provider: a.Name(),
		Model:    string(message.Model),
		Content:  text,
		Usage: Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}, nil
}

// ---------------------------------------------------------------------------
// Streaming: Stream
// ---------------------------------------------------------------------------

// Stream calls Messages.NewStreaming. The SDK defers request errors until
// the first Next(), so we pull the first event here: a failure at that
// point is returned directly (nothing has been emitted yet), anything later
// arrives as a terminal chunk.
func (a *AnthropicProvider) Stream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	stream := a.client.Messages.NewStreaming(ctx, a.toAnthropicParams(req))

	if !stream.Next() {
		err := stream.Err()
		stream.Close()
		if err == nil {
			err = fmt.Errorf("anthropic stream ended before any event: %w", ErrMalformedOutput)
		}
		return nil, a.classifyAnthropic(err)
	}

	ch := make(chan StreamChunk)

	go func() {
		defer close(ch)
		defer stream.Close()

		send := func(c StreamChunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		// Metadata is spread across events: input tokens on
		// message_start, output tokens on message_delta.
		var inputTokens, outputTokens int64

		for {
			switch event := stream.Current().AsAny().(type) {
			case anthropic.MessageStartEvent:
				inputTokens = event.Message.Usage.InputTokens

			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := event.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					if !send(StreamChunk{Delta: delta.Text}) {
						return
					}
				}

			case anthropic.MessageDeltaEvent:
				outputTokens = event.Usage.OutputTokens

			case anthropic.MessageStopEvent:
				send(StreamChunk{
					Done: true,
					Usage: &Usage{
						PromptTokens:     int(inputTokens),
						CompletionTokens: int(outputTokens),
						TotalTokens:      int(inputTokens + outputTokens),
					},
				})
				return
			}

			if !stream.Next() {
				break
			}
		}

		if err := stream.Err(); err != nil {
			send(StreamChunk{Done: true, Err: a.classifyAnthropic(err)})
		}
	}()

	return ch, nil
}
