package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ollamaUpstream(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		var body ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		// The system prompt travels as a leading message.
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Equal(t, "llama-test", body.Model)

		if !body.Stream {
			io.WriteString(w, `{"model":"llama-test","message":{"role":"assistant","content":"Use goggles."},"done":true,"prompt_eval_count":4,"eval_count":2}`)
			return
		}

		require.NotNil(t, body.Options)
		assert.Equal(t, 256, body.Options.NumPredict)
		w.Header().Set("Content-Type", "application/x-ndjson")
		io.WriteString(w, `{"message":{"role":"assistant","content":"- Wear"},"done":false}`+"\n")
		io.WriteString(w, `{"message":{"role":"assistant","content":" goggles"},"done":false}`+"\n")
		io.WriteString(w, `{"message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":9,"eval_count":2}`+"\n")
	})
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"models":[{"name":"llama-test"}]}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaComplete(t *testing.T) {
	srv := ollamaUpstream(t)
	o := NewOllamaProvider(srv.URL, "llama-test", time.Second, srv.Client())

	resp, err := o.Complete(context.Background(), UserPrompt("tutor", "safety?", Options{}))
	require.NoError(t, err)
	assert.Equal(t, "Use goggles.", resp.Content)
	assert.Equal(t, 6, resp.Usage.TotalTokens)
}

func TestOllamaStream(t *testing.T) {
	srv := ollamaUpstream(t)
	o := NewOllamaProvider(srv.URL, "llama-test", time.Second, srv.Client())

	ch, err := o.Stream(context.Background(), UserPrompt("tutor", "safety?", Options{MaxOutputTokens: 256}))
	require.NoError(t, err)

	var deltas []string
	var last StreamChunk
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		if chunk.Delta != "" {
			deltas = append(deltas, chunk.Delta)
		}
		last = chunk
	}

	assert.Equal(t, []string{"- Wear", " goggles"}, deltas)
	assert.True(t, last.Done)
	require.NotNil(t, last.Usage)
	assert.Equal(t, 11, last.Usage.TotalTokens)
}

func TestOllamaMidStreamMalformedLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"message":{"content":"partial"},"done":false}`+"\n")
		io.WriteString(w, "not json\n")
	}))
	defer srv.Close()

	o := NewOllamaProvider(srv.URL, "llama-test", time.Second, srv.Client())
	ch, err := o.Stream(context.Background(), UserPrompt("", "x", Options{}))
	require.NoError(t, err)

	text, err := collect(t, ch)
	assert.Equal(t, "partial", text)
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestOllamaStreamCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"message":{"content":"one"},"done":false}`+"\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	o := NewOllamaProvider(srv.URL, "llama-test", time.Second, srv.Client())
	ch, err := o.Stream(ctx, UserPrompt("", "x", Options{}))
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "one", first.Delta)
	cancel()

	// The adapter must stop and close the channel promptly.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after cancellation")
		}
	}
}

func TestOllamaPing(t *testing.T) {
	srv := ollamaUpstream(t)
	assert.NoError(t, NewOllamaProvider(srv.URL, "llama-test", time.Second, srv.Client()).Ping(context.Background()))
}
