// Package stream runs chat requests through the provider fallback chain and
// writes the resulting events to clients as newline-delimited JSON.
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ---------------------------------------------------------------------------
// NDJSON writer
// ---------------------------------------------------------------------------

// ContentType is the media type of a /chat response body.
const ContentType = "application/x-ndjson"

// Write reads events from the channel and writes each one to w as a single
// JSON line, flushing after every line so the client sees tokens arrive as
// the provider produces them:
//
//	{"token":"- Acids"}
//	{"token":" donate protons"}
//	{"done":true}
//
// Write returns after the terminal event or when the channel closes. A write
// error means the client is gone; the caller cancels the request context,
// which stops the pipeline.
func Write(w http.ResponseWriter, events <-chan Event) error {
	// --- Step 1: we need Flush() to push each line out immediately ---
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support flushing (http.Flusher)")
	}

	// --- Step 2: headers must be set before the first body write ---
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	// --- Step 3: one JSON object per line ---
	for event := range events {
		line, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshaling stream event: %w", err)
		}
		line = append(line, '\n')

		if _, err := w.Write(line); err != nil {
			return fmt.Errorf("writing stream event: %w", err)
		}
		flusher.Flush()

		if event.Terminal() {
			return nil
		}
	}

	return nil
}
