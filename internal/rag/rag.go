// Package rag retrieves reference passages that are pasted into tutoring
// prompts. Retrieval is best effort: a failing backend degrades the answer,
// never the request.
package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// DefaultK is how many passages a chat prompt gets.
const DefaultK = 2

// Document is one reference passage.
type Document struct {
	Title   string  `bson:"title" json:"title"`
	Content string  `bson:"content" json:"content"`
	Score   float64 `bson:"score,omitempty" json:"-"`
}

// Retriever finds up to k passages relevant to query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Document, error)
}

// Format renders passages as a numbered list for a prompt.
func Format(docs []Document) string {
	var b strings.Builder
	for i, d := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if d.Title != "" {
			fmt.Fprintf(&b, "[%d] %s\n%s", i+1, d.Title, d.Content)
		} else {
			fmt.Fprintf(&b, "[%d] %s", i+1, d.Content)
		}
	}
	return b.String()
}

// Context returns formatted passages for query, or "" when r is nil, the
// lookup fails or nothing matches.
func Context(ctx context.Context, r Retriever, query string, k int, logger *zap.Logger) string {
	if r == nil || strings.TrimSpace(query) == "" {
		return ""
	}
	docs, err := r.Retrieve(ctx, query, k)
	if err != nil {
		if logger != nil {
			logger.Warn("knowledge retrieval failed", zap.Error(err))
		}
		return ""
	}
	return Format(docs)
}

// ---------------------------------------------------------------------------
// In-memory retriever
// ---------------------------------------------------------------------------

// MemoryRetriever scores documents by how many query terms they contain.
// It serves small fixed corpora and tests.
type MemoryRetriever struct {
	docs []Document
}

func NewMemoryRetriever(docs ...Document) *MemoryRetriever {
	return &MemoryRetriever{docs: docs}
}

func (m *MemoryRetriever) Retrieve(ctx context.Context, query string, k int) ([]Document, error) {
	terms := terms(query)
	if len(terms) == 0 || k <= 0 {
		return nil, nil
	}

	var hits []Document
	for _, d := range m.docs {
		text := strings.ToLower(d.Title + " " + d.Content)
		score := 0.0
		for _, t := range terms {
			if strings.Contains(text, t) {
				score++
			}
		}
		if score > 0 {
			d.Score = score
			hits = append(hits, d)
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// terms lowercases query and drops words too short to carry meaning.
func terms(query string) []string {
	var out []string
	for _, w := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if len(w) >= 3 {
			out = append(out, w)
		}
	}
	return out
}
