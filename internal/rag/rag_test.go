package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap/zaptest"
)

var corpus = []Document{
	{Title: "Acids and bases", Content: "Acids donate protons; bases accept them."},
	{Title: "Redox", Content: "Oxidation is loss of electrons, reduction is gain."},
	{Title: "Neutralization", Content: "An acid and a base react to form salt and water."},
}

func TestMemoryRetriever(t *testing.T) {
	r := NewMemoryRetriever(corpus...)

	docs, err := r.Retrieve(context.Background(), "What happens when an acid meets a base?", DefaultK)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Acids and bases", docs[0].Title)
	assert.Equal(t, "Neutralization", docs[1].Title)

	none, err := r.Retrieve(context.Background(), "photosynthesis", DefaultK)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFormat(t *testing.T) {
	out := Format([]Document{{Title: "Redox", Content: "electrons move"}, {Content: "untitled"}})
	assert.Equal(t, "[1] Redox\nelectrons move\n\n[2] untitled", out)
	assert.Empty(t, Format(nil))
}

type failing struct{}

func (failing) Retrieve(context.Context, string, int) ([]Document, error) {
	return nil, errors.New("mongo down")
}

func TestContext(t *testing.T) {
	log := zaptest.NewLogger(t)

	assert.Empty(t, Context(context.Background(), nil, "acid", DefaultK, log))
	assert.Empty(t, Context(context.Background(), failing{}, "acid", DefaultK, log))
	assert.Contains(t, Context(context.Background(), NewMemoryRetriever(corpus...), "redox electrons", DefaultK, log), "[1] Redox")
}

func TestTextSearch(t *testing.T) {
	filter, opts := textSearch("titration endpoint", 2)

	assert.Equal(t, bson.M{"$text": bson.M{"$search": "titration endpoint"}}, filter)
	require.NotNil(t, opts.Limit)
	assert.Equal(t, int64(2), *opts.Limit)
	assert.Equal(t, bson.D{{Key: "score", Value: bson.M{"$meta": "textScore"}}}, opts.Sort)
}
