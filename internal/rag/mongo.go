package rag

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRetriever runs $text searches over a collection of Documents.
type MongoRetriever struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoRetriever connects, pings and makes sure the text index exists.
func NewMongoRetriever(ctx context.Context, uri, database, collection string) (*MongoRetriever, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "title", Value: "text"}, {Key: "content", Value: "text"}},
		Options: options.Index().SetName("knowledge_text"),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("creating text index: %w", err)
	}

	return &MongoRetriever{client: client, coll: coll}, nil
}

// textSearch builds the filter and options for a top-k relevance query.
func textSearch(query string, k int) (bson.M, *options.FindOptions) {
	filter := bson.M{"$text": bson.M{"$search": query}}
	score := bson.M{"$meta": "textScore"}
	opts := options.Find().
		SetProjection(bson.M{"title": 1, "content": 1, "score": score}).
		SetSort(bson.D{{Key: "score", Value: score}}).
		SetLimit(int64(k))
	return filter, opts
}

func (m *MongoRetriever) Retrieve(ctx context.Context, query string, k int) ([]Document, error) {
	filter, opts := textSearch(query, k)

	cursor, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("searching knowledge base: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding knowledge documents: %w", err)
	}
	return docs, nil
}

// Ping reports whether the knowledge base is reachable.
func (m *MongoRetriever) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoRetriever) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
