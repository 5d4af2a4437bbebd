package rag

import (
	"context"
	"errors"
	"fmt"

	"code-review-be/pkg/embedding"
)

// MetadataCodeKey holds the raw submitted code in every index entry.
const MetadataCodeKey = "code"

var ErrDimensionMismatch = errors.New("vector dimension does not match the index")

// Match is one nearest-neighbour hit, ordered by Score (cosine similarity) descending.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]interface{}
}

// Code returns the stored code snippet, or "" when the entry has none.
func (m Match) Code() string {
	code, _ := m.Metadata[MetadataCodeKey].(string)
	return code
}

// Index is a vector store keyed by id.
type Index interface {
	// EnsureSchema prepares the index for vectors of exactly dims entries,
	// discarding an existing index of another dimension.
	EnsureSchema(ctx context.Context, dims int) error
	Upsert(ctx context.Context, id, document string, vector []float32, metadata map[string]interface{}) error
	Search(ctx context.Context, vector []float32, k int) ([]Match, error)
}

// Gateway pairs an embedding provider with an index.
type Gateway struct {
	embedder embedding.EmbeddingProvider
	index    Index
}

func NewGateway(embedder embedding.EmbeddingProvider, index Index) *Gateway {
	return &Gateway{embedder: embedder, index: index}
}

const sampleText = "func main() {}"

// EnsureIndex must succeed before the first Store or Query. It embeds a
// sample so a model whose real output length differs from the configured
// dimension fails here instead of on every request.
func (g *Gateway) EnsureIndex(ctx context.Context) error {
	dims := g.embedder.Dimensions()
	if dims <= 0 {
		return fmt.Errorf("embedding provider reports %d dimensions", dims)
	}
	vec, err := g.embed(ctx, sampleText)
	if err != nil {
		return fmt.Errorf("check embedding dimension: %w", err)
	}
	if len(vec) != dims {
		return fmt.Errorf("%w: model returned %d values, index expects %d", ErrDimensionMismatch, len(vec), dims)
	}
	if err := g.index.EnsureSchema(ctx, dims); err != nil {
		return fmt.Errorf("provision similarity index (%d dims): %w", dims, err)
	}
	return nil
}

// Store embeds text and upserts it under id with metadata {"code": text}.
func (g *Gateway) Store(ctx context.Context, id, text string) error {
	vec, err := g.embed(ctx, text)
	if err != nil {
		return err
	}
	return g.index.Upsert(ctx, id, text, vec, map[string]interface{}{MetadataCodeKey: text})
}

func (g *Gateway) Query(ctx context.Context, text string, k int) ([]Match, error) {
	if k <= 0 {
		return []Match{}, nil
	}
	vec, err := g.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return g.index.Search(ctx, vec, k)
}

func (g *Gateway) embed(ctx context.Context, text string) ([]float32, error) {
	res, err := g.embedder.Generate(ctx, text, embedding.TaskSemanticSimilarity)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return res.Embedding.Values, nil
}
