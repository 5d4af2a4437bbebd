package embedding

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"
)

// TaskSemanticSimilarity is used for both stored and queried code so the two
// sides of a comparison live in the same embedding space.
const TaskSemanticSimilarity = "SEMANTIC_SIMILARITY"

// EmbeddingProvider turns text into a unit-length vector of fixed size.
type EmbeddingProvider interface {
	Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error)
	// Dimensions is the exact length of every vector Generate returns.
	Dimensions() int
}

type EmbeddingResponseEmbedding struct {
	Values []float32 `json:"values"`
}

type EmbeddingResponse struct {
	Embedding EmbeddingResponseEmbedding `json:"embedding"`
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

// finalize checks the dimension and normalizes to unit length, which the
// cosine distance in the index relies on.
func finalize(values []float32, dims int) (*EmbeddingResponse, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("embedding provider returned an empty vector")
	}
	if dims > 0 && len(values) != dims {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(values), dims)
	}
	return &EmbeddingResponse{
		Embedding: EmbeddingResponseEmbedding{
			Values: NormalizeVector(values),
		},
	}, nil
}

// NormalizeVector scales vec to magnitude 1. The zero vector is returned as is.
func NormalizeVector(vec []float32) []float32 {
	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v) * float64(v)
	}
	magnitude = math.Sqrt(magnitude)

	if magnitude == 0 {
		return vec
	}

	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / magnitude)
	}
	return normalized
}
