package rag

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code-review-be/pkg/database"
	"code-review-be/pkg/embedding"
)

// letterEmbedder maps text to normalized letter frequencies over a-d, so
// texts built from the same letters are close.
type letterEmbedder struct {
	dims int
	err  error
}

func (e *letterEmbedder) Dimensions() int { return e.dims }

func (e *letterEmbedder) Generate(_ context.Context, text string, _ string) (*embedding.EmbeddingResponse, error) {
	if e.err != nil {
		return nil, e.err
	}
	vec := make([]float32, e.dims)
	for _, r := range text {
		if r >= 'a' && int(r-'a') < e.dims {
			vec[r-'a']++
		}
	}
	return &embedding.EmbeddingResponse{
		Embedding: embedding.EmbeddingResponseEmbedding{Values: embedding.NormalizeVector(vec)},
	}, nil
}

func newGateway(t *testing.T) (*Gateway, *MemoryIndex) {
	t.Helper()
	idx := NewMemoryIndex()
	g := NewGateway(&letterEmbedder{dims: 4}, idx)
	require.NoError(t, g.EnsureIndex(context.Background()))
	return g, idx
}

func TestGateway_StoreAndQuery(t *testing.T) {
	ctx := context.Background()
	g, idx := newGateway(t)

	require.NoError(t, g.Store(ctx, "a", "aaaa"))
	require.NoError(t, g.Store(ctx, "ab", "aabb"))
	require.NoError(t, g.Store(ctx, "d", "dddd"))
	assert.Equal(t, 3, idx.Len())

	matches, err := g.Query(ctx, "aaab", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, "ab", matches[1].ID)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
	assert.Equal(t, "aaaa", matches[0].Code())
}

func TestGateway_StoreThenQuerySameTextReturnsItself(t *testing.T) {
	ctx := context.Background()
	g, _ := newGateway(t)

	require.NoError(t, g.Store(ctx, "other", "cccc"))
	id := uuid.NewString()
	require.NoError(t, g.Store(ctx, id, "abcd"))

	matches, err := g.Query(ctx, "abcd", 3)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, id, matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
}

func TestGateway_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	g, idx := newGateway(t)

	require.NoError(t, g.Store(ctx, "x", "aaaa"))
	require.NoError(t, g.Store(ctx, "x", "bbbb"))
	assert.Equal(t, 1, idx.Len())

	matches, err := g.Query(ctx, "bbbb", 1)
	require.NoError(t, err)
	assert.Equal(t, "bbbb", matches[0].Code())
}

func TestGateway_QueryEdges(t *testing.T) {
	ctx := context.Background()
	g, _ := newGateway(t)

	matches, err := g.Query(ctx, "abc", 3)
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = g.Query(ctx, "abc", 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestGateway_EmbedderFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("provider down")
	g := NewGateway(&letterEmbedder{dims: 4, err: boom}, NewMemoryIndex())

	assert.ErrorIs(t, g.Store(ctx, "id", "abc"), boom)
	_, err := g.Query(ctx, "abc", 3)
	assert.ErrorIs(t, err, boom)
}

func TestGateway_EnsureIndexRejectsZeroDims(t *testing.T) {
	g := NewGateway(&letterEmbedder{dims: 0}, NewMemoryIndex())
	assert.Error(t, g.EnsureIndex(context.Background()))
}

// shortEmbedder claims dims but always returns a vector of length n.
type shortEmbedder struct {
	dims int
	n    int
}

func (e shortEmbedder) Dimensions() int { return e.dims }

func (e shortEmbedder) Generate(context.Context, string, string) (*embedding.EmbeddingResponse, error) {
	return &embedding.EmbeddingResponse{
		Embedding: embedding.EmbeddingResponseEmbedding{Values: make([]float32, e.n)},
	}, nil
}

func TestGateway_EnsureIndexChecksModelOutput(t *testing.T) {
	idx := NewMemoryIndex()
	g := NewGateway(shortEmbedder{dims: 4, n: 3}, idx)

	err := g.EnsureIndex(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestGateway_EnsureIndexWithMisconfiguredOllama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
	defer srv.Close()

	g := NewGateway(embedding.NewOllamaProvider(srv.URL, "nomic-embed-text", 4), NewMemoryIndex())
	err := g.EnsureIndex(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
}

func TestGateway_EnsureIndexFailsWhenProviderDown(t *testing.T) {
	boom := errors.New("provider down")
	g := NewGateway(&letterEmbedder{dims: 4, err: boom}, NewMemoryIndex())
	assert.ErrorIs(t, g.EnsureIndex(context.Background()), boom)
}

func TestMemoryIndex_DimensionChecks(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.EnsureSchema(ctx, 3))

	err := idx.Upsert(ctx, "x", "doc", []float32{1, 0}, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	require.NoError(t, idx.Upsert(ctx, "x", "doc", []float32{1, 0, 0}, nil))
	_, err = idx.Search(ctx, []float32{1}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	// re-provisioning with another dimension starts empty
	require.NoError(t, idx.EnsureSchema(ctx, 5))
	assert.Equal(t, 0, idx.Len())
}

// Runs only against a real postgres with the vector extension available.
func TestPgvectorIndex(t *testing.T) {
	dsn := os.Getenv("PGVECTOR_TEST_DSN")
	if dsn == "" {
		t.Skip("PGVECTOR_TEST_DSN not set")
	}
	ctx := context.Background()

	db, err := database.NewGormDBFromDSN(dsn)
	require.NoError(t, err)

	idx := NewPgvectorIndex(db)
	require.NoError(t, idx.EnsureSchema(ctx, 3))
	// a different dimension drops and recreates the table
	require.NoError(t, idx.EnsureSchema(ctx, 4))

	g := NewGateway(&letterEmbedder{dims: 4}, idx)
	require.NoError(t, g.Store(ctx, "a", "aaaa"))
	require.NoError(t, g.Store(ctx, "a", "aaab"))
	require.NoError(t, g.Store(ctx, "d", "dddd"))

	matches, err := g.Query(ctx, "aaab", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, "aaab", matches[0].Code())
	assert.InDelta(t, 1.0, matches[0].Score, 1e-5)
}
