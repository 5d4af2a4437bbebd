package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

type memoryEntry struct {
	vector   []float32
	metadata map[string]interface{}
}

// MemoryIndex is an exact cosine-similarity index held in process memory.
// Used with the sqlite development database and in tests.
type MemoryIndex struct {
	mu      sync.RWMutex
	dims    int
	entries map[string]memoryEntry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]memoryEntry)}
}

func (m *MemoryIndex) EnsureSchema(_ context.Context, dims int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dims != dims {
		m.entries = make(map[string]memoryEntry)
		m.dims = dims
	}
	return nil
}

func (m *MemoryIndex) Upsert(_ context.Context, id, _ string, vector []float32, metadata map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkDims(vector); err != nil {
		return err
	}

	stored := make([]float32, len(vector))
	copy(stored, vector)
	meta := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	m.entries[id] = memoryEntry{vector: stored, metadata: meta}
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, vector []float32, k int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.checkDims(vector); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(m.entries))
	for id, e := range m.entries {
		matches = append(matches, Match{
			ID:       id,
			Score:    cosineSimilarity(vector, e.vector),
			Metadata: e.metadata,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})

	if k >= 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryIndex) checkDims(vector []float32) error {
	if m.dims > 0 && len(vector) != m.dims {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), m.dims)
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
