package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/capitalize-ai/support-agent/internal/cache"
	"github.com/capitalize-ai/support-agent/internal/llm"
	"github.com/capitalize-ai/support-agent/internal/model"
)

type indexedChunk struct {
	chunk  model.ContextChunk
	vector []float32
}

// Retriever is an in-memory Retrieval Gateway.
type Retriever struct {
	mu       sync.RWMutex
	embedder llm.Embedder
	tenants  map[string][]indexedChunk
}

// NewRetriever creates an empty retriever.
func NewRetriever(embedder llm.Embedder) *Retriever {
	return &Retriever{embedder: embedder, tenants: make(map[string][]indexedChunk)}
}

// Index adds a chunk to the tenant's knowledge, embedding its content.
func (r *Retriever) Index(ctx context.Context, tenantID string, chunk model.ContextChunk) error {
	vector, err := r.embedder.Embed(ctx, chunk.Content)
	if err != nil {
		return fmt.Errorf("failed to embed chunk: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[tenantID] = append(r.tenants[tenantID], indexedChunk{chunk: chunk, vector: vector})
	return nil
}

// Search returns up to topK of the tenant's chunks, most similar first.
func (r *Retriever) Search(ctx context.Context, tenantID, query string, topK int) ([]model.ContextChunk, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrRetrievalUnavailable, err)
	}

	r.mu.RLock()
	indexed := r.tenants[tenantID]
	scored := make([]model.ContextChunk, len(indexed))
	for i, ic := range indexed {
		scored[i] = ic.chunk
		scored[i].Score = cache.Cosine(vector, ic.vector)
	}
	r.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK >= 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}
