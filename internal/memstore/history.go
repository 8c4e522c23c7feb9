// Package memstore provides in-memory stores and gateways for tests and
// single-process deployments.
package memstore

import (
	"context"
	"sync"

	"github.com/capitalize-ai/support-agent/internal/model"
)

type threadKey struct {
	tenantID string
	threadID string
}

// History is an in-memory History Store.
type History struct {
	mu      sync.RWMutex
	threads map[threadKey][]model.Turn
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{threads: make(map[threadKey][]model.Turn)}
}

// Append assigns the next sequence number and stores turn. A turn ID that
// is already stored returns the stored turn.
func (h *History) Append(_ context.Context, turn model.Turn) (model.Turn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := threadKey{turn.TenantID, turn.ThreadID}
	turns := h.threads[key]
	for _, existing := range turns {
		if existing.ID == turn.ID {
			return existing, nil
		}
	}

	turn.SequenceNo = uint64(len(turns)) + 1
	h.threads[key] = append(turns, turn)
	return turn, nil
}

// Last returns the thread's most recent turn, or nil.
func (h *History) Last(_ context.Context, tenantID, threadID string) (*model.Turn, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	turns := h.threads[threadKey{tenantID, threadID}]
	if len(turns) == 0 {
		return nil, nil
	}
	last := turns[len(turns)-1]
	return &last, nil
}

// List returns turns after afterSequence in order.
func (h *History) List(_ context.Context, tenantID, threadID string, afterSequence uint64) ([]model.Turn, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	turns := h.threads[threadKey{tenantID, threadID}]
	if afterSequence >= uint64(len(turns)) {
		return []model.Turn{}, nil
	}
	out := make([]model.Turn, len(turns)-int(afterSequence))
	copy(out, turns[afterSequence:])
	return out, nil
}
