package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/capitalize-ai/support-agent/internal/model"
)

type storedCheckpoint struct {
	tenantID  string
	state     []byte
	version   int64
	updatedAt time.Time
}

// Checkpoints is an in-memory Checkpoint Store. States are stored encoded so
// callers never share memory with the store.
type Checkpoints struct {
	mu      sync.Mutex
	threads map[string]storedCheckpoint
	now     func() time.Time
}

// NewCheckpoints creates an empty checkpoint store.
func NewCheckpoints() *Checkpoints {
	return &Checkpoints{
		threads: make(map[string]storedCheckpoint),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the clock used to stamp saves.
func (c *Checkpoints) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Load returns the thread's checkpoint for tenantID, or nil.
func (c *Checkpoints) Load(_ context.Context, tenantID, threadID string) (*model.Checkpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored, ok := c.threads[threadID]
	if !ok || stored.tenantID != tenantID {
		return nil, nil
	}

	var state model.AgentState
	if err := json.Unmarshal(stored.state, &state); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &model.Checkpoint{State: state, Version: stored.version, UpdatedAt: stored.updatedAt}, nil
}

// Save stores state when the current version equals expected.
func (c *Checkpoints) Save(_ context.Context, state model.AgentState, expected int64) (int64, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return 0, fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	stored, ok := c.threads[state.ThreadID]
	switch {
	case !ok && expected != 0,
		ok && (stored.tenantID != state.TenantID || stored.version != expected):
		return 0, model.ErrConcurrentResumeConflict
	}

	next := expected + 1
	c.threads[state.ThreadID] = storedCheckpoint{
		tenantID:  state.TenantID,
		state:     data,
		version:   next,
		updatedAt: c.now(),
	}
	return next, nil
}
