package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/support-agent/internal/model"
)

const (
	tenantA = "6f1c1d2e-8a4b-4c3d-9e5f-0a1b2c3d4e5f"
	tenantB = "7a2d2e3f-9b5c-4d4e-8f60-1b2c3d4e5f60"
	thread1 = "0b9e3c7a-1d2e-4f5a-8b6c-7d8e9f0a1b2c"
)

func TestHistory_GaplessUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	h := NewHistory()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.Append(ctx, model.Turn{
				ID:       fmt.Sprintf("t-%d", i),
				TenantID: tenantA,
				ThreadID: thread1,
				Sender:   model.SenderUser,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	turns, err := h.List(ctx, tenantA, thread1, 0)
	require.NoError(t, err)
	require.Len(t, turns, 50)
	for i, turn := range turns {
		assert.Equal(t, uint64(i+1), turn.SequenceNo)
	}

	tail, err := h.List(ctx, tenantA, thread1, 48)
	require.NoError(t, err)
	assert.Len(t, tail, 2)
}

func TestHistory_AppendIsIdempotentByID(t *testing.T) {
	ctx := context.Background()
	h := NewHistory()
	turn := model.Turn{ID: "same", TenantID: tenantA, ThreadID: thread1}

	first, err := h.Append(ctx, turn)
	require.NoError(t, err)
	again, err := h.Append(ctx, turn)
	require.NoError(t, err)
	assert.Equal(t, first.SequenceNo, again.SequenceNo)

	other, err := h.List(ctx, tenantB, thread1, 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestCheckpoints_VersionCheck(t *testing.T) {
	ctx := context.Background()
	c := NewCheckpoints()
	state := model.AgentState{TenantID: tenantA, ThreadID: thread1, Status: model.RunRunning}

	_, err := c.Save(ctx, state, 3)
	assert.ErrorIs(t, err, model.ErrConcurrentResumeConflict)

	v, err := c.Save(ctx, state, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	_, err = c.Save(ctx, state, 0)
	assert.ErrorIs(t, err, model.ErrConcurrentResumeConflict)

	state.TenantID = tenantB
	_, err = c.Save(ctx, state, 1)
	assert.ErrorIs(t, err, model.ErrConcurrentResumeConflict)

	cp, err := c.Load(ctx, tenantB, thread1)
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestCheckpoints_LoadReturnsIndependentCopy(t *testing.T) {
	ctx := context.Background()
	c := NewCheckpoints()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c.SetClock(func() time.Time { return fixed })

	state := model.AgentState{
		TenantID: tenantA,
		ThreadID: thread1,
		Messages: model.NewMessageLog(model.Message{ID: "m1", Content: "hi"}),
	}
	_, err := c.Save(ctx, state, 0)
	require.NoError(t, err)

	cp, err := c.Load(ctx, tenantA, thread1)
	require.NoError(t, err)
	cp.State.Messages = cp.State.Messages.Append(model.Message{ID: "m2"})

	again, err := c.Load(ctx, tenantA, thread1)
	require.NoError(t, err)
	assert.Equal(t, 1, again.State.Messages.Len())
	assert.True(t, fixed.Equal(again.UpdatedAt))
}

func TestTickets_Lifecycle(t *testing.T) {
	ctx := context.Background()
	tk := NewTickets()

	first, err := tk.Escalate(ctx, tenantA, thread1)
	require.NoError(t, err)
	second, err := tk.Escalate(ctx, tenantA, thread1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, tk.Count(tenantA, thread1))

	resolved, err := tk.Resolve(ctx, tenantA, thread1)
	require.NoError(t, err)
	assert.Equal(t, model.TicketResolved, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)

	_, err = tk.Resolve(ctx, tenantA, thread1)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = tk.Escalate(ctx, tenantA, thread1)
	require.NoError(t, err)
	assert.Equal(t, 2, tk.Count(tenantA, thread1))
}

func TestCache_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	c := NewCache(HashEmbedder{}, 0.9)

	require.NoError(t, c.Write(ctx, tenantA, "How do I export to PDF?", "File > Export.", time.Hour))

	hit, err := c.Lookup(ctx, tenantA, "how do i export to pdf")
	require.NoError(t, err)
	require.NotNil(t, hit)

	miss, err := c.Lookup(ctx, tenantB, "How do I export to PDF?")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestRetriever_TopK(t *testing.T) {
	ctx := context.Background()
	r := NewRetriever(HashEmbedder{})

	require.NoError(t, r.Index(ctx, tenantA, model.ContextChunk{ID: "a", Content: "export a docx file to pdf"}))
	require.NoError(t, r.Index(ctx, tenantA, model.ContextChunk{ID: "b", Content: "billing and invoices"}))
	require.NoError(t, r.Index(ctx, tenantB, model.ContextChunk{ID: "c", Content: "export a docx file to pdf"}))

	chunks, err := r.Search(ctx, tenantA, "export docx to pdf", 1)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a", chunks[0].ID)
}
