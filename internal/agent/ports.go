// Package agent implements the support workflow engine: an explicit state
// machine over a thread's checkpointed AgentState.
package agent

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/capitalize-ai/support-agent/internal/model"
)

// CheckpointStore persists versioned AgentState snapshots.
type CheckpointStore interface {
	Load(ctx context.Context, tenantID, threadID string) (*model.Checkpoint, error)
	Save(ctx context.Context, state model.AgentState, expected int64) (int64, error)
}

// HistoryStore is the append-only turn log per thread.
type HistoryStore interface {
	Append(ctx context.Context, turn model.Turn) (model.Turn, error)
	Last(ctx context.Context, tenantID, threadID string) (*model.Turn, error)
	List(ctx context.Context, tenantID, threadID string, afterSequence uint64) ([]model.Turn, error)
}

// TicketRegistry records escalation status per thread.
type TicketRegistry interface {
	Current(ctx context.Context, tenantID, threadID string) (*model.Ticket, error)
	Escalate(ctx context.Context, tenantID, threadID string) (*model.Ticket, error)
	Resolve(ctx context.Context, tenantID, threadID string) (*model.Ticket, error)
}

// CacheGateway is the tenant-scoped semantic answer cache.
type CacheGateway interface {
	Lookup(ctx context.Context, tenantID, query string) (*model.CacheEntry, error)
	Write(ctx context.Context, tenantID, query, answer string, ttl time.Duration) error
}

// RetrievalGateway searches the tenant's knowledge.
type RetrievalGateway interface {
	Search(ctx context.Context, tenantID, query string, topK int) ([]model.ContextChunk, error)
}

// Emitter receives a run's ordered events.
type Emitter interface {
	Emit(model.Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(model.Event)

// Emit calls f(ev).
func (f EmitterFunc) Emit(ev model.Event) { f(ev) }

// MaxUtteranceBytes bounds a single user message.
const MaxUtteranceBytes = 100_000

// Request starts a run for one user utterance.
type Request struct {
	TenantID  string
	ThreadID  string
	Utterance string
}

// ValidateIDs checks the upstream tenant and thread identifiers.
func ValidateIDs(tenantID, threadID string) error {
	if _, err := uuid.Parse(tenantID); err != nil {
		return fmt.Errorf("%w: tenant_id %q", model.ErrAuthTrustViolation, tenantID)
	}
	if _, err := uuid.Parse(threadID); err != nil {
		return fmt.Errorf("%w: thread_id %q", model.ErrAuthTrustViolation, threadID)
	}
	return nil
}

// Validate checks the request before any store is touched.
func (r Request) Validate() error {
	if err := ValidateIDs(r.TenantID, r.ThreadID); err != nil {
		return err
	}
	if r.Utterance == "" || len(r.Utterance) > MaxUtteranceBytes || !utf8.ValidString(r.Utterance) {
		return ErrInvalidUtterance
	}
	return nil
}

// ResumeRequest carries a human answer for a paused thread.
type ResumeRequest struct {
	TenantID string
	ThreadID string
	Answer   string
}

// RunResult summarizes a finished run.
type RunResult struct {
	Status  model.RunStatus
	Node    model.Node
	Version int64
}

// ResumeOutcome summarizes a completed resolution.
type ResumeOutcome struct {
	Ticket  *model.Ticket
	State   model.AgentState
	Version int64
}
