package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-agent/internal/model"
	"github.com/capitalize-ai/support-agent/pkg/metrics"
)

// Resume finishes a paused run with a human answer: the answer becomes the
// draft, overwrites the cache entry for the escalated question, is recorded
// as the agent turn, and the ticket is resolved.
//
// The thread must be awaiting resolution with a pending_human ticket. A
// resolution that fails after claiming the thread puts it back at
// ESCALATE_WAIT, and one whose process died is taken over once its lease
// expires, so a later Resume can always finish the ticket.
func (e *Engine) Resume(ctx context.Context, req ResumeRequest) (*ResumeOutcome, error) {
	if err := ValidateIDs(req.TenantID, req.ThreadID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Answer) == "" {
		return nil, ErrEmptyAnswer
	}

	log := e.logger.ForThread(req.TenantID, req.ThreadID).With(zap.String("op", "resume"))

	cp, err := e.deps.Checkpoints.Load(ctx, req.TenantID, req.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp == nil {
		return nil, fmt.Errorf("%w: thread has no checkpoint", model.ErrInvalidResumeState)
	}

	ticket, err := e.deps.Tickets.Current(ctx, req.TenantID, req.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ticket: %w", err)
	}
	pending := ticket != nil && ticket.Status == model.TicketPendingHuman

	s := cp.State
	switch {
	case s.Status == model.RunPaused && s.CurrentNode == model.NodeEscalateWait:
	case s.ResolvedByHuman && e.leased(cp):
		return nil, fmt.Errorf("%w: resolution in progress", model.ErrConcurrentResumeConflict)
	case s.ResolvedByHuman && s.Status == model.RunRunning && pending:
		log.Warn("taking over interrupted resolution", zap.Time("updated_at", cp.UpdatedAt))
	case s.ResolvedByHuman && s.Status == model.RunDone && pending:
		// The answer is already recorded; only the ticket is left.
		r := &run{state: s, version: cp.Version, out: discard, log: log}
		if err := e.syncHistory(ctx, r); err != nil {
			log.Error("history append failed", zap.Error(err))
		}
		return e.resolveTicket(ctx, r)
	default:
		return nil, fmt.Errorf("%w: thread is %s at %s", model.ErrInvalidResumeState, s.Status, s.CurrentNode)
	}
	if !pending {
		return nil, fmt.Errorf("%w: no pending_human ticket", model.ErrInvalidResumeState)
	}

	waiting := awaitingResolution(s)
	r := &run{state: waiting, version: cp.Version, out: discard, log: log}
	r.state.DraftAnswer = req.Answer
	r.state.ConfidenceScore = nil
	r.state.ResolvedByHuman = true
	r.state.Status = model.RunRunning
	r.state.CurrentNode = model.NodeCacheUpdate

	// The claim: a concurrent resume holding the same version loses here.
	if err := e.checkpoint(ctx, r); err != nil {
		metrics.ResolutionsTotal.WithLabelValues(req.TenantID, "conflict").Inc()
		return nil, err
	}

	o, _ := e.exec(ctx, r, model.NodeCacheUpdate)
	if to, err := next(model.NodeCacheUpdate, o); err != nil || to != model.NodeDone {
		e.release(ctx, r, waiting)
		return nil, fmt.Errorf("unexpected transition after resolution: %v", err)
	}

	if err := e.complete(ctx, r); err != nil {
		metrics.ResolutionsTotal.WithLabelValues(req.TenantID, "failed").Inc()
		e.release(ctx, r, waiting)
		return nil, err
	}

	return e.resolveTicket(ctx, r)
}

var discard = EmitterFunc(func(model.Event) {})

// awaitingResolution returns s parked at ESCALATE_WAIT as the escalation
// left it.
func awaitingResolution(s model.AgentState) model.AgentState {
	s.Status = model.RunPaused
	s.CurrentNode = model.NodeEscalateWait
	s.ResolvedByHuman = false
	return s
}

// release returns a claimed thread to ESCALATE_WAIT after a failed
// resolution. If this save fails too, the lease lets the next Resume take
// the thread over.
func (e *Engine) release(ctx context.Context, r *run, waiting model.AgentState) {
	v, err := e.deps.Checkpoints.Save(context.WithoutCancel(ctx), waiting, r.version)
	if err != nil {
		r.log.Error("failed to reopen thread for resolution", zap.Error(err))
		return
	}
	r.version = v
	r.log.Info("resolution rolled back, thread awaits a retry")
}

// resolveTicket marks the ticket resolved once the DONE checkpoint is durable.
func (e *Engine) resolveTicket(ctx context.Context, r *run) (*ResumeOutcome, error) {
	resolved, err := e.deps.Tickets.Resolve(ctx, r.state.TenantID, r.state.ThreadID)
	if err != nil {
		metrics.ResolutionsTotal.WithLabelValues(r.state.TenantID, "failed").Inc()
		return nil, fmt.Errorf("run finished but ticket was not resolved: %w", err)
	}

	metrics.ResolutionsTotal.WithLabelValues(r.state.TenantID, "resolved").Inc()
	r.log.Info("thread resolved by human", zap.String("ticket_id", resolved.ID))

	return &ResumeOutcome{Ticket: resolved, State: r.state, Version: r.version}, nil
}
