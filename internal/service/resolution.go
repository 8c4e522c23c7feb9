package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-agent/internal/agent"
	"github.com/capitalize-ai/support-agent/internal/model"
	"github.com/capitalize-ai/support-agent/pkg/logger"
)

// ErrInvalidRequest wraps request body validation failures.
var ErrInvalidRequest = errors.New("invalid request")

// Notifier delivers ticket notifications to the external email service.
type Notifier interface {
	TicketResolved(ctx context.Context, note model.TicketNotification) error
}

// ResolutionService lets a human answer an escalated thread.
type ResolutionService struct {
	engine   *agent.Engine
	tickets  agent.TicketRegistry
	notifier Notifier
	validate *validator.Validate
	logger   *logger.Logger
}

// NewResolutionService creates a resolution service. notifier may be nil,
// in which case notification requests are ignored.
func NewResolutionService(engine *agent.Engine, tickets agent.TicketRegistry, notifier Notifier, log *logger.Logger) *ResolutionService {
	return &ResolutionService{
		engine:   engine,
		tickets:  tickets,
		notifier: notifier,
		validate: validator.New(),
		logger:   log,
	}
}

// Resolve finishes the paused run on the thread with the human answer.
func (s *ResolutionService) Resolve(ctx context.Context, tenantID, threadID string, req *model.ResolveRequest) (*model.ResolveResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	out, err := s.engine.Resume(ctx, agent.ResumeRequest{TenantID: tenantID, ThreadID: threadID, Answer: req.Answer})
	if err != nil {
		return nil, err
	}

	result := &model.ResolveResult{
		ThreadID:          threadID,
		TicketStatus:      out.Ticket.Status,
		CheckpointVersion: out.Version,
	}

	if req.Notify && s.notifier != nil {
		note := model.TicketNotification{
			TicketID: out.Ticket.ID,
			ThreadID: threadID,
			TenantID: tenantID,
			Answer:   req.Answer,
		}
		if out.Ticket.ResolvedAt != nil {
			note.ResolvedAt = *out.Ticket.ResolvedAt
		} else {
			note.ResolvedAt = time.Now().UTC()
		}

		if err := s.notifier.TicketResolved(ctx, note); err != nil {
			s.logger.Warn("ticket notification failed",
				zap.String("tenant_id", tenantID),
				zap.String("ticket_id", out.Ticket.ID),
				zap.Error(err),
			)
		} else {
			result.Notified = true
		}
	}

	return result, nil
}

// Ticket returns the thread's current ticket.
func (s *ResolutionService) Ticket(ctx context.Context, tenantID, threadID string) (*model.Ticket, error) {
	if err := agent.ValidateIDs(tenantID, threadID); err != nil {
		return nil, err
	}

	tk, err := s.tickets.Current(ctx, tenantID, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ticket: %w", err)
	}
	if tk == nil {
		return nil, model.ErrNotFound
	}
	return tk, nil
}
