package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/capitalize-ai/support-agent/internal/model"
)

type ticketRow struct {
	ID string `gorm:"primaryKey;size:64"`
	// At most one unresolved ticket per thread.
	ThreadID   string `gorm:"size:64;not null;index;uniqueIndex:idx_ticket_active_thread,where:status <> 'resolved'"`
	TenantID   string `gorm:"size:64;not null;index"`
	Status     string `gorm:"size:16;not null"`
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

func (ticketRow) TableName() string { return "tickets" }

func (r ticketRow) toModel() *model.Ticket {
	return &model.Ticket{
		ID:         r.ID,
		ThreadID:   r.ThreadID,
		TenantID:   r.TenantID,
		Status:     model.TicketStatus(r.Status),
		CreatedAt:  r.CreatedAt,
		ResolvedAt: r.ResolvedAt,
	}
}

// TicketRegistry records escalation status per thread.
type TicketRegistry struct {
	db  *gorm.DB
	now func() time.Time
}

// NewTicketRegistry creates a ticket registry.
func NewTicketRegistry(db *gorm.DB) *TicketRegistry {
	return &TicketRegistry{db: db, now: utcNow}
}

// Current returns the thread's most recent ticket, or nil if it never escalated.
func (r *TicketRegistry) Current(ctx context.Context, tenantID, threadID string) (*model.Ticket, error) {
	var row ticketRow
	err := r.db.WithContext(ctx).
		Where("thread_id = ? AND tenant_id = ?", threadID, tenantID).
		Order("created_at DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ticket: %w", err)
	}
	return row.toModel(), nil
}

func (r *TicketRegistry) active(ctx context.Context, tenantID, threadID string) (*ticketRow, error) {
	var row ticketRow
	err := r.db.WithContext(ctx).
		Where("thread_id = ? AND tenant_id = ? AND status <> ?", threadID, tenantID, string(model.TicketResolved)).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active ticket: %w", err)
	}
	return &row, nil
}

// Escalate moves the thread's active ticket to pending_human, opening one
// first if the thread has none. A ticket already pending_human is returned
// unchanged.
func (r *TicketRegistry) Escalate(ctx context.Context, tenantID, threadID string) (*model.Ticket, error) {
	row, err := r.active(ctx, tenantID, threadID)
	if err != nil {
		return nil, err
	}

	if row == nil {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate ticket id: %w", err)
		}
		created := ticketRow{
			ID:        id.String(),
			ThreadID:  threadID,
			TenantID:  tenantID,
			Status:    string(model.TicketOpen),
			CreatedAt: r.now(),
		}
		// A concurrent escalation may win the unique index; then use its ticket.
		res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&created)
		if res.Error != nil {
			return nil, fmt.Errorf("failed to create ticket: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			row = &created
		} else if row, err = r.active(ctx, tenantID, threadID); err != nil {
			return nil, err
		} else if row == nil {
			return nil, model.ErrConcurrentResumeConflict
		}
	}

	if model.TicketStatus(row.Status) == model.TicketPendingHuman {
		return row.toModel(), nil
	}

	if err := r.transition(ctx, row, model.TicketPendingHuman, nil); err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// Resolve moves the thread's pending_human ticket to resolved and stamps resolved_at.
func (r *TicketRegistry) Resolve(ctx context.Context, tenantID, threadID string) (*model.Ticket, error) {
	row, err := r.active(ctx, tenantID, threadID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, model.ErrNotFound
	}
	if model.TicketStatus(row.Status) != model.TicketPendingHuman {
		return nil, fmt.Errorf("ticket is %s: %w", row.Status, model.ErrInvalidTicketTransition)
	}

	now := r.now()
	if err := r.transition(ctx, row, model.TicketResolved, &now); err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// transition updates row to next only if its stored status is still row.Status.
func (r *TicketRegistry) transition(ctx context.Context, row *ticketRow, next model.TicketStatus, resolvedAt *time.Time) error {
	from := model.TicketStatus(row.Status)
	if !from.CanTransition(next) {
		return fmt.Errorf("%s -> %s: %w", from, next, model.ErrInvalidTicketTransition)
	}

	updates := map[string]any{"status": string(next)}
	if resolvedAt != nil {
		updates["resolved_at"] = *resolvedAt
	}

	res := r.db.WithContext(ctx).
		Model(&ticketRow{}).
		Where("id = ? AND tenant_id = ? AND status = ?", row.ID, row.TenantID, row.Status).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update ticket: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("ticket %s changed concurrently: %w", row.ID, model.ErrInvalidTicketTransition)
	}

	row.Status = string(next)
	if resolvedAt != nil {
		row.ResolvedAt = resolvedAt
	}
	return nil
}
