package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/support-agent/internal/model"
)

// Tickets is an in-memory Ticket Registry.
type Tickets struct {
	mu      sync.Mutex
	threads map[threadKey][]*model.Ticket
	now     func() time.Time
}

// NewTickets creates an empty registry.
func NewTickets() *Tickets {
	return &Tickets{
		threads: make(map[threadKey][]*model.Ticket),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Count returns how many tickets the thread has ever had.
func (t *Tickets) Count(tenantID, threadID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.threads[threadKey{tenantID, threadID}])
}

// Current returns a copy of the thread's latest ticket, or nil.
func (t *Tickets) Current(_ context.Context, tenantID, threadID string) (*model.Ticket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tickets := t.threads[threadKey{tenantID, threadID}]
	if len(tickets) == 0 {
		return nil, nil
	}
	tk := *tickets[len(tickets)-1]
	return &tk, nil
}

func (t *Tickets) active(key threadKey) *model.Ticket {
	tickets := t.threads[key]
	if len(tickets) == 0 {
		return nil
	}
	if last := tickets[len(tickets)-1]; last.Status != model.TicketResolved {
		return last
	}
	return nil
}

// Escalate moves the active ticket to pending_human, opening one if needed.
func (t *Tickets) Escalate(_ context.Context, tenantID, threadID string) (*model.Ticket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := threadKey{tenantID, threadID}
	tk := t.active(key)
	if tk == nil {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate ticket id: %w", err)
		}
		tk = &model.Ticket{
			ID:        id.String(),
			ThreadID:  threadID,
			TenantID:  tenantID,
			Status:    model.TicketOpen,
			CreatedAt: t.now(),
		}
		t.threads[key] = append(t.threads[key], tk)
	}

	if tk.Status != model.TicketPendingHuman {
		if !tk.Status.CanTransition(model.TicketPendingHuman) {
			return nil, model.ErrInvalidTicketTransition
		}
		tk.Status = model.TicketPendingHuman
	}

	out := *tk
	return &out, nil
}

// Resolve moves the pending_human ticket to resolved.
func (t *Tickets) Resolve(_ context.Context, tenantID, threadID string) (*model.Ticket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tk := t.active(threadKey{tenantID, threadID})
	if tk == nil {
		return nil, model.ErrNotFound
	}
	if tk.Status != model.TicketPendingHuman {
		return nil, fmt.Errorf("ticket is %s: %w", tk.Status, model.ErrInvalidTicketTransition)
	}

	now := t.now()
	tk.Status = model.TicketResolved
	tk.ResolvedAt = &now

	out := *tk
	return &out, nil
}
