package model

import (
	"time"
)

// TicketStatus is the escalation status of a thread.
type TicketStatus string

const (
	TicketOpen         TicketStatus = "open"
	TicketPendingHuman TicketStatus = "pending_human"
	TicketResolved     TicketStatus = "resolved"
)

func (s TicketStatus) rank() int {
	switch s {
	case TicketOpen:
		return 1
	case TicketPendingHuman:
		return 2
	case TicketResolved:
		return 3
	default:
		return 0
	}
}

// CanTransition reports whether moving from s to next is allowed.
// Status only ever moves forward: open -> pending_human -> resolved, or open -> resolved.
func (s TicketStatus) CanTransition(next TicketStatus) bool {
	from, to := s.rank(), next.rank()
	return from > 0 && to > from
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	return s.rank() > 0
}

// Ticket is the escalation record for a thread.
type Ticket struct {
	ID         string       `json:"id"`
	ThreadID   string       `json:"thread_id"`
	TenantID   string       `json:"tenant_id"`
	Status     TicketStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
}

// ResolveRequest is the body of a human resolution.
type ResolveRequest struct {
	Answer string `json:"answer" validate:"required,max=100000"`
	Notify bool   `json:"notify"`
}

// ResolveResult describes a completed resolution.
type ResolveResult struct {
	ThreadID          string       `json:"thread_id"`
	TicketStatus      TicketStatus `json:"ticket_status"`
	CheckpointVersion int64        `json:"checkpoint_version"`
	Notified          bool         `json:"notified"`
}

// TicketNotification is published when a human resolves a ticket.
type TicketNotification struct {
	TicketID   string    `json:"ticket_id"`
	ThreadID   string    `json:"thread_id"`
	TenantID   string    `json:"tenant_id"`
	Answer     string    `json:"answer"`
	ResolvedAt time.Time `json:"resolved_at"`
}
