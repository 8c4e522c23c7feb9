package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/support-agent/internal/model"
)

// KindTicketResolved is the notification kind for a resolved ticket.
const KindTicketResolved = "ticket_resolved"

// Notifier publishes notifications for the external delivery workers.
type Notifier struct {
	js jetstream.JetStream
}

// NewNotifier creates a notifier.
func NewNotifier(client *Client) *Notifier {
	return &Notifier{js: client.JetStream()}
}

// TicketResolved publishes a ticket-resolved notification.
func (n *Notifier) TicketResolved(ctx context.Context, note model.TicketNotification) error {
	data, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if _, err := n.js.Publish(ctx, NotifySubject(note.TenantID, KindTicketResolved), data,
		jetstream.WithMsgID(note.TicketID+"."+KindTicketResolved),
	); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}
