package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the name of the conversation history stream.
	StreamName = "CONVERSATIONS"

	// SubjectPrefix is the prefix for all conversation subjects.
	SubjectPrefix = "conv"

	// NotifyStreamName is the name of the outbound notification stream.
	NotifyStreamName = "NOTIFICATIONS"

	// NotifyPrefix is the prefix for notification subjects.
	NotifyPrefix = "notify"
)

// EnsureStreams ensures the history and notification streams exist.
func (c *Client) EnsureStreams(ctx context.Context) error {
	if err := c.ensureStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      365 * 24 * time.Hour,     // 1 year
		MaxBytes:    100 * 1024 * 1024 * 1024, // 100GB
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Duplicates:  10 * time.Minute,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Conversation turns, one subject per thread",
	}); err != nil {
		return err
	}

	return c.ensureStream(ctx, jetstream.StreamConfig{
		Name:        NotifyStreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", NotifyPrefix)},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Outbound notifications for delivery workers",
	})
}

func (c *Client) ensureStream(ctx context.Context, cfg jetstream.StreamConfig) error {
	_, err := c.js.Stream(ctx, cfg.Name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", cfg.Name, err)
	}

	if _, err := c.js.CreateStream(ctx, cfg); err != nil {
		return fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
	}
	return nil
}

// TurnSubject returns the subject holding a thread's turns.
func TurnSubject(tenantID, threadID string) string {
	return fmt.Sprintf("%s.%s.%s.turn", SubjectPrefix, tenantID, threadID)
}

// NotifySubject returns the subject for a tenant notification kind.
func NotifySubject(tenantID, kind string) string {
	return fmt.Sprintf("%s.%s.%s", NotifyPrefix, tenantID, kind)
}
