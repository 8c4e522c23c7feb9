package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-agent/internal/model"
	"github.com/capitalize-ai/support-agent/pkg/logger"
)

const (
	appendAttempts = 16
	fetchBatch     = 256
)

// HistoryStore keeps each thread's turns on its own JetStream subject.
//
// sequence_no is per thread: every append reads the subject's last turn and
// publishes with an expected-last-subject-sequence header, so concurrent
// writers cannot both take the same number.
type HistoryStore struct {
	js     jetstream.JetStream
	logger *logger.Logger
}

// NewHistoryStore creates a history store on the client's JetStream context.
func NewHistoryStore(client *Client, log *logger.Logger) *HistoryStore {
	return &HistoryStore{js: client.JetStream(), logger: log}
}

// Append writes turn as the next turn of its thread and returns it with its
// sequence number. Appending a turn whose ID is already the thread's last
// turn returns the stored turn unchanged.
func (h *HistoryStore) Append(ctx context.Context, turn model.Turn) (model.Turn, error) {
	subject := TurnSubject(turn.TenantID, turn.ThreadID)

	for attempt := 0; attempt < appendAttempts; attempt++ {
		last, streamSeq, err := h.last(ctx, subject)
		if err != nil {
			return model.Turn{}, err
		}
		if last != nil && last.ID == turn.ID {
			return *last, nil
		}

		turn.SequenceNo = 1
		if last != nil {
			turn.SequenceNo = last.SequenceNo + 1
		}

		data, err := json.Marshal(turn)
		if err != nil {
			return model.Turn{}, fmt.Errorf("failed to marshal turn: %w", err)
		}

		ack, err := h.js.Publish(ctx, subject, data,
			jetstream.WithMsgID(turn.ID),
			jetstream.WithExpectLastSequencePerSubject(streamSeq),
		)
		if err != nil {
			var apiErr *jetstream.APIError
			if errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
				h.logger.Debug("history append raced, retrying",
					zap.String("thread_id", turn.ThreadID),
					zap.Int("attempt", attempt+1),
				)
				continue
			}
			return model.Turn{}, fmt.Errorf("failed to publish turn: %w", err)
		}
		if ack.Duplicate {
			h.logger.Warn("history append deduplicated",
				zap.String("thread_id", turn.ThreadID),
				zap.String("turn_id", turn.ID),
			)
		}

		return turn, nil
	}

	return model.Turn{}, fmt.Errorf("failed to append turn after %d attempts: %w", appendAttempts, model.ErrConcurrentResumeConflict)
}

// Last returns the thread's most recent turn, or nil when it has none.
func (h *HistoryStore) Last(ctx context.Context, tenantID, threadID string) (*model.Turn, error) {
	turn, _, err := h.last(ctx, TurnSubject(tenantID, threadID))
	return turn, err
}

func (h *HistoryStore) last(ctx context.Context, subject string) (*model.Turn, uint64, error) {
	stream, err := h.js.Stream(ctx, StreamName)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get stream: %w", err)
	}

	msg, err := stream.GetLastMsgForSubject(ctx, subject)
	if errors.Is(err, jetstream.ErrMsgNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get last turn: %w", err)
	}

	var turn model.Turn
	if err := json.Unmarshal(msg.Data, &turn); err != nil {
		return nil, 0, fmt.Errorf("failed to decode turn: %w", err)
	}
	return &turn, msg.Sequence, nil
}

// List returns the thread's turns with sequence_no greater than afterSequence,
// in order. A caller that is already caught up costs one last-message lookup;
// otherwise the subject is read through an ordered consumer, which the
// server removes once idle.
func (h *HistoryStore) List(ctx context.Context, tenantID, threadID string, afterSequence uint64) ([]model.Turn, error) {
	subject := TurnSubject(tenantID, threadID)

	last, _, err := h.last(ctx, subject)
	if err != nil {
		return nil, err
	}
	if last == nil || last.SequenceNo <= afterSequence {
		return nil, nil
	}

	consumer, err := h.js.OrderedConsumer(ctx, StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects:    []string{subject},
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: 30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	want := last.SequenceNo
	turns := make([]model.Turn, 0, want-afterSequence)

	for seen := uint64(0); seen < want; {
		batch, err := consumer.Fetch(fetchBatch, jetstream.FetchMaxWait(2*time.Second))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch turns: %w", err)
		}

		n := 0
		for msg := range batch.Messages() {
			n++
			var turn model.Turn
			if err := json.Unmarshal(msg.Data(), &turn); err != nil {
				h.logger.Warn("skipping undecodable turn", zap.String("thread_id", threadID), zap.Error(err))
				continue
			}
			seen = turn.SequenceNo
			if turn.SequenceNo > afterSequence && turn.SequenceNo <= want {
				turns = append(turns, turn)
			}
		}
		if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, nats.ErrTimeout) {
			return nil, fmt.Errorf("batch error: %w", err)
		}
		if n == 0 {
			break
		}
	}

	return turns, nil
}
