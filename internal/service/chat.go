// Package service wires the workflow engine to its callers.
package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-agent/internal/agent"
	"github.com/capitalize-ai/support-agent/internal/model"
	"github.com/capitalize-ai/support-agent/pkg/logger"
)

// streamBuffer bounds how far the engine runs ahead of a slow reader.
const streamBuffer = 64

// ChatService runs the workflow for user messages and serves thread history.
type ChatService struct {
	engine  *agent.Engine
	history agent.HistoryStore
	logger  *logger.Logger

	// runs tracks in-flight runs so shutdown can wait for them.
	runs sync.WaitGroup
}

// NewChatService creates a new chat service.
func NewChatService(engine *agent.Engine, history agent.HistoryStore, log *logger.Logger) *ChatService {
	return &ChatService{
		engine:  engine,
		history: history,
		logger:  log,
	}
}

// Send records the message and claims the thread before returning, so a
// rejected message (invalid, untrusted, or a thread busy with another run) is
// reported as an error instead of a stream. The rest of the run is detached
// from ctx: it keeps executing and checkpointing after the caller stops
// reading the returned stream.
func (s *ChatService) Send(ctx context.Context, tenantID, threadID, content string) (*agent.Stream, error) {
	runCtx := context.WithoutCancel(ctx)
	stream := agent.NewStream(streamBuffer)

	x, err := s.engine.Start(runCtx, agent.Request{TenantID: tenantID, ThreadID: threadID, Utterance: content}, stream)
	if err != nil {
		stream.Close()
		return nil, err
	}

	log := s.logger.ForThread(tenantID, threadID)

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer stream.Close()

		res, err := x.Continue(runCtx)
		if err != nil {
			log.Error("run ended with error", zap.Error(err))
			return
		}
		log.Debug("run finished", zap.String("status", string(res.Status)), zap.Int64("version", res.Version))
	}()

	return stream, nil
}

// History returns the thread's turns after afterSequence.
func (s *ChatService) History(ctx context.Context, tenantID, threadID string, afterSequence uint64) (*model.ListTurnsResponse, error) {
	if err := agent.ValidateIDs(tenantID, threadID); err != nil {
		return nil, err
	}

	turns, err := s.history.List(ctx, tenantID, threadID, afterSequence)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}

	resp := &model.ListTurnsResponse{Turns: turns, LastSequence: afterSequence}
	if resp.Turns == nil {
		resp.Turns = []model.Turn{}
	}
	if n := len(turns); n > 0 {
		resp.LastSequence = turns[n-1].SequenceNo
	}
	return resp, nil
}

// Wait blocks until in-flight runs finish or ctx is done.
func (s *ChatService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
